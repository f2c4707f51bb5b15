package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"spoolchain/core"
)

// wireTx is the JSON frame a remote node's event websocket emits per
// transaction: the raw instruction bytes plus its event names and payloads,
// decoded back into core types by decodeWireTx.
type wireTx struct {
	Discriminator byte              `json:"discriminator"`
	Accounts      []string          `json:"accounts"`
	Payload       []byte            `json:"payload"`
	Events        []json.RawMessage `json:"events"`
}

type wireEvent struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// WSSource subscribes to a remote node's finalized-transaction feed over a
// websocket connection, decoding each frame into a ProcessedTx and
// forwarding it to out (spec §4.7 Live loop, remote variant; in-process
// deployments feed the Pipeline directly instead of through this source).
type WSSource struct {
	url string
	log *logrus.Entry
}

// NewWSSource builds a source dialing url (ws:// or wss://) on Run.
func NewWSSource(url string) *WSSource {
	return &WSSource{url: url, log: logrus.WithField("component", "ingest.ws")}
}

// Run dials the remote feed and forwards decoded transactions to out until
// ctx is canceled or the connection is lost. Callers reconnect by calling
// Run again; it does not retry internally (spec §4.7 "retries are unlimited
// at the loop level", left to the caller that owns the retry cadence).
func (w *WSSource) Run(ctx context.Context, out chan<- ProcessedTx) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("spoolchain: dial %s: %w", w.url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
		close(done)
	}()

	for {
		var frame wireTx
		if err := conn.ReadJSON(&frame); err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
				return fmt.Errorf("spoolchain: read live frame: %w", err)
			}
		}
		tx, err := decodeWireTx(frame)
		if err != nil {
			w.log.WithError(err).Warn("dropping malformed live frame")
			continue
		}
		select {
		case out <- tx:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeWireTx(frame wireTx) (ProcessedTx, error) {
	accounts := make([]core.Address, len(frame.Accounts))
	for i, hexAddr := range frame.Accounts {
		addr, err := core.AddressFromHex(hexAddr)
		if err != nil {
			return ProcessedTx{}, err
		}
		accounts[i] = addr
	}
	ix := core.Instruction{
		Discriminator: core.Discriminator(frame.Discriminator),
		Accounts:      accounts,
		Payload:       frame.Payload,
	}

	events := make([]core.Event, 0, len(frame.Events))
	for _, raw := range frame.Events {
		var we wireEvent
		if err := json.Unmarshal(raw, &we); err != nil {
			return ProcessedTx{}, err
		}
		ev, err := decodeWireEvent(we)
		if err != nil {
			return ProcessedTx{}, err
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return ProcessedTx{Instruction: ix, Events: events}, nil
}

func decodeWireEvent(we wireEvent) (core.Event, error) {
	switch we.Kind {
	case "WriteEvent":
		var e core.WriteEvent
		if err := json.Unmarshal(we.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "UpdateEvent":
		var e core.UpdateEvent
		if err := json.Unmarshal(we.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	case "FinalizeEvent":
		var e core.FinalizeEvent
		if err := json.Unmarshal(we.Data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, nil
	}
}
