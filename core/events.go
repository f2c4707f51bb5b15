package core

// Event is the common interface satisfied by every mutation event a
// handler appends to the transaction log. Off-ledger ingestion (spec §4.7)
// parses these bit-exact; Name is the discriminator the parser switches on.
type Event interface {
	Name() string
}

// WriteEvent is emitted on every successful Spool.Write. prev_slot lets an
// off-ledger follower walk a spool's mutation history backward without
// scanning the whole ledger (spec §9 "event-driven replay").
type WriteEvent struct {
	PrevSlot uint64
	NumAdded uint64
	NumTotal uint64
	Address  Address
}

func (WriteEvent) Name() string { return "WriteEvent" }

// UpdateEvent is emitted on every successful Spool.Update.
type UpdateEvent struct {
	PrevSlot      uint64
	SegmentNumber uint64
	Address       Address
}

func (UpdateEvent) Name() string { return "UpdateEvent" }

// FinalizeEvent is emitted once, when a spool transitions to Finalized.
type FinalizeEvent struct {
	Spool   uint64
	Address Address
}

func (FinalizeEvent) Name() string { return "FinalizeEvent" }

// MineEvent is emitted on every successful Mine, whether or not it advanced
// the block. Off-ledger metrics (spec §6 "mine" exporter, through
// node.OnMineEvent) count accepted proofs, rewards and block advances off
// this.
type MineEvent struct {
	Miner         Address
	Spool         uint64
	Expired       bool
	Reward        uint64
	BlockAdvanced bool
	Block         uint64
}

func (MineEvent) Name() string { return "MineEvent" }

// EventSink receives events as handlers emit them. The on-ledger program
// never parses its own events; this is purely an outbound log feed for the
// off-ledger node's ingestion pipeline (spec §4.7) to subscribe to, which is
// why the interface has a single fire-and-forget method.
type EventSink interface {
	Emit(Event)
}

// NopSink discards every event. NewLedger installs it when given a nil
// sink, and tests that don't care about the log pass it explicitly.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// SinkFunc adapts a plain function to EventSink, the way http.HandlerFunc
// adapts a function to http.Handler.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// RecordingSink appends every event to a slice, in emission order. Used by
// tests asserting on event shape.
type RecordingSink struct {
	Events []Event
}

func (s *RecordingSink) Emit(e Event) { s.Events = append(s.Events, e) }
