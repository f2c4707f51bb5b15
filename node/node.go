// Package node wires the off-ledger archival node's pieces together: the
// persistent store, the packer pool, the three ingestion loops and the
// three metrics exporters (spec §4.7, §6). It owns startup and shutdown
// ordering; the pieces themselves are in node/store, node/packer,
// node/ingest and node/metrics.
package node

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"spoolchain/core"
	"spoolchain/node/ingest"
	"spoolchain/node/metrics"
	"spoolchain/node/packer"
	"spoolchain/node/store"
	"spoolchain/pkg/config"
)

// Node is a running archival node instance.
type Node struct {
	cfg *config.Config

	Store    *store.Store
	ReadMine *store.Store
	ReadWeb  *store.Store
	Pool     *packer.Pool
	Pipeline *ingest.Pipeline

	Web     *metrics.WebMetrics
	Mine    *metrics.MineMetrics
	Archive *metrics.ArchiveMetrics

	log *logrus.Entry
}

// New opens the store(s), builds the packer pool, ingestion pipeline and
// metrics exporters, in the dependency order spec §4.7 requires (store
// before packer, packer before ingest). It does not start the exporters'
// HTTP servers; StartMetrics does.
func New(cfg *config.Config, ledger ingest.LedgerView) (*Node, error) {
	primary, err := store.Open(cfg.Store.Path, store.ModePrimary)
	if err != nil {
		return nil, fmt.Errorf("spoolchain: open primary store: %w", err)
	}
	readMine, err := store.Open(cfg.Store.ReadMinePath, store.ModeSecondary)
	if err != nil {
		return nil, fmt.Errorf("spoolchain: open read-mine store: %w", err)
	}
	readWeb, err := store.Open(cfg.Store.ReadWebPath, store.ModeSecondary)
	if err != nil {
		return nil, fmt.Errorf("spoolchain: open read-web store: %w", err)
	}

	pool := packer.NewPool(primary, cfg.Packer.JobQueueDepth, cfg.Packer.Workers)
	pipeline := ingest.NewPipeline(primary, pool, ledger)
	archive := metrics.NewArchiveMetrics(fmt.Sprintf(":%d", cfg.Metrics.ArchivePort))
	pool.SetMetrics(archive)
	pipeline.SetMetrics(archive)

	n := &Node{
		cfg:      cfg,
		Store:    primary,
		ReadMine: readMine,
		ReadWeb:  readWeb,
		Pool:     pool,
		Pipeline: pipeline,
		Web:      metrics.NewWebMetrics(fmt.Sprintf(":%d", cfg.Metrics.WebPort)),
		Mine:     metrics.NewMineMetrics(fmt.Sprintf(":%d", cfg.Metrics.MinePort)),
		Archive:  archive,
		log:      logrus.WithField("component", "node"),
	}
	return n, nil
}

// StartMetrics brings up all three exporter HTTP servers.
func (n *Node) StartMetrics() {
	n.Web.Start()
	n.Mine.Start()
	n.Archive.Start()
}

// RunIngestion starts the live, challenge and resync-capable pipeline for
// minerAddr against feed, the channel a ledger integration pushes processed
// transactions onto.
func (n *Node) RunIngestion(feed <-chan ingest.ProcessedTx, minerAddr core.Address, difficulty func() uint64) {
	n.Pipeline.RunLive(feed, difficulty)
	n.Pipeline.RunChallenge(minerAddr)
}

// OnMineEvent updates the mine exporter's counters from a ledger MineEvent,
// the wiring an in-process Dispatch caller hooks in for its EventSink.
func (n *Node) OnMineEvent(e core.MineEvent) {
	n.Mine.ProofsAccepted.Inc()
	if e.Expired {
		n.Mine.ExpiredAccepted.Inc()
	}
	n.Mine.RewardTotal.Add(float64(e.Reward))
	if e.BlockAdvanced {
		n.Mine.BlocksAdvanced.Inc()
	}
}

// RefreshReadReplicas re-opens the two secondary handles against the
// primary's latest on-disk state (spec §4.4: secondary handles must be
// periodically told to catch up). Nothing in this module calls it, on a
// timer or otherwise.
func (n *Node) RefreshReadReplicas() error {
	if err := n.ReadMine.Refresh(); err != nil {
		return fmt.Errorf("spoolchain: refresh read-mine replica: %w", err)
	}
	if err := n.ReadWeb.Refresh(); err != nil {
		return fmt.Errorf("spoolchain: refresh read-web replica: %w", err)
	}
	return nil
}

// Shutdown stops ingestion, stops the packer pool (jobs still queued are not
// processed; see packer.Pool.Stop), and closes every store
// handle and metrics server, in reverse dependency order.
func (n *Node) Shutdown(ctx context.Context) error {
	n.Pipeline.Stop()
	n.Pool.Stop()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(n.Web.Shutdown(ctx))
	record(n.Mine.Shutdown(ctx))
	record(n.Archive.Shutdown(ctx))
	record(n.Store.Close())
	record(n.ReadMine.Close())
	record(n.ReadWeb.Close())
	return firstErr
}
