// Package ingest runs the three loops that keep the off-ledger store's
// packed segments in sync with on-ledger writes: Live, Challenge, and
// Resync (spec §4.7). All three feed the same packer.Pool job channel, the
// same fan-in-to-one-channel shape the teacher uses for its autonomous
// agent's rule loop, generalized from one ticking loop to three independent
// producers (core/autonomous_agent_node.go).
package ingest

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"spoolchain/core"
	"spoolchain/node/metrics"
	"spoolchain/node/packer"
	"spoolchain/node/store"
)

// ProcessedTx bundles a dispatched instruction with the events its handler
// emitted. The ledger integration that calls core.Dispatch is expected to
// forward one of these per transaction to the Live loop (or, for a remote
// follower, a websocket relay re-encodes the same shape - see ws.go).
type ProcessedTx struct {
	Instruction core.Instruction
	Events      []core.Event
}

// SlottedEvent pairs an event with the slot it was assigned and, for
// segment-bearing events, the raw segment bytes recovered from the
// triggering instruction's payload. The on-ledger program only records
// PrevSlot on each event; the slot of the event itself is implicit in
// emission order, so the pipeline reconstructs it by counting events as
// they arrive in the one Live feed wired to this ledger.
type SlottedEvent struct {
	Slot    uint64
	Event   core.Event
	SegData map[uint64][]byte // segment number -> raw bytes, for Write/Update
}

// LedgerView is the read surface the Challenge loop needs. *core.Ledger
// satisfies it directly; a remote node would implement it over RPC calls.
type LedgerView interface {
	Block() core.Block
	Epoch() core.Epoch
	GetMiner(addr core.Address) *core.Miner
	GetSpool(addr core.Address) *core.Spool
}

// Pipeline owns the shared history buffer and packer pool the three loops
// write through.
type Pipeline struct {
	store  *store.Store
	pool   *packer.Pool
	ledger LedgerView

	mu       sync.RWMutex
	history  map[uint64]SlottedEvent // slot -> event, for backward PrevSlot walks
	bySpool  map[core.Address][]uint64
	nextSeq  uint64
	lastPoll time.Time

	stop chan struct{}
	wg   sync.WaitGroup
	log  *logrus.Entry

	archive *metrics.ArchiveMetrics
}

// SetMetrics attaches the archive exporter the pipeline reports backfill
// activity and poll age to. Optional, same as packer.Pool.SetMetrics.
func (p *Pipeline) SetMetrics(m *metrics.ArchiveMetrics) {
	p.archive = m
}

// NewPipeline builds a Pipeline over an already-open store and packer pool.
func NewPipeline(s *store.Store, pool *packer.Pool, ledger LedgerView) *Pipeline {
	return &Pipeline{
		store:   s,
		pool:    pool,
		ledger:  ledger,
		history: make(map[uint64]SlottedEvent),
		bySpool: make(map[core.Address][]uint64),
		stop:    make(chan struct{}),
		log:     logrus.WithField("component", "ingest"),
	}
}

// Stop signals all running loops to exit and waits for them to drain.
func (p *Pipeline) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// recordEvent assigns the next sequence slot, remembers it for backward
// traversal, and indexes it by the spool address it touched (if any).
func (p *Pipeline) recordEvent(ev core.Event, segData map[uint64][]byte, addr core.Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSeq++
	slot := p.nextSeq
	p.history[slot] = SlottedEvent{Slot: slot, Event: ev, SegData: segData}
	if addr != (core.Address{}) {
		p.bySpool[addr] = append(p.bySpool[addr], slot)
	}
	return slot
}

func (p *Pipeline) eventAtSlot(slot uint64) (SlottedEvent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.history[slot]
	return e, ok
}

// latestSlotFor returns the most recently recorded slot touching addr, 0 if
// none is known yet.
func (p *Pipeline) latestSlotFor(addr core.Address) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	slots := p.bySpool[addr]
	if len(slots) == 0 {
		return 0
	}
	return slots[len(slots)-1]
}

// enqueueIfMissing submits a SegmentJob for (addr, segNo) unless the store
// already holds it, the idempotence guard spec §4.7 requires of Live and
// Challenge both.
func (p *Pipeline) enqueueIfMissing(addr core.Address, segNo uint64, data []byte, difficulty uint64) {
	if p.store.HasSegment(addr, segNo) {
		return
	}
	p.pool.Submit(packer.SegmentJob{
		ID:         uuid.New(),
		SpoolAddr:  addr,
		SegNo:      segNo,
		Data:       data,
		Difficulty: difficulty,
	})
}

// enqueueBackfill is enqueueIfMissing plus the archive exporter's
// backfill-jobs counter, for the Challenge and Resync loops (the Live loop
// calls enqueueIfMissing directly since its jobs are not backfill).
func (p *Pipeline) enqueueBackfill(addr core.Address, segNo uint64, data []byte, difficulty uint64) {
	if p.store.HasSegment(addr, segNo) {
		return
	}
	p.enqueueIfMissing(addr, segNo, data, difficulty)
	if p.archive != nil {
		p.archive.BackfillJobs.Inc()
	}
}

// splitSegments re-chunks a SpoolWrite payload into SegmentSize pieces, the
// same slicing SpoolWrite itself performs on-ledger (core/spool.go), so the
// off-ledger node recovers the identical segment boundaries from the wire
// payload alone.
func splitSegments(data []byte) [][]byte {
	n := (len(data) + core.SegmentSize - 1) / core.SegmentSize
	if n == 0 {
		return nil
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * core.SegmentSize
		end := start + core.SegmentSize
		if end > len(data) {
			end = len(data)
		}
		out[i] = data[start:end]
	}
	return out
}

// parseUpdatePayload extracts (index, newData) from a SpoolUpdate
// instruction payload, mirroring core's decodeUpdate layout: 8-byte index,
// old segment, new segment, then the proof this package does not need.
func parseUpdatePayload(b []byte) (index uint64, newData []byte, ok bool) {
	if len(b) < 8+core.SegmentSize+core.SegmentSize {
		return 0, nil, false
	}
	index = binary.LittleEndian.Uint64(b[:8])
	newData = append([]byte(nil), b[8+core.SegmentSize:8+2*core.SegmentSize]...)
	return index, newData, true
}
