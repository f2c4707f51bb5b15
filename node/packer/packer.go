// Package packer runs the CPU-bound pack workers that turn a raw segment
// into a packed segment fit to store at rest and later recall against
// (spec §4.5). It is grounded on the teacher's AutonomousAgentNode stop
// channel/WaitGroup lifecycle (core/autonomous_agent_node.go), generalized
// from one ticking loop to N workers draining a shared job channel.
package packer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"spoolchain/core"
	"spoolchain/node/metrics"
	"spoolchain/node/store"
)

// SegmentJob is one unit of pack work (spec §4.5): the raw bytes read off a
// spool segment, to be padded, packed and persisted.
type SegmentJob struct {
	ID         uuid.UUID
	SpoolAddr  core.Address
	SegNo      uint64
	Data       []byte
	Difficulty uint64
}

// Pool is a fixed-size CPU-bound worker pool consuming SegmentJobs from a
// single bounded channel (spec §4.7 "one packer-job channel, shared").
type Pool struct {
	jobs    chan SegmentJob
	store   *store.Store
	miners  map[core.Address]*core.PackxMemory
	minersM sync.RWMutex
	stop    chan struct{}
	wg      sync.WaitGroup
	log     *logrus.Entry
	archive *metrics.ArchiveMetrics
}

// SetMetrics attaches the archive exporter the pool reports pack
// successes/failures to. Optional: a pool with no metrics attached still
// packs segments, it just runs dark.
func (p *Pool) SetMetrics(m *metrics.ArchiveMetrics) {
	p.archive = m
}

// NewPool builds a pool with queueDepth capacity and workers concurrent
// pack workers, all writing through s.
func NewPool(s *store.Store, queueDepth, workers int) *Pool {
	p := &Pool{
		jobs:   make(chan SegmentJob, queueDepth),
		store:  s,
		miners: make(map[core.Address]*core.PackxMemory),
		stop:   make(chan struct{}),
		log:    logrus.WithField("component", "packer"),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit enqueues job, blocking if the queue is full (the caller, usually an
// ingestion loop, is expected to apply its own backpressure above this).
func (p *Pool) Submit(job SegmentJob) {
	p.jobs <- job
}

// TrySubmit enqueues job without blocking, reporting false if the queue is
// full.
func (p *Pool) TrySubmit(job SegmentJob) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// QueueLen reports how many jobs are currently buffered. No metrics
// exporter reads it.
func (p *Pool) QueueLen() int {
	return len(p.jobs)
}

// Stop signals every worker to return and waits for them to exit. A job a
// worker has already taken runs to completion; jobs still buffered in the
// job channel are not processed, and the job channel is left open.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Pool) memoryFor(miner core.Address) *core.PackxMemory {
	p.minersM.RLock()
	mem, ok := p.miners[miner]
	p.minersM.RUnlock()
	if ok {
		return mem
	}
	p.minersM.Lock()
	defer p.minersM.Unlock()
	if mem, ok := p.miners[miner]; ok {
		return mem
	}
	mem = core.BuildPackxMemory(miner)
	p.miners[miner] = mem
	return mem
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)
	for {
		select {
		case <-p.stop:
			return
		case job := <-p.jobs:
			if err := p.process(job); err != nil {
				if p.archive != nil {
					p.archive.PackFailures.Inc()
				}
				log.WithError(err).WithFields(logrus.Fields{
					"spool": job.SpoolAddr.String(),
					"seg":   job.SegNo,
					"job":   job.ID.String(),
				}).Warn("pack failed")
			} else if p.archive != nil {
				p.archive.SegmentsPacked.Inc()
			}
		}
	}
}

// process runs spec §4.5 steps 1-5 for a single job: pad, pack, re-verify,
// store, then fold the new segment into its sector's canopy.
func (p *Pool) process(job SegmentJob) error {
	padded := padTo(job.Data, core.SegmentSize)
	mem := p.memoryFor(job.SpoolAddr)

	solution, err := core.PackxSolve(padded, mem, job.Difficulty)
	if err != nil {
		return fmt.Errorf("pack segment %s/%d: %w", job.SpoolAddr, job.SegNo, err)
	}
	if !core.PackxVerify(mem, padded, solution, job.Difficulty) {
		return fmt.Errorf("pack segment %s/%d: solution failed re-verification", job.SpoolAddr, job.SegNo)
	}
	if err := p.store.PutSegment(job.SpoolAddr, job.SegNo, solution.ToBytes()); err != nil {
		return fmt.Errorf("store packed segment %s/%d: %w", job.SpoolAddr, job.SegNo, err)
	}

	canopy := store.NewCanopy(p.store, job.SpoolAddr, mem)
	if err := canopy.UpdateSector(job.SegNo); err != nil {
		return fmt.Errorf("update canopy for %s sector of %d: %w", job.SpoolAddr, job.SegNo, err)
	}
	return nil
}

func padTo(data []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, data)
	return out
}
