package ingest

import (
	"encoding/binary"
	"time"

	"spoolchain/core"
)

// challengeInterval is the fixed cadence spec §4.7 names for the Challenge
// loop.
const challengeInterval = 10 * time.Second

// RunChallenge starts the challenge loop: every challengeInterval it reads
// Block/Miner/Epoch from the ledger, computes minerAddr's recall spool, and
// if the store is missing any of that spool's segments, walks the spool's
// write/update history backward via PrevSlot to recover them (spec §4.7
// "Challenge loop").
func (p *Pipeline) RunChallenge(minerAddr core.Address) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(challengeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.runChallengeOnce(minerAddr)
			}
		}
	}()
}

func (p *Pipeline) runChallengeOnce(minerAddr core.Address) {
	p.mu.Lock()
	prev := p.lastPoll
	p.lastPoll = time.Now()
	p.mu.Unlock()
	if p.archive != nil && !prev.IsZero() {
		p.archive.LastPollAge.Set(time.Since(prev).Seconds())
	}

	block := p.ledger.Block()
	miner := p.ledger.GetMiner(minerAddr)
	if miner == nil || block.ChallengeSet == 0 {
		return
	}

	minerChallenge := core.H(block.Challenge[:], miner.Challenge[:])
	recallNumber := 1 + (u64FromLE(minerChallenge[:8]) % block.ChallengeSet)
	addr, err := p.store.SpoolAddressByNumber(recallNumber)
	if err != nil {
		p.log.WithError(err).WithField("spool_number", recallNumber).Debug("recall spool address not yet known")
		return
	}
	spool := p.ledger.GetSpool(addr)
	if spool == nil {
		return
	}

	if p.store.SegmentCount(addr) >= spool.TotalSegments {
		return
	}

	p.backfillSpool(addr)
}

// backfillSpool walks the spool's event chain backward from the latest
// recorded slot, enqueuing every segment write/update this store has not
// yet packed (spec §4.7: "walks the spool's linked list of slots backward").
func (p *Pipeline) backfillSpool(addr core.Address) {
	difficulty := p.ledger.Epoch().PackingDifficulty
	slot := p.latestSlotFor(addr)
	for slot != 0 {
		ev, ok := p.eventAtSlot(slot)
		if !ok {
			return
		}
		for segNo, data := range ev.SegData {
			p.enqueueBackfill(addr, segNo, data, difficulty)
		}
		slot = prevSlotOf(ev.Event)
	}
}

func prevSlotOf(ev core.Event) uint64 {
	switch e := ev.(type) {
	case core.WriteEvent:
		return e.PrevSlot
	case core.UpdateEvent:
		return e.PrevSlot
	default:
		return 0
	}
}

func u64FromLE(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
