package ingest

import "spoolchain/core"

// RunLive starts the live loop: it drains feed until Stop is called,
// recording every event for later backward traversal and enqueuing a pack
// job for each newly written or updated segment not already in the store
// (spec §4.7 "Live loop"). difficulty supplies the current packing
// difficulty at enqueue time (the epoch's packing target can move between
// jobs).
func (p *Pipeline) RunLive(feed <-chan ProcessedTx, difficulty func() uint64) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-p.stop:
				return
			case tx, ok := <-feed:
				if !ok {
					p.log.Error("live feed closed, stopping ingestion")
					return
				}
				p.applyTx(tx, difficulty())
			}
		}
	}()
}

func (p *Pipeline) applyTx(tx ProcessedTx, difficulty uint64) {
	for _, ev := range tx.Events {
		switch e := ev.(type) {
		case core.WriteEvent:
			p.applyWrite(e, tx.Instruction, difficulty)
		case core.UpdateEvent:
			p.applyUpdate(e, tx.Instruction, difficulty)
		case core.FinalizeEvent:
			p.applyFinalize(e)
		}
	}
}

func (p *Pipeline) applyWrite(e core.WriteEvent, ix core.Instruction, difficulty uint64) {
	chunks := splitSegments(ix.Payload)
	startSeg := e.NumTotal - e.NumAdded
	segData := make(map[uint64][]byte, len(chunks))
	for i, c := range chunks {
		segData[startSeg+uint64(i)] = c
	}
	p.recordEvent(e, segData, e.Address)
	for segNo, data := range segData {
		p.enqueueIfMissing(e.Address, segNo, data, difficulty)
	}
}

func (p *Pipeline) applyUpdate(e core.UpdateEvent, ix core.Instruction, difficulty uint64) {
	_, newData, ok := parseUpdatePayload(ix.Payload)
	segData := map[uint64][]byte{}
	if ok {
		segData[e.SegmentNumber] = newData
	}
	p.recordEvent(e, segData, e.Address)
	if ok {
		p.enqueueIfMissing(e.Address, e.SegmentNumber, newData, difficulty)
	}
}

func (p *Pipeline) applyFinalize(e core.FinalizeEvent) {
	p.recordEvent(e, nil, e.Address)
	if err := p.store.PutSpoolAddress(e.Spool, e.Address); err != nil {
		p.log.WithError(err).WithField("spool", e.Spool).Warn("finalize: failed to record spool address")
	}
}
