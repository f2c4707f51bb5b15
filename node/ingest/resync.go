package ingest

import (
	"github.com/bits-and-blooms/bitset"

	"spoolchain/core"
)

// Resync manually replays history backward from startingSlot, the operator
// escape hatch spec §4.7 names for recovering from a gap the Live loop
// missed (a restart during a burst of writes, a dropped feed). It traverses
// predecessor slots via a visited set plus an explicit stack rather than
// recursion, so an arbitrarily long write chain never grows the call stack.
func (p *Pipeline) Resync(startingSlot uint64, difficulty uint64) int {
	visited := bitset.New(0)
	stack := []uint64{startingSlot}
	packed := 0

	for len(stack) > 0 {
		slot := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if slot == 0 || visited.Test(slot) {
			continue
		}
		visited.Set(slot)

		ev, ok := p.eventAtSlot(slot)
		if !ok {
			continue
		}

		addr := eventAddress(ev.Event)
		for segNo, data := range ev.SegData {
			if p.store.HasSegment(addr, segNo) {
				continue
			}
			p.enqueueBackfill(addr, segNo, data, difficulty)
			packed++
		}

		if prev := prevSlotOf(ev.Event); prev != 0 {
			stack = append(stack, prev)
		}
	}

	p.log.WithFields(map[string]interface{}{
		"starting_slot": startingSlot,
		"jobs_enqueued": packed,
	}).Info("resync complete")
	return packed
}

func eventAddress(ev core.Event) core.Address {
	switch e := ev.(type) {
	case core.WriteEvent:
		return e.Address
	case core.UpdateEvent:
		return e.Address
	case core.FinalizeEvent:
		return e.Address
	default:
		return core.Address{}
	}
}
