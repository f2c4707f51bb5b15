package core

import "fmt"

// padTo returns data zero-padded (or truncated, which callers never
// trigger since chunks are pre-sliced to at most SegmentSize) to exactly
// SegmentSize bytes. The caller's slice is never mutated.
func padTo(data []byte, size int) []byte {
	if len(data) >= size {
		out := make([]byte, size)
		copy(out, data[:size])
		return out
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}

func segmentLeaf(index uint64, payload []byte) Hash {
	return H(le64(index), payload)
}

// SpoolCreate allocates a Spool and its Writer at their deterministic
// addresses (spec §4.1 Create). Fails if a spool already exists for this
// (authority, name) pair.
func (l *Ledger) SpoolCreate(authority Address, name string) (Address, error) {
	addr := SpoolAddress(authority, name)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.spools[addr]; exists {
		return Address{}, fmt.Errorf("spool %s: %w", addr, ErrUnexpectedState)
	}

	slot := l.nextSlot()
	l.spools[addr] = &Spool{
		Authority: authority,
		Name:      name,
		State:     SpoolCreated,
		FirstSlot: slot,
		TailSlot:  slot,
	}
	writerAddr := WriterAddress(addr)
	l.writers[writerAddr] = &Writer{
		Spool: addr,
		State: NewTree(SegmentTreeHeight, H(addr[:])),
	}
	l.log.WithFields(map[string]interface{}{"spool": addr.String(), "name": name}).Info("spool created")
	return addr, nil
}

// SpoolWrite appends data, split into SegmentSize chunks (the final chunk
// zero-padded), to the spool's writer tree (spec §4.1 Write).
func (l *Ledger) SpoolWrite(spoolAddr Address, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	spool, ok := l.spools[spoolAddr]
	if !ok {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolNotFound)
	}
	if spool.State != SpoolCreated && spool.State != SpoolWriting {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrUnexpectedState)
	}
	writer, ok := l.writers[WriterAddress(spoolAddr)]
	if !ok {
		return fmt.Errorf("writer for spool %s: %w", spoolAddr, ErrUnexpectedState)
	}

	numChunks := (len(data) + SegmentSize - 1) / SegmentSize
	if numChunks == 0 {
		return nil
	}
	if writer.State.Len()+numChunks > MaxSegmentsPerSpool {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolTooLong)
	}

	prevSlot := spool.TailSlot
	for i := 0; i < numChunks; i++ {
		start := i * SegmentSize
		end := start + SegmentSize
		if end > len(data) {
			end = len(data)
		}
		chunk := padTo(data[start:end], SegmentSize)
		if _, err := writer.State.Append(segmentLeaf(uint64(writer.State.Len()), chunk)); err != nil {
			return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolTooLong)
		}
	}

	spool.MerkleRoot = writer.State.Root()
	spool.TotalSegments = uint64(writer.State.Len())
	spool.TailSlot = l.nextSlot()
	if spool.State == SpoolCreated {
		spool.State = SpoolWriting
	}

	l.sink.Emit(WriteEvent{
		PrevSlot: prevSlot,
		NumAdded: uint64(numChunks),
		NumTotal: spool.TotalSegments,
		Address:  spoolAddr,
	})
	return nil
}

// SpoolUpdate replaces the segment at index in an unfinalized spool,
// proving the caller knows the current leaf value (spec §4.1 Update).
func (l *Ledger) SpoolUpdate(spoolAddr Address, index uint64, oldData, newData []byte, proof ProofPath) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	spool, ok := l.spools[spoolAddr]
	if !ok {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolNotFound)
	}
	if spool.State != SpoolWriting && spool.State != SpoolCreated {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrUnexpectedState)
	}
	writer, ok := l.writers[WriterAddress(spoolAddr)]
	if !ok {
		return fmt.Errorf("writer for spool %s: %w", spoolAddr, ErrUnexpectedState)
	}
	if proof.Len != SegmentProofLen || len(proof.Entries) != SegmentProofLen {
		return fmt.Errorf("spool %s update: %w", spoolAddr, ErrWriteFailed)
	}

	oldLeaf := segmentLeaf(index, padTo(oldData, SegmentSize))
	if !proof.verify(spool.MerkleRoot, oldLeaf, index) {
		return fmt.Errorf("spool %s update: %w", spoolAddr, ErrWriteFailed)
	}

	newLeaf := segmentLeaf(index, padTo(newData, SegmentSize))
	if err := writer.State.Set(index, newLeaf); err != nil {
		return fmt.Errorf("spool %s update: %w", spoolAddr, ErrWriteFailed)
	}

	prevSlot := spool.TailSlot
	spool.MerkleRoot = writer.State.Root()
	spool.TailSlot = l.nextSlot()

	l.sink.Emit(UpdateEvent{
		PrevSlot:      prevSlot,
		SegmentNumber: index,
		Address:       spoolAddr,
	})
	return nil
}

// SpoolFinalize closes the writer and assigns the spool its permanent
// archive number (spec §4.1 Finalize). Once finalized a spool's segments
// and root never change again.
func (l *Ledger) SpoolFinalize(spoolAddr Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	spool, ok := l.spools[spoolAddr]
	if !ok {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolNotFound)
	}
	if spool.State != SpoolWriting {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrUnexpectedState)
	}
	if !spool.CanFinalize() {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrInsufficientRent)
	}

	l.archive.SpoolsStored++
	l.archive.SegmentsStored += spool.TotalSegments
	spool.Number = l.archive.SpoolsStored
	spool.State = SpoolFinalized
	spool.LastRentBlock = l.block.Number

	delete(l.writers, WriterAddress(spoolAddr))

	l.sink.Emit(FinalizeEvent{Spool: spool.Number, Address: spoolAddr})
	l.log.WithFields(map[string]interface{}{"spool": spoolAddr.String(), "number": spool.Number}).Info("spool finalized")
	return nil
}

// SpoolSetHeader sets free-form metadata on an unfinalized spool.
func (l *Ledger) SpoolSetHeader(spoolAddr Address, header []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	spool, ok := l.spools[spoolAddr]
	if !ok {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolNotFound)
	}
	if spool.State == SpoolFinalized {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrUnexpectedState)
	}
	spool.Header = append([]byte(nil), header...)
	return nil
}

// SpoolSubsidize accepts tokens from anyone and adds them to the spool's
// rent balance. Unlike SetHeader this is allowed regardless of lifecycle
// state: rent keeps accruing against finalized spools too (spec §4.2 step
// 5 checks balance against a finalized spool).
func (l *Ledger) SpoolSubsidize(spoolAddr Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	spool, ok := l.spools[spoolAddr]
	if !ok {
		return fmt.Errorf("spool %s: %w", spoolAddr, ErrSpoolNotFound)
	}
	spool.Balance += amount
	return nil
}
