package core

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock abstracts wall-clock time so instruction handlers stay
// deterministic under test while the production binary can wire in
// time.Now. Grounded on the teacher's pattern of injecting collaborators
// into the Ledger constructor rather than calling package-level globals
// from deep inside handler code (core/ledger.go, core/consensus.go in the
// teacher).
type Clock interface {
	Now() int64 // unix seconds
}

// SlotHashes abstracts the host ledger's recent-blockhash sysvar. Hash0
// returns slot_hashes[0], the freshest entry, which Mine folds into both
// the miner's challenge and the block's challenge (spec §4.2 steps 8 & 10).
type SlotHashes interface {
	Hash0() Hash
}

// randomSlotHashes produces a fresh unpredictable hash on every call. It is
// the production SlotHashes: the real host ledger's blockhash sysvar is
// external to this module (spec §1), so this stands in for "externally
// supplied entropy this program cannot predict".
type randomSlotHashes struct{}

func (randomSlotHashes) Hash0() Hash {
	var h Hash
	_, _ = rand.Read(h[:])
	return h
}

// RandomSlotHashes is the default SlotHashes implementation.
var RandomSlotHashes SlotHashes = randomSlotHashes{}

// FixedSlotHashes returns a constant hash on every call. Useful for
// deterministic tests that need to reason about the resulting challenge.
type FixedSlotHashes Hash

func (f FixedSlotHashes) Hash0() Hash { return Hash(f) }

// SystemClock reports real wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// Ledger is the in-memory account store instruction handlers operate
// against. It is deliberately not the host ledger: consensus, transaction
// scheduling and persistence across process restarts belong to the
// external ledger runtime (spec §1 Out of scope). It exists so the
// protocol kernel in mine.go and the instruction handlers in spool.go,
// miner.go and reel.go have a concrete, testable account set to mutate,
// the same role teacher's core.Ledger plays for its own account maps
// (core/ledger.go: Blocks, State, TokenBalances, ... protected by one
// mutex, exposed through typed accessors).
type Ledger struct {
	mu sync.RWMutex

	archive  Archive
	epoch    Epoch
	block    Block
	treasury Treasury

	spools  map[Address]*Spool
	writers map[Address]*Writer
	miners  map[Address]*Miner
	reels   map[Address]*Reel

	slot int64

	clock      Clock
	slotHashes SlotHashes
	sink       EventSink

	earlyPolicy EarlySubmissionPolicy

	log *logrus.Entry
}

// NewLedger constructs an empty, uninitialized Ledger. Call Initialize
// before issuing any instruction.
func NewLedger(clock Clock, slotHashes SlotHashes, sink EventSink) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if slotHashes == nil {
		slotHashes = RandomSlotHashes
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Ledger{
		spools:     make(map[Address]*Spool),
		writers:    make(map[Address]*Writer),
		miners:     make(map[Address]*Miner),
		reels:      make(map[Address]*Reel),
		clock:      clock,
		slotHashes: slotHashes,
		sink:       sink,
		log:        logrus.WithField("component", "ledger"),
	}
}

// Initialize creates the process-wide Archive/Epoch/Block/Treasury
// singletons with their genesis values. It is the handler for program
// discriminator 0x00 (spec §6).
func (l *Ledger) Initialize() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archive = Archive{}
	l.epoch = Epoch{
		Number:              0,
		MiningDifficulty:    MinMiningDifficulty,
		PackingDifficulty:   MinMiningDifficulty,
		TargetParticipation: MinParticipationTarget,
		RewardRate:          baseRate(0),
		LastEpochAt:         l.clock.Now(),
	}
	l.block = Block{
		Challenge:   l.slotHashes.Hash0(),
		LastProofAt: l.clock.Now(),
		LastBlockAt: l.clock.Now(),
	}
	l.treasury = Treasury{}
	l.log.Info("program initialized")
}

func (l *Ledger) nextSlot() uint64 {
	l.slot++
	return uint64(l.slot)
}

// Archive returns a copy of the current Archive singleton.
func (l *Ledger) Archive() Archive {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.archive
}

// Epoch returns a copy of the current Epoch singleton.
func (l *Ledger) Epoch() Epoch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epoch
}

// Block returns a copy of the current Block singleton.
func (l *Ledger) Block() Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.block
}

// Treasury returns a copy of the current Treasury singleton.
func (l *Ledger) Treasury() Treasury {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.treasury
}

// GetSpool returns the spool at addr, or nil if none exists.
func (l *Ledger) GetSpool(addr Address) *Spool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spools[addr]
}

// GetWriter returns the writer at addr, or nil if none exists.
func (l *Ledger) GetWriter(addr Address) *Writer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.writers[addr]
}

// GetMiner returns the miner at addr, or nil if none exists.
func (l *Ledger) GetMiner(addr Address) *Miner {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.miners[addr]
}

// GetReel returns the reel at addr, or nil if none exists.
func (l *Ledger) GetReel(addr Address) *Reel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reels[addr]
}

// FindSpoolByNumber performs a linear scan for the finalized spool with the
// given number. The off-ledger store (node/store) keeps the real index;
// this exists only so in-process tests can resolve a recall spool number
// without standing up a store.
func (l *Ledger) FindSpoolByNumber(number uint64) *Spool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.spools {
		if s.State == SpoolFinalized && s.Number == number {
			return s
		}
	}
	return nil
}
