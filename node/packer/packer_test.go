package packer

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"spoolchain/core"
	"spoolchain/internal/testutil"
	"spoolchain/node/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	t.Cleanup(func() { _ = sb.Cleanup() })
	s, err := store.Open(sb.Path("db"), store.ModePrimary)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPoolPacksAndUpdatesCanopy(t *testing.T) {
	s := openTestStore(t)
	pool := NewPool(s, 8, 2)
	defer pool.Stop()

	spoolAddr := core.Address(core.H([]byte("pool-spool")))
	data := []byte("raw segment bytes from an ingest event")

	pool.Submit(SegmentJob{
		ID:         uuid.New(),
		SpoolAddr:  spoolAddr,
		SegNo:      0,
		Data:       data,
		Difficulty: 1,
	})

	deadline := time.Now().Add(2 * time.Second)
	for !s.HasSegment(spoolAddr, 0) {
		if time.Now().After(deadline) {
			t.Fatal("segment was never packed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	layer, err := s.GetMerkleLayer(store.KindUnpackedSpoolLayer, spoolAddr, 0)
	if err != nil {
		t.Fatalf("get layer: %v", err)
	}
	if len(layer) == 0 || layer[0] == (core.Hash{}) {
		t.Fatal("canopy sector root was not populated after packing")
	}
}

func TestTrySubmitRejectsWhenFull(t *testing.T) {
	s := openTestStore(t)
	pool := &Pool{jobs: make(chan SegmentJob, 1), store: s, stop: make(chan struct{})}
	pool.miners = map[core.Address]*core.PackxMemory{}

	job := SegmentJob{ID: uuid.New(), Data: []byte("x"), Difficulty: 1}
	if !pool.TrySubmit(job) {
		t.Fatal("first submit should succeed")
	}
	if pool.TrySubmit(job) {
		t.Fatal("second submit should be rejected once the queue is full")
	}
}
