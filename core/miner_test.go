package core

import "testing"

func TestMinerRegisterUnregister(t *testing.T) {
	l := newTestLedger()
	l.Initialize()

	authority := Address(H([]byte("author")))
	addr, err := l.MinerRegister(authority, "m1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if m := l.GetMiner(addr); m.Multiplier != MinConsistencyMultiplier {
		t.Fatalf("multiplier = %d, want %d", m.Multiplier, MinConsistencyMultiplier)
	}

	if _, err := l.MinerRegister(authority, "m1"); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	if err := l.MinerUnregister(addr); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if l.GetMiner(addr) != nil {
		t.Fatal("miner should no longer exist")
	}
}

func TestMinerUnregisterRequiresZeroRewards(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	authority := Address(H([]byte("author")))
	addr, _ := l.MinerRegister(authority, "m1")

	l.mu.Lock()
	l.miners[addr].UnclaimedRewards = 10
	l.mu.Unlock()

	if err := l.MinerUnregister(addr); err == nil {
		t.Fatal("expected unregister with unclaimed rewards to fail")
	}
}

func TestMinerClaim(t *testing.T) {
	l := newTestLedger()
	l.Initialize()
	authority := Address(H([]byte("author")))
	addr, _ := l.MinerRegister(authority, "m1")

	l.mu.Lock()
	l.miners[addr].UnclaimedRewards = 100
	l.treasury.Balance = 100
	l.mu.Unlock()

	if err := l.MinerClaim(addr, 150); err == nil {
		t.Fatal("expected over-claim to fail")
	}
	if err := l.MinerClaim(addr, 40); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if l.GetMiner(addr).UnclaimedRewards != 60 {
		t.Fatalf("unclaimed = %d, want 60", l.GetMiner(addr).UnclaimedRewards)
	}
}
