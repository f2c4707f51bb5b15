package core

import "fmt"

// MinerRegister creates a Miner account at its deterministic address. The
// miner's initial challenge is seeded from its own address so two miners
// registering in the same block still recall different spools/segments.
func (l *Ledger) MinerRegister(authority Address, name string) (Address, error) {
	addr := MinerAddress(authority, name)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.miners[addr]; exists {
		return Address{}, fmt.Errorf("miner %s: %w", addr, ErrUnexpectedState)
	}
	l.miners[addr] = &Miner{
		Authority:  authority,
		Name:       name,
		Challenge:  H(addr[:]),
		Multiplier: MinConsistencyMultiplier,
	}
	l.log.WithField("miner", addr.String()).Info("miner registered")
	return addr, nil
}

// MinerUnregister destroys a miner account. Requires zero unclaimed
// rewards so a miner can never lose an earned-but-unclaimed balance.
func (l *Ledger) MinerUnregister(minerAddr Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.miners[minerAddr]
	if !ok {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrUnexpectedState)
	}
	if m.UnclaimedRewards != 0 {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrClaimTooLarge)
	}
	delete(l.miners, minerAddr)
	return nil
}

// MinerClaim moves up to amount of unclaimed_rewards out of the miner
// account. The actual token transfer is performed by the external
// treasury/mint machinery (spec §1 Out of scope); this reduces the miner's
// record of what it is still owed and debits the same amount from the
// Treasury singleton's Balance.
func (l *Ledger) MinerClaim(minerAddr Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.miners[minerAddr]
	if !ok {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrUnexpectedState)
	}
	if amount > m.UnclaimedRewards {
		return fmt.Errorf("miner %s: %w", minerAddr, ErrClaimTooLarge)
	}
	m.UnclaimedRewards -= amount
	l.treasury.Balance -= amount
	return nil
}
