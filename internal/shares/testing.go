package shares

// SeedShares is a test helper that sets a participant's balance directly when
// using the in-memory ledger.
func SeedShares(l Ledger, participant string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if prev, exists := mem.balances[participant]; exists {
			mem.total -= prev
		}
		mem.balances[participant] = amount
		mem.total += amount
	}
}
