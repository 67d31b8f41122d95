//go:build testfaults

package pool

import "time"

// SimulateAllCooled forces every connection into cooldown, for exercising
// the all-in-cooldown path deterministically rather than waiting on real
// network failures. This mirrors the hard-coded error-injection hook
// described in spec.md §9's "simulated errors" open question, kept behind
// a build tag so it never ships in the production binary and never runs
// as part of the default test suite.
func (p *Pool) SimulateAllCooled() {
	p.mu.Lock()
	defer p.mu.Unlock()
	until := time.Now().Add(time.Hour)
	for _, c := range p.connections {
		c.InCooldown = true
		c.CooldownUntil = &until
	}
}
