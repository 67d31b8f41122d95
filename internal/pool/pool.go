package pool

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"idgateway/internal/shared/logger"
)

// diskConfig is the persisted shape of config_proxies.json. Fields not
// listed here are legacy keys and are silently stripped on load, per
// spec.md §6.
type diskConfig struct {
	Connections        []Connection `json:"connections"`
	CurrentIndex       int          `json:"current_index"`
	CooldownDurationMs int64        `json:"cooldown_duration_ms"`
}

// Pool holds the ordered connection list and rotation cursor. Index 0 is
// always a direct connection; socks5 entries keep insertion order.
type Pool struct {
	mu                 sync.Mutex
	path               string
	connections        []*Connection
	currentIndex       int
	defaultCooldownMs  int64
}

// New creates an empty pool (with the mandatory direct connection at index
// 0) backed by the JSON file at path.
func New(path string) *Pool {
	return &Pool{
		path:              path,
		connections:       []*Connection{{Kind: KindDirect}},
		defaultCooldownMs: DefaultCooldownMs,
	}
}

// Load reads the pool config file, normalizing it per spec.md §6: unknown
// connection kinds are dropped, a missing direct entry is inserted at
// index 0, and a dangling current_index is reset to 0.
func (p *Pool) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("pool: read %s: %w", p.path, err)
	}

	var cfg diskConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("pool: parse %s: %w", p.path, err)
	}

	var conns []*Connection
	for i := range cfg.Connections {
		c := cfg.Connections[i]
		if c.Kind != KindDirect && c.Kind != KindSocks5 {
			continue
		}
		conns = append(conns, &c)
	}

	hasDirect := false
	for _, c := range conns {
		if c.Kind == KindDirect {
			hasDirect = true
			break
		}
	}
	if !hasDirect {
		conns = append([]*Connection{{Kind: KindDirect}}, conns...)
	} else {
		// Move the first direct connection to index 0 if it isn't already,
		// shifting the entries before it so socks5 order is preserved.
		for i, c := range conns {
			if c.Kind == KindDirect {
				if i != 0 {
					copy(conns[1:i+1], conns[:i])
					conns[0] = c
				}
				break
			}
		}
	}

	p.connections = conns
	p.currentIndex = cfg.CurrentIndex
	if p.currentIndex < 0 || p.currentIndex >= len(p.connections) {
		p.currentIndex = 0
	}
	if cfg.CooldownDurationMs > 0 {
		p.defaultCooldownMs = cfg.CooldownDurationMs
	}
	return nil
}

// persist writes the pool state to disk, best-effort: a write failure is
// logged, never returned to the caller, since cooldowns expire naturally
// even if the file is lost (spec.md §4.2).
func (p *Pool) persist() {
	cfg := diskConfig{
		CurrentIndex:       p.currentIndex,
		CooldownDurationMs: p.defaultCooldownMs,
	}
	for _, c := range p.connections {
		cfg.Connections = append(cfg.Connections, *c)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		log := logger.WithComponent("pool")
		log.Error().Err(err).Msg("marshal pool config")
		return
	}
	if err := atomicWrite(p.path, data); err != nil {
		log := logger.WithComponent("pool")
		log.Error().Err(err).Msg("persist pool config")
	}
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pool-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// clearExpiredLocked flips in_cooldown off for any connection whose
// cooldown_until has passed. Must be called with p.mu held.
func (p *Pool) clearExpiredLocked(now time.Time) {
	changed := false
	for _, c := range p.connections {
		if c.InCooldown && c.CooldownUntil != nil && !c.CooldownUntil.After(now) {
			c.InCooldown = false
			c.CooldownUntil = nil
			changed = true
		}
	}
	if changed {
		p.persist()
	}
}

// Current lazily clears expired cooldowns and, if the current connection is
// cooled, rotates to the next available one.
func (p *Pool) Current() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearExpiredLocked(time.Now())
	cur := p.connections[p.currentIndex]
	if !cur.InCooldown {
		return cur
	}
	conn, _, _ := p.rotateToNextAvailableLocked()
	return conn
}

// RotationResult is returned by operations that may discover every
// connection is cooled.
type RotationResult struct {
	Connection         *Connection
	AllInCooldown      bool
	EarliestAvailableAt time.Time
}

// RotateToNextAvailable moves current_index forward modulo N, stopping at
// the first non-cooled entry. If all are cooled it selects the one with
// the earliest cooldown_until and reports AllInCooldown.
func (p *Pool) RotateToNextAvailable() RotationResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, allCooled, earliest := p.rotateToNextAvailableLocked()
	return RotationResult{Connection: conn, AllInCooldown: allCooled, EarliestAvailableAt: earliest}
}

func (p *Pool) rotateToNextAvailableLocked() (*Connection, bool, time.Time) {
	n := len(p.connections)
	p.clearExpiredLocked(time.Now())

	for i := 1; i <= n; i++ {
		idx := (p.currentIndex + i) % n
		if !p.connections[idx].InCooldown {
			p.currentIndex = idx
			p.persist()
			return p.connections[idx], false, time.Time{}
		}
	}

	// All cooled: pick the earliest to expire, without changing
	// current_index (there is nothing better to rotate to).
	var earliestIdx int
	var earliest time.Time
	for i, c := range p.connections {
		if c.CooldownUntil == nil {
			continue
		}
		if earliest.IsZero() || c.CooldownUntil.Before(earliest) {
			earliest = *c.CooldownUntil
			earliestIdx = i
		}
	}
	return p.connections[earliestIdx], true, earliest
}

// MarkCurrentCooldown stamps the current connection cooled, records the
// error, and rotates.
func (p *Pool) MarkCurrentCooldown(class ErrorClass, endpoint Endpoint, errMsg string) RotationResult {
	p.mu.Lock()
	cur := p.connections[p.currentIndex]
	until := time.Now().Add(CooldownDuration(class, endpoint))
	cur.InCooldown = true
	cur.CooldownUntil = &until
	cur.LastError = errMsg
	conn, allCooled, earliest := p.rotateToNextAvailableLocked()
	if allCooled {
		// rotateToNextAvailableLocked only persists when it moves the cursor.
		p.persist()
	}
	p.mu.Unlock()
	return RotationResult{Connection: conn, AllInCooldown: allCooled, EarliestAvailableAt: earliest}
}

// Size returns the number of connections currently in the pool, used by the
// validation client to bound its same-call retry loop (spec.md §9).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.connections)
}

// AllInCooldown reports whether every connection is currently cooled, after
// sweeping expired cooldowns.
func (p *Pool) AllInCooldown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearExpiredLocked(time.Now())
	for _, c := range p.connections {
		if !c.InCooldown {
			return false
		}
	}
	return true
}

// AddSocks5 appends a validated socks5 connection to the pool.
func (p *Pool) AddSocks5(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "socks5" || u.Host == "" {
		return fmt.Errorf("pool: invalid socks5 url %q", rawURL)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.connections = append(p.connections, &Connection{Kind: KindSocks5, URL: rawURL})
	p.persist()
	return nil
}

// RemoveSocks5 removes a socks5 connection by URL. If current_index would
// dangle, it is renormalized to 0.
func (p *Pool) RemoveSocks5(rawURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.connections {
		if c.Kind == KindSocks5 && c.URL == rawURL {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			if p.currentIndex >= len(p.connections) {
				p.currentIndex = 0
			}
			p.persist()
			return nil
		}
	}
	return fmt.Errorf("pool: socks5 url %q not found", rawURL)
}

// Status is a copy-on-read snapshot for the health endpoint and admin API.
type Status struct {
	Total           int           `json:"total"`
	Available       int           `json:"available"`
	AllInCooldown   bool          `json:"all_in_cooldown"`
	Current         Connection    `json:"current"`
	NextAvailableIn time.Duration `json:"next_available_in"`
	Connections     []Connection  `json:"connections"`
}

// Status returns available count, total, the current connection, time
// until the earliest cooldown expires, and per-connection snapshots.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearExpiredLocked(time.Now())

	st := Status{Total: len(p.connections)}
	var earliest time.Time
	for _, c := range p.connections {
		st.Connections = append(st.Connections, *c)
		if !c.InCooldown {
			st.Available++
		} else if c.CooldownUntil != nil && (earliest.IsZero() || c.CooldownUntil.Before(earliest)) {
			earliest = *c.CooldownUntil
		}
	}
	st.AllInCooldown = st.Available == 0
	st.Current = *p.connections[p.currentIndex]
	if !earliest.IsZero() {
		if d := time.Until(earliest); d > 0 {
			st.NextAvailableIn = d
		}
	}
	return st
}
