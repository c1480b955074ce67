// Package connectivity decides whether the POS can reach the sale server.
// Raw probe results are debounced so a single dropped packet does not flap
// the online badge or trigger a sync.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the debounced reachability of the server.
type Status int

const (
	Offline Status = iota
	Online
)

func (s Status) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Prober checks reachability once. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// TransitionFunc is called after a debounced status change.
type TransitionFunc func(from, to Status)

type subscriber struct {
	id uint64
	fn TransitionFunc
}

// Monitor tracks connectivity. It starts Offline; a status change is reported
// only after threshold consecutive observations agree on the new value.
type Monitor struct {
	prober    Prober
	interval  time.Duration
	threshold int

	mu        sync.Mutex
	status    Status
	candidate Status
	streak    int
	subs      []subscriber
	nextID    uint64
}

// New builds a Monitor. interval <= 0 defaults to 5s; threshold < 1 to 1.
func New(prober Prober, interval time.Duration, threshold int) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if threshold < 1 {
		threshold = 1
	}
	return &Monitor{
		prober:    prober,
		interval:  interval,
		threshold: threshold,
		status:    Offline,
		candidate: Offline,
	}
}

// Status returns the last reported status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Online reports whether the last reported status is Online.
func (m *Monitor) Online() bool { return m.Status() == Online }

// OnTransition registers fn and returns a function that removes it.
func (m *Monitor) OnTransition(fn TransitionFunc) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Observe feeds one raw observation into the debouncer.
func (m *Monitor) Observe(online bool) {
	obs := Offline
	if online {
		obs = Online
	}

	m.mu.Lock()
	if obs == m.status {
		m.streak = 0
		m.candidate = m.status
		m.mu.Unlock()
		return
	}
	if obs != m.candidate {
		m.candidate = obs
		m.streak = 0
	}
	m.streak++
	if m.streak < m.threshold {
		m.mu.Unlock()
		return
	}
	from := m.status
	m.status = obs
	m.streak = 0
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	log.Info().Str("from", from.String()).Str("to", obs.String()).Msg("connectivity changed")
	for _, s := range subs {
		s.fn(from, obs)
	}
}

// Check probes once, feeds the result to Observe and returns the status
// afterwards.
func (m *Monitor) Check(ctx context.Context) Status {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	err := m.prober.Probe(probeCtx)
	if err != nil {
		log.Debug().Err(err).Msg("connectivity probe failed")
	}
	m.Observe(err == nil)
	return m.Status()
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
