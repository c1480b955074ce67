// Package syncengine drains the tablet's unsynced sales to the server.
// Every sale carries its client id, so re-sending one the server already
// has is harmless; the engine only ever marks a sale synced after the
// server has acknowledged it.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"clawpos/internal/connectivity"
	"clawpos/internal/dto"
	"clawpos/internal/localstore"

	"github.com/rs/zerolog/log"
)

// SaleStore is the part of the local store the engine needs.
type SaleStore interface {
	ListUnsyncedSales(ctx context.Context) ([]localstore.Sale, error)
	MarkSynced(ctx context.Context, clientID, saleNumber string) error
}

// Uploader sends one batch to the bulk endpoint and returns its per-sale results.
type Uploader interface {
	SyncSales(ctx context.Context, sales []localstore.Sale) ([]dto.SyncResult, error)
}

// StatusSource tells the engine whether the server is reachable.
type StatusSource interface {
	Online() bool
}

// Reasons a Sync call did nothing.
const (
	SkippedOffline      = "offline"
	SkippedInFlight     = "in_flight"
	SkippedUnauthorized = "unauthorized"
)

// unauthorized is implemented by upload errors that mean the token was refused.
type unauthorized interface {
	Unauthorized() bool
}

// Report describes one Sync call.
type Report struct {
	Skipped   string // empty when the call ran
	Attempted int    // sales sent to the server
	Synced    int    // sales marked synced locally
	Failed    int    // sales left for the next cycle
	Err       error  // transport or storage failure of the whole attempt
}

// Message is the short operator notice for the report, empty when there is
// nothing worth showing.
func (r Report) Message() string {
	var ua unauthorized
	switch {
	case r.Skipped == SkippedUnauthorized, errors.As(r.Err, &ua) && ua.Unauthorized():
		return "session expired, log in again to sync"
	case r.Err != nil:
		return "sync failed, will retry"
	case r.Synced > 0 && r.Failed > 0:
		return fmt.Sprintf("synced %d sales, %d pending", r.Synced, r.Failed)
	case r.Synced > 0:
		return fmt.Sprintf("synced %d sales", r.Synced)
	case r.Failed > 0:
		return fmt.Sprintf("%d sales pending", r.Failed)
	}
	return ""
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds a single sync attempt. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithAuthGate makes Sync skip the upload while fn reports no valid login.
// Queued sales stay queued.
func WithAuthGate(fn func(ctx context.Context) bool) Option {
	return func(e *Engine) { e.canUpload = fn }
}

// Engine runs at most one sync at a time; overlapping calls are dropped.
type Engine struct {
	store     SaleStore
	remote    Uploader
	conn      StatusSource
	timeout   time.Duration
	canUpload func(ctx context.Context) bool

	inFlight atomic.Bool

	mu        sync.Mutex
	listeners []func(Report)
}

func New(store SaleStore, remote Uploader, conn StatusSource, opts ...Option) *Engine {
	e := &Engine{store: store, remote: remote, conn: conn}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnReport registers fn to receive the report of every sync that did work or
// failed. fn runs on the syncing goroutine and must not block.
func (e *Engine) OnReport(fn func(Report)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Sync performs one attempt. It never returns an error; failures are in
// Report.Err and the affected sales stay unsynced.
func (e *Engine) Sync(ctx context.Context) Report {
	if !e.conn.Online() {
		return Report{Skipped: SkippedOffline}
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return Report{Skipped: SkippedInFlight}
	}
	rep := e.guardedRun(ctx)

	if rep.Attempted > 0 || rep.Err != nil || rep.Skipped == SkippedUnauthorized {
		e.notify(rep)
	}
	return rep
}

func (e *Engine) guardedRun(ctx context.Context) Report {
	defer e.inFlight.Store(false)
	return e.run(ctx)
}

func (e *Engine) run(ctx context.Context) Report {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	pending, err := e.store.ListUnsyncedSales(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sync: read unsynced sales")
		return Report{Err: err}
	}
	if len(pending) == 0 {
		return Report{}
	}
	if e.canUpload != nil && !e.canUpload(ctx) {
		return Report{Skipped: SkippedUnauthorized, Failed: len(pending)}
	}

	rep := Report{Attempted: len(pending)}
	results, err := e.remote.SyncSales(ctx, pending)
	if err != nil {
		log.Warn().Err(err).Int("pending", len(pending)).Msg("sync: upload failed")
		rep.Failed = len(pending)
		rep.Err = err
		return rep
	}

	byClient := make(map[string]dto.SyncResult, len(results))
	for _, r := range results {
		byClient[r.ClientID] = r
	}
	for _, sale := range pending {
		r, ok := byClient[sale.ClientID]
		if !ok {
			log.Warn().Str("client_id", sale.ClientID).Msg("sync: no result for sale")
			rep.Failed++
			continue
		}
		switch r.Status {
		case dto.SyncStatusCreated, dto.SyncStatusAlreadyExists:
			if err := e.store.MarkSynced(ctx, sale.ClientID, r.SaleNumber); err != nil {
				// the next cycle re-sends it and gets already_exists
				log.Error().Err(err).Str("client_id", sale.ClientID).Msg("sync: mark synced")
				rep.Failed++
				continue
			}
			rep.Synced++
		default:
			log.Warn().Str("client_id", sale.ClientID).Str("error", r.Error).Msg("sync: server rejected sale")
			rep.Failed++
		}
	}

	log.Info().Int("attempted", rep.Attempted).Int("synced", rep.Synced).Int("failed", rep.Failed).Msg("sync finished")
	return rep
}

func (e *Engine) notify(rep Report) {
	e.mu.Lock()
	listeners := make([]func(Report), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(rep)
	}
}

// Attach runs one Sync every time m goes from offline to online. The returned
// function detaches the engine.
func (e *Engine) Attach(ctx context.Context, m *connectivity.Monitor) (detach func()) {
	return m.OnTransition(func(from, to connectivity.Status) {
		if from == connectivity.Offline && to == connectivity.Online {
			go e.Sync(ctx)
		}
	})
}
