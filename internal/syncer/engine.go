// Package syncer keeps the working copy of one proposal in memory, mirrors
// every change into the local cache, and writes the derived summary to the
// remote store after edits settle.
package syncer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bidline/api/internal/fingerprint"
	"bidline/api/internal/metrics"
	"bidline/api/internal/pricing"
	"bidline/api/internal/proposal"
	"bidline/api/internal/store"
	"bidline/api/internal/util"
)

const (
	DefaultDebounce      = time.Second
	DefaultQuietWindow   = 500 * time.Millisecond
	DefaultRemoteTimeout = 10 * time.Second
)

// RemoteStore is the authoritative summary record.
type RemoteStore interface {
	FetchProposal(ctx context.Context, id string) (proposal.Summary, error)
	UpdateProposal(ctx context.Context, id string, summary proposal.Summary) (proposal.Summary, error)
}

// SnapshotStore is the local tier holding full working copies.
type SnapshotStore interface {
	Load(ctx context.Context, id string) (proposal.Snapshot, bool)
	Save(ctx context.Context, snapshot proposal.Snapshot) error
}

// SyncedHook runs after a successful remote write, outside the engine lock.
type SyncedHook func(ctx context.Context, p proposal.Proposal, stored proposal.Summary) error

// Options tunes the engine. Zero Debounce and RemoteTimeout take the
// defaults; a zero QuietWindow disables the post-load window.
type Options struct {
	Debounce      time.Duration
	QuietWindow   time.Duration
	RemoteTimeout time.Duration
	Clock         Clock
	Logger        zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.QuietWindow < 0 {
		o.QuietWindow = 0
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = DefaultRemoteTimeout
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	return o
}

// Engine owns the single active proposal. All fields below mu are guarded by
// it; remote I/O always happens with mu released.
type Engine struct {
	remote    RemoteStore
	local     SnapshotStore
	detector  *fingerprint.Detector
	debouncer *Debouncer
	opts      Options
	log       zerolog.Logger

	// saveMu orders remote writes so an older summary never lands after a
	// newer one.
	saveMu sync.Mutex
	// notifyMu orders subscriber delivery. Subscribers must not call back
	// into mutating Engine methods synchronously.
	notifyMu sync.Mutex

	mu           sync.Mutex
	current      proposal.Proposal
	loaded       bool
	generation   uint64
	status       Status
	source       Source
	quiet        bool
	quietPending bool
	quietTimer   Timer
	lastSaved    time.Time
	lastSynced   time.Time
	lastErr      error
	subscribers  map[int]func(State)
	nextSub      int
	hooks        []SyncedHook
}

func NewEngine(remote RemoteStore, local SnapshotStore, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		remote:      remote,
		local:       local,
		detector:    fingerprint.NewDetector(),
		debouncer:   NewDebouncer(opts.Clock),
		opts:        opts,
		log:         opts.Logger.With().Str("component", "syncer").Logger(),
		status:      StatusIdle,
		subscribers: make(map[int]func(State)),
	}
}

// OnSynced registers a hook run after every successful remote write.
func (e *Engine) OnSynced(hook SyncedHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, hook)
}

// Subscribe delivers the current state immediately, when a proposal is
// loaded, and again after every change. The returned func unsubscribes.
func (e *Engine) Subscribe(fn func(State)) func() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	loaded := e.loaded
	state := e.stateLocked()
	e.mu.Unlock()

	if loaded {
		fn(state)
	}
	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// Load switches the engine to id. Remote and cache failures fall back to the
// next tier; only a blank id, a cancelled ctx or a newer concurrent load
// produce an error.
func (e *Engine) Load(ctx context.Context, id string) (proposal.Proposal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return proposal.Proposal{}, ErrBlankID
	}

	gen := e.switchTo(id)
	log := e.log.With().Str("proposal_id", id).Logger()

	var remote *proposal.Summary
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	summary, err := e.remote.FetchProposal(fetchCtx, id)
	cancel()
	switch {
	case err == nil:
		remote = &summary
	case errors.Is(err, store.ErrNotFound):
		log.Debug().Msg("no remote record")
	default:
		log.Warn().Err(err).Msg("remote fetch failed; falling back to cache")
	}
	if err := ctx.Err(); err != nil {
		return proposal.Proposal{}, err
	}

	var cached *proposal.Snapshot
	if snapshot, ok := e.local.Load(ctx, id); ok {
		cached = &snapshot
	}
	if err := ctx.Err(); err != nil {
		return proposal.Proposal{}, err
	}

	merged := Merge(id, remote, cached)
	source := sourceOf(remote, cached)

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return proposal.Proposal{}, ErrSuperseded
	}
	e.current = merged
	e.loaded = true
	e.source = source
	e.status = StatusIdle
	if cached != nil {
		e.lastSaved = cached.LastSaved
	}
	if remote != nil {
		e.lastSynced = remote.UpdatedAt
	}
	e.enterQuietLocked(gen)
	if behindRemote(remote, cached) {
		// Cached edits never reached the remote store; push them once the
		// window closes.
		if e.quiet {
			e.quietPending = true
		} else {
			e.observeLocked()
		}
	}
	state, subs := e.broadcastLocked()
	e.mu.Unlock()

	metrics.Loads.WithLabelValues(string(source)).Inc()
	log.Info().Str("source", string(source)).Msg("proposal loaded")
	deliver(subs, state)
	return merged.Clone(), nil
}

// Create switches to a fresh default-reset proposal with a new id and runs
// the save path so it reaches both tiers.
func (e *Engine) Create(ctx context.Context) (proposal.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return proposal.Proposal{}, err
	}
	id := util.NewID("prop")
	e.switchTo(id)

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	e.current = proposal.New(id)
	e.loaded = true
	e.source = SourceCreated
	e.status = StatusIdle
	e.observeLocked()
	created := e.current.Clone()
	state, subs := e.broadcastLocked()
	e.mu.Unlock()

	e.log.Info().Str("proposal_id", id).Msg("proposal created")
	deliver(subs, state)
	return created, nil
}

// Mutate applies fn to a copy of the working proposal and commits it. The id
// cannot be changed and the result is sanitized before anyone observes it.
func (e *Engine) Mutate(fn func(p *proposal.Proposal)) (proposal.Proposal, error) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return proposal.Proposal{}, ErrNoProposal
	}
	work := e.current.Clone()
	fn(&work)
	work.ID = e.current.ID
	work.Sanitize()
	e.current = work
	e.observeLocked()
	out := e.current.Clone()
	state, subs := e.broadcastLocked()
	e.mu.Unlock()

	deliver(subs, state)
	return out, nil
}

// Replace swaps in a complete working copy for the loaded proposal.
func (e *Engine) Replace(p proposal.Proposal) (proposal.Proposal, error) {
	if id := e.CurrentID(); id != "" && p.ID != "" && p.ID != id {
		return proposal.Proposal{}, ErrIDMismatch
	}
	replacement := p.Clone()
	return e.Mutate(func(dst *proposal.Proposal) {
		*dst = replacement
	})
}

// ImportExtracted appends records produced by document extraction, filling
// defaults for whatever the extractor left out. Unreadable year values are
// dropped, logged and counted.
func (e *Engine) ImportExtracted(roles []proposal.ExtractedRole, requirements []proposal.ExtractedRequirement) (proposal.Proposal, error) {
	converted := make([]proposal.Role, 0, len(roles))
	var rejected []string
	for _, record := range roles {
		role, dropped := proposal.RoleFromExtracted(record)
		converted = append(converted, role)
		rejected = append(rejected, dropped...)
	}
	p, err := e.Mutate(func(p *proposal.Proposal) {
		p.Roles = append(p.Roles, converted...)
		for _, record := range requirements {
			p.Requirements = append(p.Requirements, proposal.RequirementFromExtracted(record))
		}
	})
	if err != nil {
		return p, err
	}
	if len(rejected) > 0 {
		metrics.ExtractionRejectedYears.Add(float64(len(rejected)))
		e.log.Warn().Str("proposal_id", p.ID).Strs("years", rejected).Msg("dropped unreadable contract years from extracted roles")
	}
	return p, nil
}

// Current returns a deep copy of the working proposal.
func (e *Engine) Current() (proposal.Proposal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return proposal.Proposal{}, false
	}
	return e.current.Clone(), true
}

// CurrentID is the loaded proposal id or "" when nothing is loaded.
func (e *Engine) CurrentID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ""
	}
	return e.current.ID
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// State returns the full observable state.
func (e *Engine) State() (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(), e.loaded
}

// Flush cancels the pending debounce and writes the remote summary now if
// there are unsynced changes.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return nil
	}
	if e.quiet {
		e.leaveQuietLocked()
	}
	gen := e.generation
	dirty := e.status == StatusDirty
	e.mu.Unlock()

	e.debouncer.Cancel()
	if !dirty {
		return nil
	}
	return e.sync(ctx, gen)
}

// switchTo cancels everything pending for the previous id and returns the
// generation that owns id.
func (e *Engine) switchTo(id string) uint64 {
	e.debouncer.Cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.quietTimer != nil {
		e.quietTimer.Stop()
		e.quietTimer = nil
	}
	previous := e.current.ID
	e.generation++
	e.detector.Reset(previous)
	e.detector.Reset(id)
	e.current = proposal.Proposal{}
	e.loaded = false
	e.status = StatusIdle
	e.source = ""
	e.quiet = false
	e.quietPending = false
	e.lastSaved = time.Time{}
	e.lastSynced = time.Time{}
	e.lastErr = nil
	return e.generation
}

func (e *Engine) enterQuietLocked(gen uint64) {
	if e.opts.QuietWindow == 0 {
		return
	}
	e.quiet = true
	e.quietPending = false
	e.quietTimer = e.opts.Clock.AfterFunc(e.opts.QuietWindow, func() {
		e.notifyMu.Lock()
		defer e.notifyMu.Unlock()

		e.mu.Lock()
		if gen != e.generation || !e.quiet {
			e.mu.Unlock()
			return
		}
		e.quietTimer = nil
		changed := e.leaveQuietLocked()
		state, subs := e.broadcastLocked()
		e.mu.Unlock()

		if changed {
			deliver(subs, state)
		}
	})
}

// leaveQuietLocked ends the quiescent window and runs the one save that was
// held back, if any edits happened during it.
func (e *Engine) leaveQuietLocked() bool {
	if e.quietTimer != nil {
		e.quietTimer.Stop()
		e.quietTimer = nil
	}
	e.quiet = false
	if !e.quietPending {
		return false
	}
	e.quietPending = false
	e.observeLocked()
	return true
}

// observeLocked is the save path run after every committed change.
func (e *Engine) observeLocked() {
	if e.quiet {
		e.quietPending = true
		metrics.Saves.WithLabelValues("quiescent").Inc()
		return
	}

	id := e.current.ID
	snapshot := proposal.Snapshot{Proposal: e.current.Clone(), LastSaved: e.opts.Clock.Now().UTC()}
	fp, changed, err := e.detector.Check(id, snapshot)
	if err != nil {
		e.log.Error().Err(err).Str("proposal_id", id).Msg("fingerprint snapshot")
		return
	}
	if !changed {
		metrics.Saves.WithLabelValues("unchanged").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.RemoteTimeout)
	err = e.local.Save(ctx, snapshot)
	cancel()
	if err != nil {
		e.log.Warn().Err(err).Str("proposal_id", id).Msg("cache write failed")
	} else {
		e.detector.Record(id, fp)
		e.lastSaved = snapshot.LastSaved
	}
	metrics.Saves.WithLabelValues("written").Inc()

	e.status = StatusDirty
	gen := e.generation
	e.debouncer.Restart(e.opts.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.RemoteTimeout)
		defer cancel()
		_ = e.sync(ctx, gen)
	})
}

// sync writes the summary of the latest state for generation gen.
func (e *Engine) sync(ctx context.Context, gen uint64) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	if gen != e.generation || !e.loaded {
		e.mu.Unlock()
		return nil
	}
	if e.status != StatusDirty {
		e.mu.Unlock()
		return nil
	}
	snapshot := e.current.Clone()
	summary := pricing.Summarize(snapshot, e.opts.Clock.Now())
	e.status = StatusSaving
	e.mu.Unlock()
	e.publish()

	log := e.log.With().Str("proposal_id", snapshot.ID).Logger()
	stored, err := e.remote.UpdateProposal(ctx, snapshot.ID, summary)
	if err != nil {
		metrics.RemoteWrites.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("remote write failed; next change will retry")
	} else {
		metrics.RemoteWrites.WithLabelValues("ok").Inc()
		log.Debug().Float64("total_value", stored.TotalValue).Int("progress", stored.Progress).Msg("remote write")
	}

	e.mu.Lock()
	hooks := append([]SyncedHook(nil), e.hooks...)
	if gen == e.generation {
		if err != nil {
			e.lastErr = err
			e.status = StatusDirty
		} else {
			e.lastErr = nil
			e.lastSynced = stored.UpdatedAt
			if e.status == StatusSaving {
				e.status = StatusIdle
			}
		}
	}
	e.mu.Unlock()
	e.publish()

	if err != nil {
		return err
	}
	for _, hook := range hooks {
		if hookErr := hook(ctx, snapshot, stored); hookErr != nil {
			log.Warn().Err(hookErr).Msg("post-sync hook failed")
		}
	}
	return nil
}

func behindRemote(remote *proposal.Summary, cached *proposal.Snapshot) bool {
	if cached == nil || cached.LastSaved.IsZero() {
		return false
	}
	return remote == nil || cached.LastSaved.After(remote.UpdatedAt)
}

func (e *Engine) publish() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	if !e.loaded {
		e.mu.Unlock()
		return
	}
	state, subs := e.broadcastLocked()
	e.mu.Unlock()
	deliver(subs, state)
}

func (e *Engine) stateLocked() State {
	state := State{
		Status:     e.status,
		Source:     e.source,
		LastSaved:  e.lastSaved,
		LastSynced: e.lastSynced,
	}
	if e.loaded {
		state.Proposal = e.current.Clone()
	}
	if e.lastErr != nil {
		state.LastError = e.lastErr.Error()
	}
	return state
}

func (e *Engine) broadcastLocked() (State, []func(State)) {
	subs := make([]func(State), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	return e.stateLocked(), subs
}

func deliver(subs []func(State), state State) {
	for _, fn := range subs {
		fn(state)
	}
}
