// Package tracker is the client half of the usability instrumentation:
// a session state machine embedded in the instrumented UI. It owns one
// session's identity, the locally persisted counters, the inactivity
// countdown, and the network calls to the session action dispatcher.
package tracker

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/thebuddyman/v0-notion-usability-testing/models"
	"github.com/thebuddyman/v0-notion-usability-testing/utils"
)

// State of the tracker's lifecycle.
type State int

const (
	// StateUninitialized is only observable on a nil tracker, before
	// any client-side code has constructed one. All operations on a
	// nil tracker are no-ops.
	StateUninitialized State = iota
	StateStarting
	StateActive
	StateResetting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateResetting:
		return "resetting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ActivityKind is one of the user-interaction signals that reset the
// inactivity countdown.
type ActivityKind string

const (
	ActivityPointerDown ActivityKind = "pointerdown"
	ActivityPointerMove ActivityKind = "pointermove"
	ActivityKeyPress    ActivityKind = "keypress"
	ActivityScroll      ActivityKind = "scroll"
	ActivityTouchStart  ActivityKind = "touchstart"
	ActivityClick       ActivityKind = "click"
)

func (k ActivityKind) valid() bool {
	switch k {
	case ActivityPointerDown, ActivityPointerMove, ActivityKeyPress,
		ActivityScroll, ActivityTouchStart, ActivityClick:
		return true
	default:
		return false
	}
}

const (
	defaultInactivityTimeout = 30 * time.Second
	defaultHintRetryDelay    = 2 * time.Second

	// Budgets for pushes the caller does not wait on.
	pushBudget         = 5 * time.Second
	exitFallbackBudget = 2 * time.Second
)

// Config wires a Tracker's collaborators. Storage and Transport are
// required; everything else has defaults.
type Config struct {
	Storage   Storage
	Transport Transport

	// EntryPath is the funnel's first page. Step views start counted
	// at 1 for it, so visiting it never increments the counter.
	EntryPath string

	InactivityTimeout time.Duration
	HintRetryDelay    time.Duration
}

// Tracker is the session state machine. One logical instance exists
// per instrumented UI process; it survives page navigations through
// its Storage and mirrors its counters to the remote record via the
// Transport.
type Tracker struct {
	storage           Storage
	transport         Transport
	entryPath         string
	inactivityTimeout time.Duration
	hintRetryDelay    time.Duration

	mu              sync.Mutex
	state           State
	starting        bool
	terminalSent    bool
	sessionID       string
	recordID        string
	hintClicks      int
	stepCount       int
	lastTrackedPath string
	trackedPaths    map[string]struct{}
	inactivity      *time.Timer
}

// New builds a tracker, restoring any state a previous page load
// persisted, and arms inactivity tracking.
func New(cfg Config) (*Tracker, error) {
	if cfg.Storage == nil {
		return nil, errors.New("tracker: Config.Storage is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("tracker: Config.Transport is required")
	}
	if cfg.EntryPath == "" {
		cfg.EntryPath = "/"
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = defaultInactivityTimeout
	}
	if cfg.HintRetryDelay <= 0 {
		cfg.HintRetryDelay = defaultHintRetryDelay
	}

	t := &Tracker{
		storage:           cfg.Storage,
		transport:         cfg.Transport,
		entryPath:         cfg.EntryPath,
		inactivityTimeout: cfg.InactivityTimeout,
		hintRetryDelay:    cfg.HintRetryDelay,
		state:             StateActive,
		stepCount:         1,
		lastTrackedPath:   cfg.EntryPath,
		trackedPaths:      map[string]struct{}{cfg.EntryPath: {}},
	}

	if id, ok := cfg.Storage.Get(KeySessionID); ok && id != "" {
		t.sessionID = id
	} else {
		t.sessionID = utils.GenerateSessionID()
		t.persist(KeySessionID, t.sessionID)
	}
	if id, ok := cfg.Storage.Get(KeyRecordID); ok {
		t.recordID = id
	}
	if raw, ok := cfg.Storage.Get(KeyHintClicks); ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			t.hintClicks = n
		}
	}
	if raw, ok := cfg.Storage.Get(KeyStepCount); ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			t.stepCount = n
		}
	}
	if path, ok := cfg.Storage.Get(KeyLastPath); ok && path != "" {
		t.lastTrackedPath = path
		t.trackedPaths[path] = struct{}{}
	}
	if raw, ok := cfg.Storage.Get(KeyTrackedPaths); ok {
		for _, path := range strings.Split(raw, "\n") {
			if path != "" {
				t.trackedPaths[path] = struct{}{}
			}
		}
	}

	t.mu.Lock()
	t.armInactivityLocked()
	t.mu.Unlock()

	return t, nil
}

var (
	sharedMu sync.Mutex
	shared   *Tracker
)

// Shared returns the process-wide tracker, creating it on the first
// call. Later calls return the existing handle and ignore cfg; this is
// the reuse-if-exists contract that keeps UI remounts from creating a
// second tracker and double-starting sessions.
func Shared(cfg Config) (*Tracker, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	shared = t
	return t, nil
}

func (t *Tracker) persistTrackedPathsLocked() {
	paths := make([]string, 0, len(t.trackedPaths))
	for path := range t.trackedPaths {
		paths = append(paths, path)
	}
	t.persist(KeyTrackedPaths, strings.Join(paths, "\n"))
}

func (t *Tracker) persist(key, value string) {
	if err := t.storage.Set(key, value); err != nil {
		log.Printf("tracker: failed to persist %s: %v", key, err)
	}
}

// State reports the current lifecycle state.
func (t *Tracker) State() State {
	if t == nil {
		return StateUninitialized
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) SessionID() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *Tracker) RecordID() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recordID
}

func (t *Tracker) HintClicks() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hintClicks
}

func (t *Tracker) StepCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stepCount
}

// Start creates the remote session record. A tracker that already
// holds a record id does nothing, which guards against double creation
// on remount; a failed start leaves the record id empty and callers
// retry opportunistically on a later page.
func (t *Tracker) Start(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.recordID != "" || t.starting {
		t.mu.Unlock()
		return nil
	}
	t.starting = true
	if t.state != StateResetting {
		t.state = StateStarting
	}
	sessionID := t.sessionID
	t.mu.Unlock()

	resp, err := t.transport.Send(ctx, models.SessionActionRequest{
		Action:    "start",
		SessionID: sessionID,
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.starting = false
	if t.state == StateStarting {
		t.state = StateActive
	}
	if err != nil {
		log.Printf("tracker: failed to start session %s: %v", sessionID, err)
		return err
	}
	if resp == nil || resp.PageID == "" {
		log.Printf("tracker: start action returned no record id for session %s", sessionID)
		return errors.New("tracker: start action returned no record id")
	}
	if t.sessionID != sessionID {
		// A reset raced the start call; the returned record belongs to
		// the old session, drop it.
		return nil
	}
	t.recordID = resp.PageID
	t.persist(KeyRecordID, resp.PageID)
	return nil
}

// RecordStepView counts progress to a funnel page. Each path counts at
// most once per session, so reloads, back-navigation and revisits of an
// earlier page never double-count. The counter is persisted before the
// remote push; push failures are logged and never retried.
func (t *Tracker) RecordStepView(ctx context.Context, path string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if path == "" {
		t.mu.Unlock()
		return
	}
	if _, seen := t.trackedPaths[path]; seen {
		if path != t.lastTrackedPath {
			t.lastTrackedPath = path
			t.persist(KeyLastPath, path)
		}
		t.mu.Unlock()
		return
	}
	t.stepCount++
	t.lastTrackedPath = path
	t.trackedPaths[path] = struct{}{}
	t.persist(KeyStepCount, strconv.Itoa(t.stepCount))
	t.persist(KeyLastPath, path)
	t.persistTrackedPathsLocked()
	count := t.stepCount
	sessionID := t.sessionID
	recordID := t.recordID
	t.mu.Unlock()

	if recordID == "" {
		log.Printf("tracker: step view recorded locally, no record id yet (session=%s count=%d)", sessionID, count)
		return
	}

	push := models.SessionActionRequest{
		Action:    "update_steps",
		SessionID: sessionID,
		PageID:    recordID,
		StepCount: count,
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushBudget)
		defer cancel()
		if _, err := t.transport.Send(sendCtx, push); err != nil {
			log.Printf("tracker: failed to push step count %d: %v", count, err)
		}
	}()
}

// RecordHintClick bumps the hint counter locally first, independent of
// network state. When the record id is still unknown the push is
// deferred once by a short delay on the assumption the start call is
// in flight; after that it is given up on (the next click pushes the
// full count anyway, the remote field is an overwrite).
func (t *Tracker) RecordHintClick(ctx context.Context) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.hintClicks++
	t.persist(KeyHintClicks, strconv.Itoa(t.hintClicks))
	count := t.hintClicks
	sessionID := t.sessionID
	recordID := t.recordID
	t.mu.Unlock()

	if recordID == "" {
		time.AfterFunc(t.hintRetryDelay, func() {
			t.mu.Lock()
			count := t.hintClicks
			sessionID := t.sessionID
			recordID := t.recordID
			t.mu.Unlock()
			if recordID == "" {
				log.Printf("tracker: hint clicks not pushed, record id still unknown (session=%s)", sessionID)
				return
			}
			t.pushHintClicks(context.Background(), sessionID, recordID, count)
		})
		return
	}

	sendCtx := context.WithoutCancel(ctx)
	go t.pushHintClicks(sendCtx, sessionID, recordID, count)
}

func (t *Tracker) pushHintClicks(ctx context.Context, sessionID, recordID string, count int) {
	sendCtx, cancel := context.WithTimeout(ctx, pushBudget)
	defer cancel()
	_, err := t.transport.Send(sendCtx, models.SessionActionRequest{
		Action:     "update_hints",
		SessionID:  sessionID,
		PageID:     recordID,
		HintClicks: count,
	})
	if err != nil {
		log.Printf("tracker: failed to push hint clicks %d: %v", count, err)
	}
}

// MarkSuccess records the terminal success outcome. The inactivity
// timer is disarmed before anything else so a late-firing abandonment
// cannot overwrite the success. The call is awaited; callers must wait
// for it before navigating away or the request dies with the page.
func (t *Tracker) MarkSuccess(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	t.disarmInactivityLocked()
	if t.terminalSent {
		t.mu.Unlock()
		return nil
	}
	if t.recordID == "" {
		// Nothing was dispatched, so nothing is latched: a later
		// opportunistic start can still be followed by a success.
		sessionID := t.sessionID
		t.mu.Unlock()
		log.Printf("tracker: cannot mark success without a record id (session=%s)", sessionID)
		return nil
	}
	t.terminalSent = true
	t.state = StateTerminated
	sessionID := t.sessionID
	recordID := t.recordID
	t.mu.Unlock()

	_, err := t.transport.Send(ctx, models.SessionActionRequest{
		Action:    "success",
		SessionID: sessionID,
		PageID:    recordID,
	})
	if err != nil {
		log.Printf("tracker: failed to mark session successful: %v", err)
	}
	return err
}

// MarkExit records a failed outcome at page teardown. Delivery is best
// effort: the transport's fire-and-forget path when available, an
// awaited call with a small time budget otherwise. Either way the
// caller is never blocked on confirmation.
func (t *Tracker) MarkExit() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.disarmInactivityLocked()
	if t.terminalSent {
		t.mu.Unlock()
		return
	}
	t.terminalSent = true
	t.state = StateTerminated
	sessionID := t.sessionID
	recordID := t.recordID
	t.mu.Unlock()

	if recordID == "" {
		log.Printf("tracker: exit with no record id, nothing to update (session=%s)", sessionID)
		return
	}

	req := models.SessionActionRequest{
		Action:    "exit",
		SessionID: sessionID,
		PageID:    recordID,
	}
	if t.transport.BestEffortSend(req) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), exitFallbackBudget)
	defer cancel()
	if _, err := t.transport.Send(ctx, req); err != nil {
		log.Printf("tracker: exit fallback delivery failed: %v", err)
	}
}

// ResetAndStartNewSession begins a fresh funnel traversal: new session
// id, cleared counters, cleared record id, then a start call. The
// Resetting state guards against overlapping resets from rapid
// remounts and is released only when the underlying start completes.
func (t *Tracker) ResetAndStartNewSession(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if t.state == StateResetting {
		t.mu.Unlock()
		return nil
	}
	t.state = StateResetting
	t.disarmInactivityLocked()
	t.terminalSent = false
	t.recordID = ""
	t.hintClicks = 0
	t.stepCount = 1
	t.lastTrackedPath = t.entryPath
	t.trackedPaths = map[string]struct{}{t.entryPath: {}}
	t.sessionID = utils.GenerateSessionID()
	t.persist(KeySessionID, t.sessionID)
	if err := t.storage.Delete(KeyRecordID); err != nil {
		log.Printf("tracker: failed to clear %s: %v", KeyRecordID, err)
	}
	t.persist(KeyHintClicks, "0")
	t.persist(KeyStepCount, "1")
	t.persist(KeyLastPath, t.entryPath)
	t.persistTrackedPathsLocked()
	t.mu.Unlock()

	err := t.Start(ctx)

	t.mu.Lock()
	// A terminal update for the old session may have slipped in while
	// the start call was in flight; it must not poison the new one.
	t.terminalSent = false
	t.state = StateActive
	t.armInactivityLocked()
	t.mu.Unlock()
	return err
}

// RecordActivity rearms the inactivity countdown for a recognized
// interaction signal. After a terminal update the countdown stays
// disarmed for good.
func (t *Tracker) RecordActivity(kind ActivityKind) {
	if t == nil || !kind.valid() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminalSent || t.state == StateResetting {
		return
	}
	t.armInactivityLocked()
}

// Teardown releases the inactivity timer. Called when the tracked UI
// context is being discarded; the persisted state stays behind for the
// next page load.
func (t *Tracker) Teardown() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.disarmInactivityLocked()
	t.mu.Unlock()
}

func (t *Tracker) armInactivityLocked() {
	if t.inactivity != nil {
		t.inactivity.Stop()
	}
	t.inactivity = time.AfterFunc(t.inactivityTimeout, t.onInactivity)
}

func (t *Tracker) disarmInactivityLocked() {
	if t.inactivity != nil {
		t.inactivity.Stop()
		t.inactivity = nil
	}
}

// onInactivity fires when the countdown elapses with no interaction.
// It sends the terminal abandon update once, then disarms itself. The
// terminalSent flag keeps the tracker at-most-once even if a cancelled
// timer managed to fire concurrently with MarkSuccess or MarkExit;
// the store tolerates the leftover race (last write wins).
func (t *Tracker) onInactivity() {
	t.mu.Lock()
	if t.terminalSent || t.state == StateResetting {
		t.mu.Unlock()
		return
	}
	t.terminalSent = true
	t.state = StateTerminated
	t.inactivity = nil
	sessionID := t.sessionID
	recordID := t.recordID
	t.mu.Unlock()

	if recordID == "" {
		log.Printf("tracker: inactivity timeout with no record id, nothing to abandon (session=%s)", sessionID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushBudget)
	defer cancel()
	_, err := t.transport.Send(ctx, models.SessionActionRequest{
		Action:    "abandon",
		SessionID: sessionID,
		PageID:    recordID,
	})
	if err != nil {
		log.Printf("tracker: failed to mark session abandoned: %v", err)
	}
}
