package usecase

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	obsctx "github.com/fairyhunter13/interview-coach/internal/observability"
)

// maxWaitFactor bounds how long continuous activity can postpone a write.
const maxWaitFactor = 5

// sessionPersister coalesces bursts of session changes into one blob write.
// Only the latest blob is kept; a write already in flight suppresses a
// concurrent one and the pending change is written once it finishes.
type sessionPersister struct {
	store       domain.SessionStore
	userID      string
	interviewID string
	delay       time.Duration
	timeout     time.Duration
	logger      *slog.Logger

	mu         sync.Mutex
	latest     []byte
	dirty      bool
	timer      *time.Timer
	firstDirty time.Time

	inFlight atomic.Bool
	writeMu  sync.Mutex
}

func newSessionPersister(ctx context.Context, store domain.SessionStore, userID, interviewID string, delay, timeout time.Duration) *sessionPersister {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &sessionPersister{
		store:       store,
		userID:      userID,
		interviewID: interviewID,
		delay:       delay,
		timeout:     timeout,
		logger:      obsctx.LoggerFromContext(ctx).With(slog.String("user_id", userID), slog.String("interview_id", interviewID)),
	}
}

// Schedule records blob as the state to persist and (re)arms the debounce timer.
func (p *sessionPersister) Schedule(blob []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if !p.dirty {
		p.firstDirty = now
	}
	p.latest = blob
	p.dirty = true

	wait := p.delay
	if deadline := p.firstDirty.Add(p.delay * maxWaitFactor); now.Add(wait).After(deadline) {
		wait = max(time.Until(deadline), 0)
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(wait, p.fire)
		return
	}
	p.timer.Reset(wait)
}

func (p *sessionPersister) fire() {
	if !p.inFlight.CompareAndSwap(false, true) {
		observability.PersistResult("suppressed")
		return
	}
	p.writeLatest()
	p.inFlight.Store(false)

	// Changes that arrived during the write go out on the next debounce.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty && p.timer != nil {
		p.timer.Reset(p.delay)
	}
}

// writeLatest persists the pending blob, if any. Failures are logged only; the
// in-memory session stays authoritative.
func (p *sessionPersister) writeLatest() {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	blob, dirty := p.latest, p.dirty
	p.dirty = false
	p.mu.Unlock()
	if !dirty {
		return
	}

	ctx, cancel := context.WithTimeout(obsctx.ContextWithLogger(context.Background(), p.logger), p.timeout)
	defer cancel()
	if err := p.store.Upsert(ctx, p.userID, p.interviewID, blob); err != nil {
		observability.PersistResult("error")
		p.logger.Error("session persist failed", slog.Any("error", err))
		return
	}
	observability.PersistResult("ok")
}

// Flush writes any pending blob now.
func (p *sessionPersister) Flush() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
	p.writeLatest()
}

// Cancel drops any pending write and waits for one in flight to finish.
func (p *sessionPersister) Cancel() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.latest = nil
	p.dirty = false
	p.mu.Unlock()

	p.writeMu.Lock()
	p.writeMu.Unlock() //nolint:staticcheck // empty critical section waits for the writer
}

// Pending reports whether a change has not been written yet.
func (p *sessionPersister) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}
