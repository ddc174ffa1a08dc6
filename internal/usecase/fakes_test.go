package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	upserts   int
	deletes   int
	getErr    error
	upsertErr error
	deleteErr error
	delay     time.Duration
	active    atomic.Int32
	overlap   atomic.Bool
}

func newMemStore() *memStore { return &memStore{blobs: map[string][]byte{}} }

func storeKey(u, i string) string { return u + "/" + i }

func (m *memStore) Get(_ domain.Context, u, i string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	b, ok := m.blobs[storeKey(u, i)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Upsert(_ domain.Context, u, i string, blob []byte) error {
	if m.active.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.active.Add(-1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.blobs[storeKey(u, i)] = append([]byte(nil), blob...)
	return nil
}

func (m *memStore) Delete(_ domain.Context, u, i string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.blobs, storeKey(u, i))
	return nil
}

func (m *memStore) session(u, i string) (*domain.InterviewSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[storeKey(u, i)]
	if !ok {
		return nil, false
	}
	var s domain.InterviewSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func (m *memStore) put(u, i string, s *domain.InterviewSession) {
	b, _ := json.Marshal(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[storeKey(u, i)] = b
}

func (m *memStore) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

type refundCall struct {
	amount int64
	reason string
}

type fakeLedger struct {
	mu        sync.Mutex
	balance   int64
	spends    []int64
	refunds   []refundCall
	spendErr  error
	refundErr error
}

func (l *fakeLedger) CheckAndSpend(_ domain.Context, userID string, amount int64, _, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if userID == "" {
		return false, domain.ErrUnauthenticated
	}
	if l.spendErr != nil {
		return false, l.spendErr
	}
	if l.balance < amount {
		return false, domain.ErrInsufficientCredits
	}
	l.balance -= amount
	l.spends = append(l.spends, amount)
	return true, nil
}

func (l *fakeLedger) Refund(_ domain.Context, _ string, amount int64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds = append(l.refunds, refundCall{amount: amount, reason: reason})
	if l.refundErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrRefundFailed, l.refundErr)
	}
	l.balance += amount
	return nil
}

func (l *fakeLedger) spendCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.spends)
}

// scriptedCompleter answers interview prompts with numbered questions and
// analysis prompts with a fixed score set. Hooks override either.
type scriptedCompleter struct {
	mu          sync.Mutex
	questions   int
	calls       map[string]int
	onInterview func(n int) (string, error)
	onAnalysis  func(n int) (string, error)
}

func (c *scriptedCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[req.Type]++
	n := c.calls[req.Type]
	switch req.Type {
	case domain.CompletionAnswerAnalysis:
		if c.onAnalysis != nil {
			return c.onAnalysis(n)
		}
		return `{"scores":{"clarity":80,"relevance":70,"depth":90,"confidence":60},"feedback":"Clear structure but add measurable results"}`, nil
	default:
		if c.onInterview != nil {
			return c.onInterview(n)
		}
		c.questions++
		return fmt.Sprintf("Thanks. Question %d: tell me about a project you led?", c.questions), nil
	}
}

func (c *scriptedCompleter) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[kind]
}
