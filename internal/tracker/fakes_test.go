package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
)

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward by d, running every timer that comes due on the way.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()

		next.f()
	}
}

// Pending counts armed timers.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeRecords struct {
	mu       sync.Mutex
	meta     map[string]domain.Metadata
	err      error
	failNext int
	calls    int
	// onFetch runs before each fetch answers, outside the lock.
	onFetch func()
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{meta: make(map[string]domain.Metadata)}
}

func (f *fakeRecords) FetchRecord(_ context.Context, id string) (*domain.JobRecord, error) {
	f.mu.Lock()
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("connection reset")
	}
	if f.err != nil {
		return nil, f.err
	}
	meta, ok := f.meta[id]
	if !ok {
		meta = domain.Metadata{}
	}
	return &domain.JobRecord{ID: id, UserID: testUser, Metadata: meta}, nil
}

func (f *fakeRecords) set(id string, meta domain.Metadata) {
	f.mu.Lock()
	f.meta[id] = meta
	f.mu.Unlock()
}

func (f *fakeRecords) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeRecords) failTimes(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

func (f *fakeRecords) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBalances struct {
	mu     sync.Mutex
	tokens int
	err    error
	calls  int
}

func (f *fakeBalances) Balance(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.tokens, nil
}

func (f *fakeBalances) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRegistrar struct {
	mu    sync.Mutex
	err   error
	calls []Registration
	// release, when set, holds every registration until it is closed.
	release chan struct{}
}

func (f *fakeRegistrar) Register(ctx context.Context, reg Registration) (Receipt, error) {
	f.mu.Lock()
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reg)
	if f.err != nil {
		return Receipt{}, f.err
	}
	return Receipt{
		RecordID:    "rec-" + reg.JobID,
		OriginalURL: "https://cdn.example.com/originals/" + reg.JobID + reg.Extension,
	}, nil
}

func (f *fakeRegistrar) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWorkflow struct {
	mu    sync.Mutex
	err   error
	calls []Handoff
}

func (f *fakeWorkflow) Trigger(_ context.Context, h Handoff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, h)
	return f.err
}

func (f *fakeWorkflow) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeWorkflow) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFeed struct {
	ch  chan domain.RecordChange
	err error
}

func (f *fakeFeed) Subscribe(_ context.Context, _ string) (<-chan domain.RecordChange, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

type fakeArtifacts struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeArtifacts) DeleteArtifact(_ context.Context, locator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, locator)
	return nil
}

func (f *fakeArtifacts) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

const testUser = "user-1"

type harness struct {
	session   *Session
	clock     *fakeClock
	records   *fakeRecords
	balances  *fakeBalances
	registrar *fakeRegistrar
	workflow  *fakeWorkflow
	artifacts *fakeArtifacts
	feed      *fakeFeed
}

func newHarness(t *testing.T, tokens int) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(),
		records:   newFakeRecords(),
		balances:  &fakeBalances{tokens: tokens},
		registrar: &fakeRegistrar{},
		workflow:  &fakeWorkflow{},
		artifacts: &fakeArtifacts{},
		feed:      &fakeFeed{ch: make(chan domain.RecordChange, 8)},
	}
	seq := 0
	s, err := NewSession(context.Background(), testUser, Dependencies{
		Records:   h.records,
		Balances:  h.balances,
		Registrar: h.registrar,
		Feed:      h.feed,
		Workflow:  h.workflow,
		Artifacts: h.artifacts,
	}, Options{
		Clock:  h.clock,
		Logger: logger.Discard(),
		NewID: func() string {
			seq++
			return fmt.Sprintf("job-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(s.Close)
	h.session = s
	return h
}

// submit uploads n valid photos and waits for their registration.
func (h *harness) submit(t *testing.T, n int) []JobView {
	t.Helper()
	uploads := make([]Upload, n)
	for i := range uploads {
		uploads[i] = Upload{FileName: fmt.Sprintf("dish-%d.png", i), Data: testPNG(t, 300, 300)}
	}
	views, err := h.session.Submit(context.Background(), uploads)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	h.session.pipeline.Wait()
	return views
}

func (h *harness) job(t *testing.T, id string) domain.Job {
	t.Helper()
	job, ok := h.session.store.Get(id)
	if !ok {
		t.Fatalf("job %s not tracked", id)
	}
	return job
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

var completedMeta = domain.Metadata{
	domain.MetaProcessingCompleted: true,
	domain.MetaEnhancedImageURL:    "https://cdn.example.com/enhanced/job-1.jpg",
}
