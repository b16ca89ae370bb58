package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
)

const (
	connectivityMessage = "Lost connection to the enhancement service. Please retry."
	timeoutMessage      = "Enhancement is taking longer than expected. Please retry to check again."
)

// pollHandle is the liveness token of one job's polling loop. A timer only
// acts when its generation still matches the live handle for the job.
type pollHandle struct {
	gen      uint64
	recordID string
	timer    Timer
}

// Poller checks the record of every processing job until it reaches a terminal
// state, runs out of time, or the record store stays unreachable.
type Poller struct {
	ctx       context.Context
	store     *Store
	fetcher   RecordFetcher
	clock     Clock
	policy    PollPolicy
	presenter *Presenter
	logger    *logger.Logger

	mu      sync.Mutex
	handles map[string]*pollHandle
	gen     uint64
}

// NewPoller creates a poller bound to ctx. Any terminal transition applied to the
// store, by whichever producer, stops the job's loop.
func NewPoller(ctx context.Context, store *Store, fetcher RecordFetcher, clock Clock, policy PollPolicy, presenter *Presenter, log *logger.Logger) *Poller {
	p := &Poller{
		ctx:       ctx,
		store:     store,
		fetcher:   fetcher,
		clock:     clock,
		policy:    policy,
		presenter: presenter,
		logger:    log,
		handles:   make(map[string]*pollHandle),
	}
	store.OnTransition(func(before, after domain.Job) {
		if after.Status.IsTerminal() && !before.Status.IsTerminal() {
			p.Stop(after.ID)
		}
	})
	return p
}

// Start begins polling recordID for jobID. Starting a job that is already being
// polled is a no-op and returns false.
func (p *Poller) Start(jobID, recordID string) bool {
	job, ok := p.store.Get(jobID)
	if !ok || job.Status != domain.JobStatusProcessing {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, live := p.handles[jobID]; live {
		return false
	}
	p.gen++
	h := &pollHandle{gen: p.gen, recordID: recordID}
	p.handles[jobID] = h
	p.scheduleLocked(jobID, h, p.policy.Interval(job.Elapsed(p.clock.Now())))

	p.logger.WithJob(jobID, recordID).Debug("Polling started")
	return true
}

// Stop cancels the loop for jobID. Stopping a job that is not polled is a no-op.
func (p *Poller) Stop(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[jobID]
	if !ok {
		return false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	delete(p.handles, jobID)
	return true
}

// StopAll cancels every loop.
func (p *Poller) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, h := range p.handles {
		if h.timer != nil {
			h.timer.Stop()
		}
		delete(p.handles, id)
	}
}

// Active reports whether jobID has a live loop.
func (p *Poller) Active(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handles[jobID]
	return ok
}

// scheduleLocked arms the next tick. Callers hold p.mu and h must be live.
func (p *Poller) scheduleLocked(jobID string, h *pollHandle, delay time.Duration) {
	gen := h.gen
	h.timer = p.clock.AfterFunc(delay, func() { p.fire(jobID, gen) })
}

// schedule re-arms a loop unless it was stopped while the tick was running.
func (p *Poller) schedule(jobID string, gen uint64, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[jobID]
	if !ok || h.gen != gen {
		return
	}
	p.scheduleLocked(jobID, h, delay)
}

func (p *Poller) live(jobID string, gen uint64) (*pollHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[jobID]
	if !ok || h.gen != gen {
		return nil, false
	}
	return h, true
}

func (p *Poller) fire(jobID string, gen uint64) {
	h, ok := p.live(jobID, gen)
	if !ok {
		return
	}
	if p.ctx.Err() != nil {
		p.Stop(jobID)
		return
	}
	p.tick(jobID, h.recordID, gen)
}

func (p *Poller) tick(jobID, recordID string, gen uint64) {
	log := p.logger.WithJob(jobID, recordID)

	job, ok := p.store.Get(jobID)
	if !ok || job.Status != domain.JobStatusProcessing {
		p.Stop(jobID)
		return
	}

	elapsed := job.Elapsed(p.clock.Now())
	if p.policy.MaxDuration > 0 && elapsed > p.policy.MaxDuration {
		log.WithField("elapsed", elapsed.String()).Warn("Polling gave up: duration cap reached")
		p.apply(jobID, domain.Failed(domain.FailureTimeout, timeoutMessage))
		p.Stop(jobID)
		return
	}

	record, err := p.fetcher.FetchRecord(p.ctx, recordID)

	// The loop may have been cancelled while the fetch was in flight.
	if _, ok := p.live(jobID, gen); !ok {
		return
	}

	if err != nil {
		if p.ctx.Err() != nil {
			p.Stop(jobID)
			return
		}
		p.handleFetchError(jobID, gen, err, log)
		return
	}

	sig := domain.Classify(record.Metadata)
	if sig.Kind.IsTerminal() {
		ev, _ := sig.Event()
		p.apply(jobID, ev)
		p.Stop(jobID)
		log.WithField(logger.FieldStatus, string(ev.Kind)).Info("Polling observed terminal state")
		return
	}

	message := sig.StatusText
	if message == "" {
		message = p.presenter.StageMessage(elapsed)
	}
	p.apply(jobID, domain.ProgressTick(p.presenter.Percent(elapsed), message))

	next := p.policy.Interval(elapsed)
	log.WithField(logger.FieldIntervalMs, next.Milliseconds()).Debug("Job still processing")
	p.schedule(jobID, gen, next)
}

func (p *Poller) handleFetchError(jobID string, gen uint64, err error, log *logger.Logger) {
	job, _, applyErr := p.store.Apply(jobID, domain.CheckFailed())
	if applyErr != nil || job.Status != domain.JobStatusProcessing {
		p.Stop(jobID)
		return
	}

	log.WithError(err).WithField(logger.FieldAttempt, job.ConsecutiveErrors).Warn("Status check failed")

	if job.ConsecutiveErrors >= p.policy.MaxErrors {
		p.apply(jobID, domain.Failed(domain.FailureConnectivityExhausted, connectivityMessage))
		p.Stop(jobID)
		return
	}
	p.schedule(jobID, gen, p.policy.MinInterval)
}

func (p *Poller) apply(jobID string, ev domain.Event) {
	if _, _, err := p.store.Apply(jobID, ev); err != nil {
		p.logger.WithError(err).WithField(logger.FieldJobID, jobID).Debug("Dropped poll result")
	}
}
