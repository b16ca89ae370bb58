package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/media"
)

const (
	retryCheckingMessage = "Checking enhancement status..."
	completedNotice      = "Your enhanced photo is ready."
)

// Dependencies are the external services a session talks to. Feed, Workflow and
// Artifacts are optional.
type Dependencies struct {
	Records   RecordFetcher
	Balances  BalanceFetcher
	Registrar Registrar
	Feed      ChangeFeed
	Workflow  Workflow
	Artifacts ArtifactDeleter
}

func (d Dependencies) validate() error {
	switch {
	case d.Records == nil:
		return errors.New("tracker: record fetcher is required")
	case d.Balances == nil:
		return errors.New("tracker: balance fetcher is required")
	case d.Registrar == nil:
		return errors.New("tracker: registrar is required")
	}
	return nil
}

// Options tune a session. Zero values fall back to defaults.
type Options struct {
	Clock  Clock
	Policy PollPolicy
	Stages []Stage
	Limits media.Limits
	NewID  func() string
	Logger *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Policy.MaxDuration == 0 && len(o.Policy.Steps) == 0 {
		o.Policy = DefaultPollPolicy()
	}
	if len(o.Stages) == 0 {
		o.Stages = DefaultStages
	}
	if o.Limits.MaxBytes == 0 {
		o.Limits = media.DefaultLimits()
	}
	if o.NewID == nil {
		o.NewID = newJobID
	}
	if o.Logger == nil {
		o.Logger = logger.GetDefault()
	}
	return o
}

// Session tracks one user's enhancement jobs from upload to a terminal state.
type Session struct {
	userID string
	deps   Dependencies
	clock  Clock
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	store     *Store
	presenter *Presenter
	poller    *Poller
	balance   *Balance
	blobs     *blobStore
	pipeline  *Pipeline
	channel   *ChannelAdapter

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewSession wires a session for userID. Background work is bound to a context
// derived from parent and ends on Close.
func NewSession(parent context.Context, userID string, deps Dependencies, opts Options) (*Session, error) {
	if userID == "" {
		return nil, errors.New("tracker: user id is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithCancel(parent)
	log := opts.Logger.WithFields(logger.Fields{
		logger.FieldUserID:    userID,
		logger.FieldComponent: "tracker",
	})

	s := &Session{
		userID: userID,
		deps:   deps,
		clock:  opts.Clock,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
		blobs:  newBlobStore(),
	}
	s.store = NewStore(opts.Clock)
	s.presenter = NewPresenter(opts.Stages, opts.Policy.MaxDuration)
	s.balance = NewBalance(userID, deps.Balances, s.store)
	s.poller = NewPoller(ctx, s.store, deps.Records, opts.Clock, opts.Policy, s.presenter, log)
	s.pipeline = &Pipeline{
		ctx:       ctx,
		userID:    userID,
		store:     s.store,
		poller:    s.poller,
		balance:   s.balance,
		blobs:     s.blobs,
		registrar: deps.Registrar,
		workflow:  deps.Workflow,
		artifacts: deps.Artifacts,
		limits:    opts.Limits,
		clock:     opts.Clock,
		newID:     opts.NewID,
		logger:    log,
	}
	if deps.Feed != nil {
		s.channel = NewChannelAdapter(s.store, deps.Feed, log)
	}
	s.store.OnTransition(s.onTransition)
	return s, nil
}

// Start loads the balance and opens the push channel. A failing feed leaves the
// session on polling alone.
func (s *Session) Start(ctx context.Context) {
	if _, err := s.balance.Refresh(ctx); err != nil {
		s.logger.WithError(err).Warn("Initial balance load failed")
	}
	if s.channel == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.channel.Run(s.ctx, s.userID); err != nil {
			s.logger.WithError(err).Warn("Change feed unavailable, relying on polling")
		}
	}()
}

// UserID returns the session owner.
func (s *Session) UserID() string { return s.userID }

// Submit validates and admits uploads. See Pipeline.Submit.
func (s *Session) Submit(ctx context.Context, uploads []Upload) ([]JobView, error) {
	if s.closed.Load() {
		return nil, domain.ErrSessionClosed
	}
	jobs, err := s.pipeline.Submit(ctx, uploads)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	views := make([]JobView, len(jobs))
	for i, job := range jobs {
		views[i] = s.presenter.View(job, now)
	}
	s.logger.WithField(logger.FieldCount, len(jobs)).Info("Jobs submitted")
	return views, nil
}

// Jobs lists every tracked job, newest first.
func (s *Session) Jobs() []JobView {
	now := s.clock.Now()
	jobs := s.store.List()
	views := make([]JobView, len(jobs))
	for i, job := range jobs {
		views[i] = s.presenter.View(job, now)
	}
	return views
}

// Job returns one job.
func (s *Session) Job(jobID string) (JobView, error) {
	job, ok := s.store.Get(jobID)
	if !ok {
		return JobView{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return s.presenter.View(job, s.clock.Now()), nil
}

// Retry re-checks a failed job against the record store. A job that completed
// remotely in the meantime becomes completed; one still running is polled again.
func (s *Session) Retry(ctx context.Context, jobID string) (JobView, error) {
	if s.closed.Load() {
		return JobView{}, domain.ErrSessionClosed
	}
	job, ok := s.store.Get(jobID)
	if !ok {
		return JobView{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if job.Status != domain.JobStatusFailed || job.RemoteRecordID == "" {
		return JobView{}, fmt.Errorf("%w: job %s is %s", domain.ErrNotRetryable, jobID, job.Status)
	}

	log := s.logger.WithJob(jobID, job.RemoteRecordID)
	record, err := s.deps.Records.FetchRecord(ctx, job.RemoteRecordID)
	if err != nil {
		log.WithError(err).Warn("Retry check failed")
		return JobView{}, fmt.Errorf("check record: %w", err)
	}

	sig := domain.Classify(record.Metadata)
	switch sig.Kind {
	case domain.SignalFailed:
		return JobView{}, fmt.Errorf("%w: %s", domain.ErrRemoteFailed, sig.Reason)
	case domain.SignalCompleted:
		if _, _, err := s.store.Apply(jobID, domain.Revived(retryCheckingMessage)); err != nil {
			return JobView{}, err
		}
		job, _, err = s.store.Apply(jobID, domain.Completed(sig.ResultURL))
		if err != nil {
			return JobView{}, err
		}
		log.Info("Retry found completed result")
		return s.presenter.View(job, s.clock.Now()), nil
	}

	// The hand-off never reached the workflow, so send it again before polling.
	if job.FailureKind == domain.FailureSubmissionFailed && s.deps.Workflow != nil {
		handoff := Handoff{JobID: jobID, RecordID: job.RemoteRecordID, UserID: s.userID, OriginalURL: job.OriginalURL}
		if err := s.deps.Workflow.Trigger(ctx, handoff); err != nil {
			return JobView{}, fmt.Errorf("restart enhancement: %w", err)
		}
	}

	message := sig.StatusText
	if message == "" {
		message = retryCheckingMessage
	}
	job, _, err = s.store.Apply(jobID, domain.Revived(message))
	if err != nil {
		return JobView{}, err
	}
	s.poller.Start(jobID, job.RemoteRecordID)
	log.Info("Retry resumed polling")
	return s.presenter.View(job, s.clock.Now()), nil
}

// Delete forgets a job, stops its polling and releases its original. Remote
// artifacts are removed best-effort.
func (s *Session) Delete(ctx context.Context, jobID string) error {
	job, ok := s.store.Remove(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	s.poller.Stop(jobID)
	s.blobs.delete(jobID)

	if s.deps.Artifacts == nil {
		return nil
	}
	log := s.logger.WithJob(jobID, job.RemoteRecordID)
	for _, locator := range []string{job.OriginalURL, job.ResultURL} {
		if locator == "" {
			continue
		}
		if err := s.deps.Artifacts.DeleteArtifact(ctx, locator); err != nil {
			log.WithError(err).WithField("locator", locator).Warn("Artifact cleanup failed")
		}
	}
	return nil
}

// Original returns the uploaded bytes of a job.
func (s *Session) Original(jobID string) (Blob, error) {
	b, ok := s.blobs.get(jobID)
	if !ok {
		return Blob{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return b, nil
}

// Preview returns a JPEG thumbnail of a job's original.
func (s *Session) Preview(jobID string) ([]byte, error) {
	b, err := s.Original(jobID)
	if err != nil {
		return nil, err
	}
	return media.Preview(b.Data, media.PreviewSize)
}

// Balance refreshes and returns the token balance.
func (s *Session) Balance(ctx context.Context) (int, error) {
	return s.balance.Refresh(ctx)
}

// CachedBalance returns the last fetched balance.
func (s *Session) CachedBalance() (int, bool) {
	return s.balance.Get()
}

// Subscribe streams job, notification and balance updates.
func (s *Session) Subscribe() (<-chan Update, func()) {
	return s.store.Subscribe()
}

// Close stops polling and the push channel, waits for in-flight registrations
// and drops the originals. It is safe to call more than once.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.pipeline.shutdown()
	s.cancel()
	s.poller.StopAll()
	s.pipeline.Wait()
	s.wg.Wait()
	s.store.CloseSubscribers()
	s.blobs.clear()
	s.logger.Info("Session closed")
}

func (s *Session) onTransition(before, after domain.Job) {
	if before.Status == after.Status {
		return
	}
	switch after.Status {
	case domain.JobStatusCompleted:
		s.store.Notify(Notification{JobID: after.ID, Level: "success", Message: completedNotice})
		s.logger.WithJob(after.ID, after.RemoteRecordID).Info("Job completed")
		if _, err := s.balance.Refresh(s.ctx); err != nil {
			s.logger.WithError(err).Warn("Balance refresh after completion failed")
		}
	case domain.JobStatusFailed:
		s.store.Notify(Notification{JobID: after.ID, Level: "error", Message: after.Error})
		s.logger.WithJob(after.ID, after.RemoteRecordID).
			WithField("failure", string(after.FailureKind)).
			Warn("Job failed")
	}
}
