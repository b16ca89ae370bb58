package tracker

import (
	"fmt"
	"sync"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
)

// UpdateType tells subscribers what an Update carries.
type UpdateType string

const (
	UpdateJob          UpdateType = "job"
	UpdateRemoved      UpdateType = "removed"
	UpdateNotification UpdateType = "notification"
	UpdateBalance      UpdateType = "balance"
)

// Notification is a one-shot user-facing message about a job.
type Notification struct {
	JobID   string `json:"job_id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Update is broadcast to store subscribers.
type Update struct {
	Type         UpdateType    `json:"type"`
	Job          *domain.Job   `json:"job,omitempty"`
	JobID        string        `json:"job_id,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Balance      *int          `json:"balance,omitempty"`
}

// TransitionHook observes every applied state change. It runs after the store lock
// is released, on the goroutine that called Apply.
type TransitionHook func(before, after domain.Job)

const subscriberBuffer = 64

// Store owns the session's job collection. Apply is the only way job state changes.
type Store struct {
	clock Clock

	mu       sync.Mutex
	jobs     map[string]domain.Job
	order    []string
	byRecord map[string]string
	hooks    []TransitionHook
	subs     map[int]chan Update
	nextSub  int
}

// NewStore creates an empty store.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{
		clock:    clock,
		jobs:     make(map[string]domain.Job),
		byRecord: make(map[string]string),
		subs:     make(map[int]chan Update),
	}
}

// OnTransition registers a hook called for every state change.
func (s *Store) OnTransition(hook TransitionHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// Add inserts a new job. Job ids are never reused within a store.
func (s *Store) Add(job domain.Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s already tracked", job.ID)
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	if job.RemoteRecordID != "" {
		s.byRecord[job.RemoteRecordID] = job.ID
	}
	s.mu.Unlock()

	s.publish(Update{Type: UpdateJob, Job: &job})
	return nil
}

// Apply runs the transition function for one job and stores the result.
func (s *Store) Apply(jobID string, ev domain.Event) (domain.Job, bool, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return domain.Job{}, false, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	next, changed := domain.Transition(job, ev, s.clock.Now())
	if !changed {
		s.mu.Unlock()
		return job, false, nil
	}
	s.jobs[jobID] = next
	if next.RemoteRecordID != "" {
		s.byRecord[next.RemoteRecordID] = jobID
	}
	hooks := append([]TransitionHook(nil), s.hooks...)
	s.mu.Unlock()

	s.publish(Update{Type: UpdateJob, Job: &next})
	for _, hook := range hooks {
		hook(job, next)
	}
	return next, true, nil
}

// Get returns a copy of one job.
func (s *Store) Get(jobID string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// FindByRecord maps a record store id back to the tracked job.
func (s *Store) FindByRecord(recordID string) (domain.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobID, ok := s.byRecord[recordID]
	if !ok {
		return domain.Job{}, false
	}
	job, ok := s.jobs[jobID]
	return job, ok
}

// List returns all jobs, newest first.
func (s *Store) List() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.jobs[s.order[i]])
	}
	return out
}

// Remove drops a job from the collection.
func (s *Store) Remove(jobID string) (domain.Job, bool) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return domain.Job{}, false
	}
	delete(s.jobs, jobID)
	if job.RemoteRecordID != "" {
		delete(s.byRecord, job.RemoteRecordID)
	}
	for i, id := range s.order {
		if id == jobID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.publish(Update{Type: UpdateRemoved, JobID: jobID})
	return job, true
}

// Subscribe returns a channel of updates and a function that ends the subscription.
// Slow subscribers miss updates rather than block writers.
func (s *Store) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// CloseSubscribers ends every subscription.
func (s *Store) CloseSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Notify broadcasts a one-shot notification.
func (s *Store) Notify(n Notification) {
	s.publish(Update{Type: UpdateNotification, JobID: n.JobID, Notification: &n})
}

// PublishBalance broadcasts a refreshed token balance.
func (s *Store) PublishBalance(tokens int) {
	s.publish(Update{Type: UpdateBalance, Balance: &tokens})
}

func (s *Store) publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
