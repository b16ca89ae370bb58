package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/media"
)

const insufficientTokensMessage = "Not enough tokens to enhance this photo."

// Upload is one image the user asked to enhance.
type Upload struct {
	FileName string
	Data     []byte
}

// Pipeline validates uploads, applies admission control and registers jobs.
type Pipeline struct {
	ctx       context.Context
	userID    string
	store     *Store
	poller    *Poller
	balance   *Balance
	blobs     *blobStore
	registrar Registrar
	workflow  Workflow
	artifacts ArtifactDeleter
	limits    media.Limits
	clock     Clock
	newID     func() string
	logger    *logger.Logger

	// mu orders Submit against shutdown so no registration starts after Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Submit admits uploads and returns the optimistic jobs in JobStatusSubmitting.
// Registration continues in the background on the session context.
//
// If the cached balance cannot cover every upload, Submit returns an error wrapping
// domain.ErrInsufficientTokens without creating jobs or calling the registrar.
func (p *Pipeline) Submit(ctx context.Context, uploads []Upload) ([]domain.Job, error) {
	if len(uploads) == 0 {
		return nil, domain.ErrNoImages
	}

	infos := make([]media.Info, len(uploads))
	for i, up := range uploads {
		info, err := media.Validate(up.Data, p.limits)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", up.FileName, err)
		}
		infos[i] = info
	}

	tokens, err := p.balance.Known(ctx)
	if err != nil {
		return nil, err
	}
	if tokens < len(uploads) {
		p.logger.WithFields(logger.Fields{
			logger.FieldUserID: p.userID,
			"tokens":           tokens,
			logger.FieldCount:  len(uploads),
		}).Info("Submission rejected: insufficient tokens")
		return nil, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientTokens, tokens, len(uploads))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, domain.ErrSessionClosed
	}

	jobs := make([]domain.Job, 0, len(uploads))
	for i, up := range uploads {
		job := domain.NewJob(p.newID(), p.userID, up.FileName, p.clock.Now())
		job.OriginalRef = p.blobs.put(job.ID, Blob{ContentType: infos[i].ContentType, Data: up.Data})
		if err := p.store.Add(job); err != nil {
			p.blobs.delete(job.ID)
			return jobs, err
		}
		jobs = append(jobs, job)

		reg := Registration{
			JobID:       job.ID,
			UserID:      p.userID,
			FileName:    up.FileName,
			ContentType: infos[i].ContentType,
			Extension:   media.Extension(infos[i].Format),
			Width:       infos[i].Width,
			Height:      infos[i].Height,
			Data:        up.Data,
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.register(reg)
		}()
	}
	return jobs, nil
}

// Wait blocks until every in-flight registration has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// shutdown refuses further submissions. Registrations already started keep running.
func (p *Pipeline) shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Pipeline) register(reg Registration) {
	log := p.logger.WithJob(reg.JobID, "")
	start := p.clock.Now()

	receipt, err := p.registrar.Register(p.ctx, reg)
	if err != nil {
		kind, reason := domain.FailureSubmissionFailed, "Upload failed: "+err.Error()
		if errors.Is(err, domain.ErrInsufficientTokens) {
			kind, reason = domain.FailureAdmissionRejected, insufficientTokensMessage
			// The server disagreed with the cached balance.
			if _, refreshErr := p.balance.Refresh(p.ctx); refreshErr != nil {
				log.WithError(refreshErr).Warn("Balance refresh failed")
			}
		}
		log.WithError(err).Warn("Registration failed")
		p.apply(reg.JobID, domain.Failed(kind, reason))
		return
	}

	log = p.logger.WithJob(reg.JobID, receipt.RecordID)
	if _, changed, err := p.store.Apply(reg.JobID, domain.Acknowledged(receipt.RecordID, receipt.OriginalURL)); err != nil || !changed {
		if _, tracked := p.store.Get(reg.JobID); !tracked {
			p.releaseOrphan(receipt, log)
			return
		}
		log.Info("Registration finished for a job no longer awaiting acknowledgment")
		return
	}
	log.WithField(logger.FieldDurationMs, p.clock.Now().Sub(start).Milliseconds()).Info("Job registered")

	p.poller.Start(reg.JobID, receipt.RecordID)

	if _, err := p.balance.Refresh(p.ctx); err != nil {
		log.WithError(err).Warn("Balance refresh failed")
	}

	if p.workflow == nil {
		return
	}
	handoff := Handoff{
		JobID:       reg.JobID,
		RecordID:    receipt.RecordID,
		UserID:      reg.UserID,
		OriginalURL: receipt.OriginalURL,
	}
	if err := p.workflow.Trigger(p.ctx, handoff); err != nil {
		log.WithError(err).Error("Workflow hand-off failed")
		p.apply(reg.JobID, domain.Failed(domain.FailureSubmissionFailed, "Could not start enhancement: "+err.Error()))
	}
}

// releaseOrphan removes the stored original of a job deleted while its
// registration was in flight. The record itself stays on the server.
func (p *Pipeline) releaseOrphan(receipt Receipt, log *logger.Logger) {
	log.WithField("original_url", receipt.OriginalURL).Warn("Registration finished after the job was deleted")
	if p.artifacts == nil || receipt.OriginalURL == "" {
		return
	}
	if err := p.artifacts.DeleteArtifact(context.WithoutCancel(p.ctx), receipt.OriginalURL); err != nil {
		log.WithError(err).Warn("Orphaned original cleanup failed")
	}
}

func (p *Pipeline) apply(jobID string, ev domain.Event) {
	if _, _, err := p.store.Apply(jobID, ev); err != nil {
		p.logger.WithError(err).WithField(logger.FieldJobID, jobID).Debug("Dropped submission result")
	}
}

func newJobID() string {
	return uuid.NewString()
}
