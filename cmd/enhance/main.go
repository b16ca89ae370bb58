package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/saedlagr/foodio-beta-sub000/internal/app"
	"github.com/saedlagr/foodio-beta-sub000/internal/config"
	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
	"github.com/saedlagr/foodio-beta-sub000/internal/logger"
	"github.com/saedlagr/foodio-beta-sub000/internal/tracker"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "foodio-enhance",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	userID := flag.String("user", "", "User id that owns the submitted photos")
	credit := flag.Int("credit", 0, "Tokens to add to the user's balance before submitting")
	wait := flag.Duration("wait", 10*time.Minute, "Give up following jobs after this long")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *userID == "" || flag.NArg() == 0 {
		appLogger.Error("Usage: enhance -user <id> [-credit n] photo.jpg [photo.png ...]")
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	application, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	if *credit > 0 {
		if err := application.Profiles.Credit(ctx, *userID, *credit); err != nil {
			appLogger.WithError(err).Fatal("Failed to credit tokens")
		}
	}

	uploads, err := readUploads(flag.Args())
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read photos")
	}

	session, err := application.Registry.Get(ctx, *userID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open session")
	}
	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()

	jobs, err := session.Submit(ctx, uploads)
	if err != nil {
		appLogger.WithError(err).Fatal("Submission rejected")
	}

	pending := make(map[string]string, len(jobs))
	for _, job := range jobs {
		pending[job.ID] = job.FileName
		appLogger.WithFields(logger.Fields{
			"job_id": job.ID,
			"file":   job.FileName,
		}).Info("Submitted")
	}

	failed := follow(ctx, session, updates, pending, *wait, 15*time.Second, appLogger)

	if tokens, ok := session.CachedBalance(); ok {
		appLogger.WithField("tokens", tokens).Info("Remaining balance")
	}
	if failed > 0 || len(pending) > 0 {
		application.Close()
		os.Exit(1)
	}
}

func readUploads(paths []string) ([]tracker.Upload, error) {
	uploads := make([]tracker.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, tracker.Upload{FileName: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

// jobLookup reads the tracked state of one job.
type jobLookup interface {
	Job(jobID string) (tracker.JobView, error)
}

// follow logs progress on each tick until every pending job is terminal, the deadline passes
// or ctx ends. It removes finished jobs from pending and returns the failure count.
func follow(
	ctx context.Context,
	jobs jobLookup,
	updates <-chan tracker.Update,
	pending map[string]string,
	wait, every time.Duration,
	log *logger.Logger,
) int {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	failed := 0
	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return failed
		case <-deadline.C:
			log.WithField("pending", len(pending)).Warn("Stopped following before all jobs finished")
			return failed
		case <-ticker.C:
			failed += sweep(jobs, pending, log)
		case u, ok := <-updates:
			if !ok {
				return failed
			}
			if u.Type != tracker.UpdateJob || u.Job == nil || !u.Job.Status.IsTerminal() {
				continue
			}
			failed += finish(*u.Job, pending, log)
		}
	}
	return failed
}

// sweep logs progress for each pending job and finishes the ones the store already
// holds as terminal. Slow subscribers can miss updates, so the store is the source
// of truth.
func sweep(jobs jobLookup, pending map[string]string, log *logger.Logger) int {
	failed := 0
	for id := range pending {
		view, err := jobs.Job(id)
		if err != nil {
			continue
		}
		if view.Status.IsTerminal() {
			failed += finish(view.Job, pending, log)
			continue
		}
		log.WithFields(logger.Fields{
			"job_id":  id,
			"percent": view.DisplayPercent,
		}).Info(view.StageText)
	}
	return failed
}

// finish logs a terminal job once and drops it from pending. It returns 1 for a
// failed job.
func finish(job domain.Job, pending map[string]string, log *logger.Logger) int {
	if _, tracked := pending[job.ID]; !tracked {
		return 0
	}
	delete(pending, job.ID)
	entry := log.WithFields(logger.Fields{"job_id": job.ID, "file": job.FileName})
	if job.Status == domain.JobStatusCompleted {
		entry.WithField("result_url", job.ResultURL).Info("Enhanced")
		return 0
	}
	entry.WithField("failure", string(job.FailureKind)).Error(job.Error)
	return 1
}
