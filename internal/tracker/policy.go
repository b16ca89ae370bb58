package tracker

import "time"

// IntervalStep applies Interval while a job's elapsed time is below Until.
type IntervalStep struct {
	Until    time.Duration
	Interval time.Duration
}

// PollPolicy controls the polling engine.
type PollPolicy struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	MaxDuration time.Duration
	MaxErrors   int
	Steps       []IntervalStep
}

// DefaultPollPolicy polls every few seconds at first and backs off to 30s,
// giving up after 8 minutes or 3 consecutive failed checks.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MinInterval: 3 * time.Second,
		MaxInterval: 30 * time.Second,
		MaxDuration: 8 * time.Minute,
		MaxErrors:   3,
		Steps: []IntervalStep{
			{Until: 30 * time.Second, Interval: 3 * time.Second},
			{Until: 2 * time.Minute, Interval: 5 * time.Second},
			{Until: 4 * time.Minute, Interval: 10 * time.Second},
			{Until: 6 * time.Minute, Interval: 20 * time.Second},
		},
	}
}

// Interval returns the delay before the next check of a job that has been
// running for elapsed.
func (p PollPolicy) Interval(elapsed time.Duration) time.Duration {
	for _, step := range p.Steps {
		if elapsed < step.Until {
			return p.clamp(step.Interval)
		}
	}
	return p.clamp(p.MaxInterval)
}

func (p PollPolicy) clamp(d time.Duration) time.Duration {
	if p.MinInterval > 0 && d < p.MinInterval {
		return p.MinInterval
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}
