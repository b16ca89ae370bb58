package tracker

import (
	"time"

	"github.com/saedlagr/foodio-beta-sub000/internal/domain"
)

// Stage is one step of the waiting-room copy shown while a photo is enhanced.
type Stage struct {
	Duration time.Duration
	Message  string
}

// DefaultStages approximates what the enhancement workflow does over a typical run.
var DefaultStages = []Stage{
	{Duration: 20 * time.Second, Message: "Analyzing your food photo..."},
	{Duration: 40 * time.Second, Message: "Balancing light and color..."},
	{Duration: 60 * time.Second, Message: "Enhancing textures and plating details..."},
	{Duration: 90 * time.Second, Message: "Refining the background..."},
	{Duration: 120 * time.Second, Message: "Applying final touches..."},
	{Duration: 0, Message: "Almost there, finishing your enhanced photo..."},
}

// Presenter derives stage text and percentages from elapsed time. It never
// changes job state.
type Presenter struct {
	Stages []Stage
	Budget time.Duration
}

// NewPresenter returns a presenter using stages and a total time budget.
func NewPresenter(stages []Stage, budget time.Duration) *Presenter {
	if len(stages) == 0 {
		stages = DefaultStages
	}
	return &Presenter{Stages: stages, Budget: budget}
}

// StageMessage walks the stages, accumulating durations until elapsed falls inside
// one. Past the last stage the final message holds.
func (p *Presenter) StageMessage(elapsed time.Duration) string {
	var acc time.Duration
	for _, st := range p.Stages {
		acc += st.Duration
		if elapsed < acc {
			return st.Message
		}
	}
	return p.Stages[len(p.Stages)-1].Message
}

// Percent is min(95, floor(elapsed / budget * 100)).
func (p *Presenter) Percent(elapsed time.Duration) int {
	if p.Budget <= 0 || elapsed <= 0 {
		return 0
	}
	pct := int(elapsed * 100 / p.Budget)
	if pct > domain.MaxProcessingPercent {
		return domain.MaxProcessingPercent
	}
	return pct
}

// JobView is a job plus the values derived for display.
type JobView struct {
	domain.Job
	DisplayPercent int    `json:"display_percent"`
	StageText      string `json:"stage_text"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

// View renders a job at now.
func (p *Presenter) View(job domain.Job, now time.Time) JobView {
	elapsed := job.Elapsed(now)
	v := JobView{
		Job:            job,
		ElapsedSeconds: int64(elapsed / time.Second),
		StageText:      job.ProgressMessage,
	}
	switch job.Status {
	case domain.JobStatusCompleted:
		v.DisplayPercent = domain.CompletedPercent
		if job.CompletedAt != nil {
			v.ElapsedSeconds = int64(job.CompletedAt.Sub(job.CreatedAt) / time.Second)
		}
	case domain.JobStatusProcessing:
		v.DisplayPercent = job.ProgressPercent
		if pct := p.Percent(elapsed); pct > v.DisplayPercent {
			v.DisplayPercent = pct
		}
		if v.StageText == "" {
			v.StageText = p.StageMessage(elapsed)
		}
	default:
		v.DisplayPercent = job.ProgressPercent
	}
	return v
}
