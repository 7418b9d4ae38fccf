package pipeline

import (
	"time"

	"github.com/sells-group/ipo-research-cli/pkg/naver"
)

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageDegraded  StageStatus = "degraded"
	StageSkipped   StageStatus = "skipped"
	StageFailed    StageStatus = "failed"
)

// StageReport is the run diagnostic for one stage.
type StageReport struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Duration string      `json:"duration"`
	Detail   string      `json:"detail,omitempty"`
}

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	// RunCompleted means every stage that ran succeeded.
	RunCompleted RunStatus = "completed"
	// RunDegraded means the record was produced but one or more stages
	// fell back or were skipped.
	RunDegraded RunStatus = "degraded"
	// RunAborted means no record could be produced.
	RunAborted RunStatus = "aborted"
)

// RunReport summarizes one pipeline run for the operator and the run store.
type RunReport struct {
	RunID     string        `json:"run_id"`
	Company   string        `json:"company"`
	Status    RunStatus     `json:"status"`
	Stages    []StageReport `json:"stages"`
	Artifacts []string      `json:"artifacts,omitempty"`
	// Headlines are the recent news items fed to the analysis stage.
	Headlines []naver.Headline `json:"headlines,omitempty"`
	// Diagnostics counts the gap and conflict entries on the record.
	Diagnostics int       `json:"diagnostics"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// stageTracker accumulates stage reports with wall-clock durations.
type stageTracker struct {
	stages []StageReport
}

func (t *stageTracker) run(name string, fn func() (StageStatus, string)) StageStatus {
	start := time.Now()
	status, detail := fn()
	t.stages = append(t.stages, StageReport{
		Name:     name,
		Status:   status,
		Duration: time.Since(start).Round(time.Millisecond).String(),
		Detail:   detail,
	})
	return status
}

func (t *stageTracker) skip(name, detail string) {
	t.stages = append(t.stages, StageReport{Name: name, Status: StageSkipped, Detail: detail})
}

// overall derives the run status from the stage outcomes.
func (t *stageTracker) overall() RunStatus {
	status := RunCompleted
	for _, s := range t.stages {
		switch s.Status {
		case StageFailed:
			return RunAborted
		case StageDegraded, StageSkipped:
			status = RunDegraded
		}
	}
	return status
}
