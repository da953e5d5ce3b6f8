package models

import "time"

// ResourceState tracks a resource through the publication pipeline.
type ResourceState string

const (
	StatePending      ResourceState = "pending"
	StateDeduped      ResourceState = "deduped"
	StateSynthesizing ResourceState = "synthesizing"
	StateVerifying    ResourceState = "verifying"
	StatePublishing   ResourceState = "publishing"
	StateRecorded     ResourceState = "recorded"
	StateFailed       ResourceState = "failed"
)

// ResourceResult is the terminal outcome for one resource in a run.
type ResourceResult struct {
	Title  string        `json:"title"`
	State  ResourceState `json:"state"`
	PostID string        `json:"post_id,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// RunSummary aggregates one batch run. It is the sole report surface of the
// pipeline: callers and tests assert against it.
type RunSummary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Recorded   int              `json:"recorded"`
	Deduped    int              `json:"deduped"`
	Failed     int              `json:"failed"`
	Results    []ResourceResult `json:"results"`
}
