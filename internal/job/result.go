package job

import (
	"encoding/json"
	"time"

	"github.com/emberqueue/ember/internal/status"
)

// JobResult is the outcome of a completed job, as stored by the Result
// Backend. It is a supplemental feature: the required Resque protocol only
// needs the Status Store (job:{id}:status); JobResult adds a richer, opt-in
// envelope for callers that want to fetch a job's return value.
type JobResult struct {
	JobID       string          `json:"job_id"`
	Status      status.Status   `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
	Duration    time.Duration   `json:"duration"`
}

// IsSuccess reports whether the job completed successfully.
func (r *JobResult) IsSuccess() bool {
	return r.Status == status.Complete
}

// IsFailed reports whether the job failed.
func (r *JobResult) IsFailed() bool {
	return r.Status == status.Failed
}

// UnmarshalResult decodes the result payload into dest. Returns a
// *ResultError if the job failed.
func (r *JobResult) UnmarshalResult(dest interface{}) error {
	if r.IsFailed() {
		return &ResultError{Message: r.Error}
	}
	if len(r.Result) == 0 {
		return nil
	}
	return json.Unmarshal(r.Result, dest)
}

// ResultError wraps a failed job's error message.
type ResultError struct {
	Message string
}

func (e *ResultError) Error() string {
	return e.Message
}
