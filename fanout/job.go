package fanout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
)

// ErrUnknownJob reports a job ID the distributor is not tracking.
var ErrUnknownJob = errs.Class("unknown job")

// State is a fan-out job's lifecycle position. There is no terminal failure
// state: a job stays retryable until it completes or the caller abandons it
// (abandonment is an operational decision made elsewhere).
type State string

const (
	StatePending  State = "pending"
	StatePartial  State = "partially-delivered"
	StateComplete State = "complete"
)

// Job is one pending or completed distribution unit: a source entity
// reference and the recipient set still owed delivery. Running the same job
// twice is idempotent because the underlying feed prepend is.
type Job struct {
	ID  string
	Ref uint32

	mu        sync.Mutex
	state     State
	remaining []string
}

// State returns the job's current lifecycle position.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Remaining returns the recipients still owed delivery.
func (j *Job) Remaining() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.remaining...)
}

func (j *Job) apply(result Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.remaining = result.FailedRecipients()
	if len(j.remaining) == 0 {
		j.state = StateComplete
	} else {
		j.state = StatePartial
	}
}

// StartJob registers a distribution unit for the given reference and
// recipient set and returns it in the pending state. Nothing is delivered
// until RunJob.
func (d *Distributor) StartJob(ref uint32, recipients []string) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Ref:       ref,
		state:     StatePending,
		remaining: dedupe(recipients),
	}
	d.jobs.Store(job.ID, job)
	return job
}

// Job looks up a tracked job by ID.
func (d *Distributor) Job(id string) (*Job, bool) {
	return d.jobs.Load(id)
}

// RunJob distributes to the job's remaining recipients and advances its
// state: complete when every remaining recipient succeeded, otherwise
// partially-delivered with the failed subset carried forward. Calling
// RunJob again after a partial pass retries exactly that subset;
// already-delivered recipients are never touched again.
func (d *Distributor) RunJob(ctx context.Context, id string) (Result, error) {
	job, ok := d.jobs.Load(id)
	if !ok {
		return Result{}, ErrUnknownJob.New("%s", id)
	}

	if job.State() == StateComplete {
		return Result{}, nil
	}

	result := d.Distribute(ctx, job.Ref, job.Remaining())
	job.apply(result)
	return result, nil
}

// ForgetJob drops a job from tracking. The caller's way of abandoning a
// distribution that will never complete.
func (d *Distributor) ForgetJob(id string) {
	d.jobs.Delete(id)
}
