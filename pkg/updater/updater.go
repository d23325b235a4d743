package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bizflycloud/veeam-jobctl/pkg/jobpatch"
	"github.com/bizflycloud/veeam-jobctl/pkg/veeamapi"
)

// JobClient is the part of the API the updater needs.
type JobClient interface {
	FindJob(ctx context.Context, name string) (veeamapi.Job, error)
	EditJob(ctx context.Context, id string, payload interface{}) error
}

// Outcome is the result of applying one patch.
type Outcome int

const (
	Updated Outcome = iota
	Planned
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Planned:
		return "planned"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

var (
	ErrJobNotFound = errors.New("job not found")
	ErrNoJobID     = errors.New("job has no id")
)

// Result describes what happened to one patch.
type Result struct {
	Name    string
	JobID   string
	Outcome Outcome
	Payload jobpatch.Payload
	Err     error
}

// Summary collects the results of a run in input order.
type Summary struct {
	Results []Result
	// Err combines the errors of every failed patch.
	Err error
}

// Count returns how many patches ended with o.
func (s Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Updater applies job patches one by one.
type Updater struct {
	client JobClient
	dryRun bool
	logger *zap.Logger
}

// Option configures an Updater.
type Option func(u *Updater)

// WithDryRun makes the updater log payloads instead of sending them.
func WithDryRun(dryRun bool) Option {
	return func(u *Updater) {
		u.dryRun = dryRun
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(u *Updater) {
		u.logger = logger
	}
}

// New creates an Updater.
func New(client JobClient, opts ...Option) *Updater {
	u := &Updater{client: client}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = zap.NewNop()
	}
	return u
}

// Apply looks the job up by name and sends the patch payload. Failures are
// logged and reported in the result; they never stop the caller.
func (u *Updater) Apply(ctx context.Context, patch jobpatch.JobPatch) Result {
	res := Result{Name: patch.Name}
	logger := u.logger.With(zap.String("job", patch.Name))

	job, err := u.client.FindJob(ctx, patch.Name)
	if err != nil {
		logger.Error("failed to look up job", zap.Error(err))
		return res.fail(fmt.Errorf("find job %q: %w", patch.Name, err))
	}
	if job == nil {
		logger.Error("job not found")
		return res.fail(fmt.Errorf("%w: %s", ErrJobNotFound, patch.Name))
	}

	res.JobID = job.ID()
	if res.JobID == "" {
		logger.Error("job has no id field, cannot update")
		return res.fail(fmt.Errorf("%w: %s", ErrNoJobID, patch.Name))
	}
	logger = logger.With(zap.String("job_id", res.JobID))

	res.Payload = patch.Payload()
	if len(res.Payload) == 0 {
		logger.Info("nothing to update, skipping")
		res.Outcome = Skipped
		return res
	}

	if u.dryRun {
		logger.Info("[dry-run] payload not sent", zap.String("payload", PayloadString(res.Payload)))
		res.Outcome = Planned
		return res
	}

	logger.Info("updating job")
	if err := u.client.EditJob(ctx, res.JobID, res.Payload); err != nil {
		logger.Error("failed to update job", zap.Error(err))
		return res.fail(fmt.Errorf("edit job %q: %w", patch.Name, err))
	}
	logger.Info("job updated")
	res.Outcome = Updated
	return res
}

func (r Result) fail(err error) Result {
	r.Outcome = Failed
	r.Err = err
	return r
}

// Run applies patches in order. It stops early only when ctx is done.
func (u *Updater) Run(ctx context.Context, patches []jobpatch.JobPatch) Summary {
	var s Summary
	for _, p := range patches {
		if err := ctx.Err(); err != nil {
			s.Err = multierr.Append(s.Err, err)
			break
		}
		r := u.Apply(ctx, p)
		s.Results = append(s.Results, r)
		s.Err = multierr.Append(s.Err, r.Err)
	}
	u.logger.Info("update finished",
		zap.Bool("dry_run", u.dryRun),
		zap.Int("updated", s.Count(Updated)),
		zap.Int("planned", s.Count(Planned)),
		zap.Int("skipped", s.Count(Skipped)),
		zap.Int("failed", s.Count(Failed)))
	return s
}

// PayloadString renders a payload as compact JSON.
func PayloadString(p jobpatch.Payload) string {
	buf, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprint(map[string]interface{}(p))
	}
	return string(buf)
}
