package exporter

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/bizflycloud/veeam-jobctl/pkg/sink"
	"github.com/bizflycloud/veeam-jobctl/pkg/veeamapi"
)

// DefaultFields are exported when no field list is given.
var DefaultFields = []string{"id", "name", "type", "platform", "state", "description"}

// ExtraCollections are fetched in addition to /v1/jobs when requested.
var ExtraCollections = []string{
	veeamapi.BackupCopyJobs,
	veeamapi.ReplicationJobs,
	veeamapi.FileShareBackupJobs,
}

// ErrNoFields is returned for a field list without any names.
var ErrNoFields = errors.New("field list is empty")

// JobLister is the part of the API the exporter needs.
type JobLister interface {
	ListJobs(ctx context.Context, limit int) ([]veeamapi.Job, error)
	ListCollection(ctx context.Context, endpoint string, limit int) ([]veeamapi.Job, error)
}

// ParseFields splits a comma separated field list, dropping blanks.
func ParseFields(s string) ([]string, error) {
	var fields []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	return fields, nil
}

// ExtractField returns the value of field for job, empty when missing. The
// "id" field falls back to "Uid" and "jobId".
func ExtractField(job veeamapi.Job, field string) string {
	if field == "id" {
		return job.ID()
	}
	return job.Field(field)
}

// WriteCSV writes a header with fields followed by one row per job.
func WriteCSV(w io.Writer, jobs []veeamapi.Job, fields []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fields); err != nil {
		return err
	}
	row := make([]string, len(fields))
	for _, job := range jobs {
		for i, f := range fields {
			row[i] = ExtractField(job, f)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Exporter fetches jobs and writes them as CSV.
type Exporter struct {
	lister       JobLister
	fields       []string
	limit        int
	includeExtra bool
	logger       *zap.Logger
}

// Option configures an Exporter.
type Option func(e *Exporter)

// WithFields sets the exported columns.
func WithFields(fields []string) Option {
	return func(e *Exporter) {
		e.fields = fields
	}
}

// WithLimit passes limit to every list request. Zero means server default.
func WithLimit(limit int) Option {
	return func(e *Exporter) {
		e.limit = limit
	}
}

// WithExtraCollections also exports ExtraCollections.
func WithExtraCollections(include bool) Option {
	return func(e *Exporter) {
		e.includeExtra = include
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// New creates an Exporter.
func New(lister JobLister, opts ...Option) *Exporter {
	e := &Exporter{lister: lister, fields: DefaultFields}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Collect fetches /v1/jobs and, when enabled, the extra collections, in that
// order.
func (e *Exporter) Collect(ctx context.Context) ([]veeamapi.Job, error) {
	jobs, err := e.lister.ListJobs(ctx, e.limit)
	if err != nil {
		return nil, err
	}
	if !e.includeExtra {
		return jobs, nil
	}
	for _, endpoint := range ExtraCollections {
		extra, err := e.lister.ListCollection(ctx, endpoint, e.limit)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("fetched collection", zap.String("endpoint", endpoint), zap.Int("count", len(extra)))
		jobs = append(jobs, extra...)
	}
	return jobs, nil
}

// Run collects jobs and writes them to location. The destination is only
// opened once the jobs are fetched, so a failed request leaves no empty
// file behind. It returns the number of exported jobs.
func (e *Exporter) Run(ctx context.Context, location string, opts ...sink.Option) (int, error) {
	jobs, err := e.Collect(ctx)
	if err != nil {
		return 0, err
	}

	s, err := sink.Open(ctx, location, opts...)
	if err != nil {
		return 0, err
	}

	limit := "server-default"
	if e.limit > 0 {
		limit = strconv.Itoa(e.limit)
	}
	e.logger.Info("writing jobs",
		zap.Int("count", len(jobs)),
		zap.String("limit", limit),
		zap.String("output", s.Location()))

	if err := WriteCSV(s, jobs, e.fields); err != nil {
		_ = s.Close()
		return 0, err
	}
	if err := s.Close(); err != nil {
		return 0, err
	}
	e.logger.Info("export finished",
		zap.String("output", s.Location()),
		zap.String("size", humanize.Bytes(uint64(s.Size()))))
	return len(jobs), nil
}
