package veeamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

const jobsPath = "/v1/jobs"

// Extra job collections exposed next to /v1/jobs.
const (
	BackupCopyJobs      = "backupCopyJobs"
	ReplicationJobs     = "replicationJobs"
	FileShareBackupJobs = "fileShareBackupJobs"
)

// Job is a job record exactly as returned by the API.
type Job map[string]interface{}

// ID returns the job identifier, trying "id", "Uid" and "jobId" in order.
func (j Job) ID() string {
	for _, key := range []string{"id", "Uid", "jobId"} {
		if v := j.Field(key); v != "" {
			return v
		}
	}
	return ""
}

// Name returns the job name.
func (j Job) Name() string {
	return j.Field("name")
}

// Field renders a top-level field as a string. Missing and null fields are
// empty; objects and arrays are rendered as compact JSON.
func (j Job) Field(key string) string {
	v, ok := j[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		buf, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(buf)
	}
}

func (c *Client) collectionPath(endpoint string) string {
	return "/v1/" + url.PathEscape(endpoint)
}

func (c *Client) jobPath(id string) string {
	return jobsPath + "/" + url.PathEscape(id)
}

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// ListJobs retrieves /v1/jobs in a single request. A limit of zero leaves the
// page size to the server.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	resp, err := c.get(ctx, jobsPath, limitQuery(limit))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return decodeJobs(resp.Body)
}

// ListCollection retrieves a sibling job collection such as
// backupCopyJobs. Collections the server does not know (HTTP 404) are empty.
func (c *Client) ListCollection(ctx context.Context, endpoint string, limit int) ([]Job, error) {
	resp, err := c.get(ctx, c.collectionPath(endpoint), limitQuery(limit))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		c.logger.Debug("collection not available", zap.String("endpoint", endpoint))
		return nil, nil
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return decodeJobs(resp.Body)
}

// FindJob looks a job up by exact name. It returns nil when there is no match.
func (c *Client) FindJob(ctx context.Context, name string) (Job, error) {
	resp, err := c.get(ctx, jobsPath, url.Values{"name": {name}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	jobs, err := decodeJobs(resp.Body)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Name() == name {
			return job, nil
		}
	}
	return nil, nil
}

// EditJob sends a partial job object to PUT /v1/jobs/{id}?action=edit.
func (c *Client) EditJob(ctx context.Context, id string, payload interface{}) error {
	req, err := c.NewRequest(ctx, http.MethodPut, c.jobPath(id), payload)
	if err != nil {
		return err
	}
	req.URL.RawQuery = url.Values{"action": {"edit"}}.Encode()

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// decodeJobs accepts a collection envelope ({"data": [...]}), a bare list or
// a single object.
func decodeJobs(r io.Reader) ([]Job, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var body interface{}
	if err := dec.Decode(&body); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	if obj, ok := body.(map[string]interface{}); ok {
		if data, ok := obj["data"]; ok && data != nil {
			body = data
		}
	}

	switch v := body.(type) {
	case []interface{}:
		jobs := make([]Job, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok && len(m) > 0 {
				jobs = append(jobs, Job(m))
			}
		}
		return jobs, nil
	case map[string]interface{}:
		return []Job{Job(v)}, nil
	}
	return nil, nil
}
