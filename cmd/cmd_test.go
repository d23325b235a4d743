// This file is part of veeam-jobctl
//
// Copyright (C) 2026  BizFly Cloud
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizflycloud/veeam-jobctl/pkg/updater"
	"github.com/bizflycloud/veeam-jobctl/pkg/veeamapi"
)

type edit struct {
	id      string
	payload map[string]interface{}
}

// fakeVBR is a minimal Veeam Backup & Replication REST API.
type fakeVBR struct {
	mu          sync.Mutex
	tokenCalls  int
	listQueries []url.Values
	edits       []edit
	dir         string
	configFile  string
	logs        *bytes.Buffer
	denyList    bool
}

func newFakeVBR(t *testing.T) *fakeVBR {
	t.Helper()
	f := &fakeVBR{dir: t.TempDir(), logs: new(bytes.Buffer)}
	logOutput = f.logs
	t.Cleanup(func() { logOutput = os.Stderr })

	mux := chi.NewRouter()
	mux.Post("/api/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.tokenCalls++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"access_token":"tok-1","token_type":"bearer","expires_in":900}`)
	})
	mux.Get("/api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.denyList {
			w.WriteHeader(http.StatusForbidden)
			_, _ = fmt.Fprint(w, `{"message":"denied"}`)
			return
		}
		f.mu.Lock()
		f.listQueries = append(f.listQueries, r.URL.Query())
		f.mu.Unlock()
		jobs := []map[string]interface{}{
			{"id": "1", "name": "SQL daily", "type": "Backup", "platform": "VSphere", "state": "Idle"},
			{"id": "2", "name": "File server", "type": "Backup", "platform": "HyperV", "state": "Working"},
		}
		if name := r.URL.Query().Get("name"); name != "" {
			var matched []map[string]interface{}
			for _, j := range jobs {
				if j["name"] == name {
					matched = append(matched, j)
				}
			}
			jobs = matched
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": jobs})
	})
	mux.Put("/api/v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		f.edits = append(f.edits, edit{id: chi.URLParam(r, "id"), payload: payload})
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})

	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	t.Setenv("VEEAM_SERVER", u.Hostname())
	t.Setenv("VEEAM_PORT", u.Port())
	t.Setenv("VEEAM_USERNAME", "admin")
	t.Setenv("VEEAM_PASSWORD", "secret")
	t.Setenv("VEEAM_VERIFY_SSL", "false")
	t.Setenv("VEEAM_JOB_LIMIT", "")
	t.Setenv("VEEAM_JOB_PAGE_SIZE", "")

	f.configFile = filepath.Join(f.dir, "veeam-jobctl.yaml")
	cfg := fmt.Sprintf("output_dir: %q\nlog_level: error\nretry_timeout: 0s\n", f.dir)
	require.NoError(t, os.WriteFile(f.configFile, []byte(cfg), 0o600))
	return f
}

func (f *fakeVBR) execute(args ...string) error {
	resetFlags(rootCmd)
	rootCmd.SetArgs(append(args, "--config", f.configFile, "--env-file="))
	return run(context.Background())
}

// resetFlags puts every flag of the command tree back to its default, as
// for a fresh process.
func resetFlags(c *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{c.PersistentFlags(), c.Flags()} {
		fs.VisitAll(func(fl *pflag.Flag) {
			_ = fl.Value.Set(fl.DefValue)
			fl.Changed = false
		})
	}
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func (f *fakeVBR) writePatches(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, "updates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const patches = `
jobs:
  - name: SQL daily
    retention_policy:
      type: restore_points
      value: 30
    synthetic_full:
      enabled: true
      days_of_week: [saturday]
  - name: Missing job
    retention_policy:
      type: days
      value: 7
`

func TestExport(t *testing.T) {
	f := newFakeVBR(t)

	err := f.execute("export", "--output", "jobs.csv", "--fields", "id,name,state,owner", "--limit", "25")
	require.NoError(t, err)

	buf, err := os.ReadFile(filepath.Join(f.dir, "jobs.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name,state,owner\n1,SQL daily,Idle,\n2,File server,Working,\n", string(buf))

	assert.Equal(t, 1, f.tokenCalls)
	require.Len(t, f.listQueries, 1)
	assert.Equal(t, "25", f.listQueries[0].Get("limit"))
}

func TestExport_limitFromEnvironment(t *testing.T) {
	f := newFakeVBR(t)
	t.Setenv("VEEAM_JOB_LIMIT", "40")

	require.NoError(t, f.execute("export"))

	require.Len(t, f.listQueries, 1)
	assert.Equal(t, "40", f.listQueries[0].Get("limit"))
	buf, err := os.ReadFile(filepath.Join(f.dir, "veeam_jobs.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(buf), "id,name,type,platform,state,description\n"))
}

func TestExport_invalidLogLevelIsLogged(t *testing.T) {
	f := newFakeVBR(t)

	err := f.execute("export", "--log-level", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "bogus"`)

	out := f.logs.String()
	assert.Equal(t, 1, strings.Count(out, "ERROR"))
	assert.Contains(t, out, "execution failed")
	assert.Contains(t, out, "invalid log level")
	assert.Zero(t, f.tokenCalls)
}

func TestExport_apiErrorLoggedOnce(t *testing.T) {
	f := newFakeVBR(t)
	f.denyList = true

	err := f.execute("export", "--fields", "id")
	require.Error(t, err)

	out := f.logs.String()
	assert.Equal(t, 1, strings.Count(out, "ERROR"))
	assert.Contains(t, out, "HTTP 403: denied")
}

func TestExport_missingEnvironment(t *testing.T) {
	f := newFakeVBR(t)
	t.Setenv("VEEAM_SERVER", "")

	err := f.execute("export", "--output", "jobs.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VEEAM_SERVER")
	assert.Zero(t, f.tokenCalls)
}

func TestExport_pageSizeTooLarge(t *testing.T) {
	f := newFakeVBR(t)

	err := f.execute("export", "--output", "jobs.csv", "--page-size", "5000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page-size")
	assert.Zero(t, f.tokenCalls)
}

func TestUpdate_dryRunNeverEdits(t *testing.T) {
	f := newFakeVBR(t)
	path := f.writePatches(t, patches)

	err := f.execute("update", "--file", path, "--dry-run")
	require.NoError(t, err)
	assert.Empty(t, f.edits)
	assert.Equal(t, 1, f.tokenCalls)
}

func TestUpdate(t *testing.T) {
	f := newFakeVBR(t)
	path := f.writePatches(t, patches)

	err := f.execute("update", "--file", path)
	require.NoError(t, err)

	require.Len(t, f.edits, 1)
	assert.Equal(t, "1", f.edits[0].id)
	assert.Equal(t, map[string]interface{}{
		"SimpleRetentionPolicy": map[string]interface{}{
			"RetainLimitType":  "Cycles",
			"RetainCycles":     float64(30),
			"RetainDaysToKeep": nil,
		},
		"BackupTargetOptions": map[string]interface{}{
			"TransformFullToSyntethic": true,
			"TransformToSyntethicDays": []interface{}{"Saturday"},
		},
	}, f.edits[0].payload)
}

func TestUpdate_failOnError(t *testing.T) {
	f := newFakeVBR(t)
	path := f.writePatches(t, patches)

	err := f.execute("update", "--file", path, "--fail-on-error")
	require.Error(t, err)
	assert.ErrorIs(t, err, updater.ErrJobNotFound)
	assert.Contains(t, err.Error(), "1 of 2 jobs failed")
	assert.Len(t, f.edits, 1)
}

func TestUpdate_invalidFileSendsNothing(t *testing.T) {
	f := newFakeVBR(t)
	path := f.writePatches(t, "jobs:\n  - name: a\n    retention_policy: {type: days, value: 0}\n")

	err := f.execute("update", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be greater than 0")
	assert.Zero(t, f.tokenCalls)
	assert.Empty(t, f.edits)
}

func TestVersionCmd(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	defer rootCmd.SetOut(nil)
	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Version:  dev")
}

func TestFlagOrEnv(t *testing.T) {
	c := &cobra.Command{Use: "x"}
	var limit int
	c.Flags().IntVar(&limit, "limit", 0, "")

	assert.Equal(t, 40, flagOrEnv(c, "limit", limit, 40))

	require.NoError(t, c.Flags().Parse([]string{"--limit", "0"}))
	assert.Equal(t, 0, flagOrEnv(c, "limit", limit, 40))

	require.NoError(t, c.Flags().Parse([]string{"--limit", "5"}))
	assert.Equal(t, 5, flagOrEnv(c, "limit", limit, 40))
}

func TestValidateLimits(t *testing.T) {
	assert.NoError(t, validateLimits(0, 0))
	assert.NoError(t, validateLimits(5000, 1000))
	assert.Error(t, validateLimits(-1, 0))
	assert.Error(t, validateLimits(10, 1001))
	assert.Error(t, validateLimits(10, -5))
}

func TestRows(t *testing.T) {
	jobs := []veeamapi.Job{{"Uid": "9", "name": "n", "type": "Backup", "state": "Idle"}}
	assert.Equal(t, [][]string{{"9", "n", "Backup", "", "Idle"}}, jobRows(jobs))

	results := []updater.Result{
		{Name: "a", JobID: "1", Outcome: updater.Planned, Payload: map[string]interface{}{"k": 1}},
		{Name: "b", Outcome: updater.Failed, Err: errors.New("job not found: b")},
	}
	assert.Equal(t, [][]string{
		{"a", "1", "planned", `{"k":1}`},
		{"b", "", "failed", "job not found: b"},
	}, resultRows(results))
}
