package jobpatch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patchFile = `
jobs:
  - name: SQL daily
    retention_policy:
      type: days
      value: 14
    synthetic_full:
      enabled: true
      days_of_week: [saturday, SUNDAY]
  - name: File server
    retention_policy:
      type: restore_points
      value: 30
  - name: Exchange
    synthetic_full:
      enabled: false
  - name: Untouched
    retention_policy: {}
`

func TestParse(t *testing.T) {
	patches, err := Parse([]byte(patchFile))
	require.NoError(t, err)
	require.Len(t, patches, 4)

	sql := patches[0]
	assert.Equal(t, "SQL daily", sql.Name)
	require.NotNil(t, sql.Retention)
	assert.Equal(t, RetentionPolicy{Mode: ModeDays, Value: 14}, *sql.Retention)
	require.NotNil(t, sql.SyntheticFull)
	assert.True(t, sql.SyntheticFull.Enabled)
	assert.Equal(t, []string{"Saturday", "Sunday"}, sql.SyntheticFull.DaysOfWeek)

	fs := patches[1]
	assert.Equal(t, RetentionPolicy{Mode: ModeRestorePoints, Value: 30}, *fs.Retention)
	assert.Nil(t, fs.SyntheticFull)

	exch := patches[2]
	assert.Nil(t, exch.Retention)
	require.NotNil(t, exch.SyntheticFull)
	assert.False(t, exch.SyntheticFull.Enabled)

	assert.Nil(t, patches[3].Retention)
	assert.Nil(t, patches[3].SyntheticFull)
	assert.Empty(t, patches[3].Payload())
}

func TestParse_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"no jobs key", "other: 1\n", ErrNoJobs.Error()},
		{"empty jobs", "jobs: []\n", ErrNoJobs.Error()},
		{"empty file", "", ErrNoJobs.Error()},
		{"not a mapping", "- a\n- b\n", "unmarshal"},
		{"missing name", "jobs:\n  - retention_policy: {type: days, value: 3}\n", "name: cannot be blank"},
		{"zero value", "jobs:\n  - name: a\n    retention_policy: {type: days, value: 0}\n", "value: must be greater than 0"},
		{"missing value", "jobs:\n  - name: a\n    retention_policy: {type: days}\n", "value: must be greater than 0"},
		{"negative value", "jobs:\n  - name: a\n    retention_policy: {type: restore_points, value: -2}\n", "value: must be greater than 0"},
		{"unknown mode", "jobs:\n  - name: a\n    retention_policy: {type: weeks, value: 2}\n", "type: must be days or restore_points"},
		{"missing mode", "jobs:\n  - name: a\n    retention_policy: {value: 2}\n", "type: cannot be blank"},
		{"bad weekday", "jobs:\n  - name: a\n    synthetic_full: {enabled: true, days_of_week: [funday]}\n", "must be a weekday name"},
		{"value not a number", "jobs:\n  - name: a\n    retention_policy: {type: days, value: many}\n", "retention_policy: value must be an integer"},
		{"misspelled section", "jobs:\n  - name: a\n    retention: {type: days, value: 7}\n", `job "a": unknown key "retention"`},
		{"unknown section key", "jobs:\n  - name: a\n    retention_policy: {type: days, value: 7, keep: 1}\n", "retention_policy"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestParse_quotedValue(t *testing.T) {
	patches, err := Parse([]byte("jobs:\n  - name: a\n    retention_policy: {type: days, value: \" 7\"}\n"))
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, RetentionPolicy{Mode: ModeDays, Value: 7}, *patches[0].Retention)
}

func TestParse_firstInvalidEntryFailsFile(t *testing.T) {
	content := `
jobs:
  - name: good
    retention_policy: {type: days, value: 7}
  - name: bad
    retention_policy: {type: days, value: 0}
`
	patches, err := Parse([]byte(content))
	require.Error(t, err)
	assert.Nil(t, patches)
	assert.Contains(t, err.Error(), "jobs[1] (bad)")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "updates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(patchFile), 0o600))

	patches, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, patches, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRetentionPolicy_Payload(t *testing.T) {
	days := RetentionPolicy{Mode: ModeDays, Value: 14}.Payload()
	assert.Equal(t, Payload{"RetainLimitType": "Days", "RetainDaysToKeep": 14, "RetainCycles": nil}, days)

	points := RetentionPolicy{Mode: ModeRestorePoints, Value: 30}.Payload()
	assert.Equal(t, Payload{"RetainLimitType": "Cycles", "RetainCycles": 30, "RetainDaysToKeep": nil}, points)
}

func TestJobPatch_Payload(t *testing.T) {
	p := JobPatch{
		Name:          "SQL daily",
		Retention:     &RetentionPolicy{Mode: ModeDays, Value: 7},
		SyntheticFull: &SyntheticFullPlan{Enabled: true},
	}

	buf, err := json.Marshal(p.Payload())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"SimpleRetentionPolicy": {"RetainLimitType": "Days", "RetainDaysToKeep": 7, "RetainCycles": null},
		"BackupTargetOptions": {"TransformFullToSyntethic": true, "TransformToSyntethicDays": []}
	}`, string(buf))

	assert.Empty(t, JobPatch{Name: "noop"}.Payload())
}

func TestCapitalize(t *testing.T) {
	for in, want := range map[string]string{
		"monday":    "Monday",
		"FRIDAY":    "Friday",
		" sunday ":  "Sunday",
		"":          "",
		"wEdNeSdAy": "Wednesday",
	} {
		assert.Equal(t, want, capitalize(in))
	}
}
