package jobpatch

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v2"
)

// Retention modes accepted in the patch file.
const (
	ModeDays          = "days"
	ModeRestorePoints = "restore_points"
)

// ErrNoJobs is returned when the patch file has no jobs list.
var ErrNoJobs = errors.New("config file has no jobs list")

var weekdays = []interface{}{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// Payload is a partial job object accepted by PUT /v1/jobs/{id}?action=edit.
type Payload map[string]interface{}

// RetentionPolicy keeps either a number of days or a number of restore points.
type RetentionPolicy struct {
	Mode  string `yaml:"type" json:"type"`
	Value int    `yaml:"value" json:"value"`
}

// Validate implements validation.Validatable.
func (r RetentionPolicy) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode,
			validation.Required,
			validation.In(ModeDays, ModeRestorePoints).Error("must be days or restore_points")),
		validation.Field(&r.Value,
			validation.Required.Error("must be greater than 0"),
			validation.Min(1).Error("must be greater than 0")),
	)
}

// Payload returns the SimpleRetentionPolicy fields. The unused limit is sent
// as null.
func (r RetentionPolicy) Payload() Payload {
	if r.Mode == ModeDays {
		return Payload{
			"RetainLimitType":  "Days",
			"RetainDaysToKeep": r.Value,
			"RetainCycles":     nil,
		}
	}
	return Payload{
		"RetainLimitType":  "Cycles",
		"RetainCycles":     r.Value,
		"RetainDaysToKeep": nil,
	}
}

// SyntheticFullPlan schedules synthetic full backups on the given weekdays.
type SyntheticFullPlan struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	DaysOfWeek []string `yaml:"days_of_week" json:"days_of_week"`
}

// Validate implements validation.Validatable.
func (s SyntheticFullPlan) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.DaysOfWeek, validation.Each(validation.In(weekdays...).Error("must be a weekday name"))),
	)
}

// Payload returns the BackupTargetOptions fields.
func (s SyntheticFullPlan) Payload() Payload {
	days := s.DaysOfWeek
	if days == nil {
		days = []string{}
	}
	// field names are spelled the way the server expects them
	return Payload{
		"TransformFullToSyntethic": s.Enabled,
		"TransformToSyntethicDays": days,
	}
}

// JobPatch is one entry of the patch file. Nil sections are left untouched
// on the server.
type JobPatch struct {
	Name          string             `yaml:"name" json:"name"`
	Retention     *RetentionPolicy   `yaml:"retention_policy" json:"retention_policy"`
	SyntheticFull *SyntheticFullPlan `yaml:"synthetic_full" json:"synthetic_full"`
}

// Validate implements validation.Validatable.
func (p JobPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.Retention),
		validation.Field(&p.SyntheticFull),
	)
}

// Payload merges the present sections into one edit payload. It is empty
// when the patch changes nothing.
func (p JobPatch) Payload() Payload {
	payload := Payload{}
	if p.Retention != nil {
		payload["SimpleRetentionPolicy"] = p.Retention.Payload()
	}
	if p.SyntheticFull != nil {
		payload["BackupTargetOptions"] = p.SyntheticFull.Payload()
	}
	return payload
}

var entryKeys = map[string]bool{
	"name":             true,
	"retention_policy": true,
	"synthetic_full":   true,
}

// UnmarshalYAML treats empty sections as absent, so that
// `retention_policy: {}` and a missing key mean the same thing. Unknown
// keys are errors, a misspelled section would otherwise change nothing.
func (p *JobPatch) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var keys map[string]interface{}
	if err := unmarshal(&keys); err != nil {
		return err
	}
	var unknown []string
	for k := range keys {
		if !entryKeys[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		name, _ := keys["name"].(string)
		return fmt.Errorf("job %q: unknown key %q, want name, retention_policy or synthetic_full",
			name, unknown[0])
	}

	var raw struct {
		Name          string                 `yaml:"name"`
		Retention     map[string]interface{} `yaml:"retention_policy"`
		SyntheticFull map[string]interface{} `yaml:"synthetic_full"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	*p = JobPatch{Name: strings.TrimSpace(raw.Name)}
	if len(raw.Retention) > 0 {
		// a quoted number such as "7" is accepted
		if v, ok := raw.Retention["value"].(string); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("retention_policy: value must be an integer, got %q", v)
			}
			raw.Retention["value"] = n
		}
		var r RetentionPolicy
		if err := remarshal(raw.Retention, &r); err != nil {
			return fmt.Errorf("retention_policy: %w", err)
		}
		r.Mode = strings.TrimSpace(r.Mode)
		p.Retention = &r
	}
	if len(raw.SyntheticFull) > 0 {
		var s SyntheticFullPlan
		if err := remarshal(raw.SyntheticFull, &s); err != nil {
			return fmt.Errorf("synthetic_full: %w", err)
		}
		for i, d := range s.DaysOfWeek {
			s.DaysOfWeek[i] = capitalize(d)
		}
		p.SyntheticFull = &s
	}
	return nil
}

func remarshal(in map[string]interface{}, out interface{}) error {
	buf, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(buf, out)
}

// capitalize turns "monday" and "MONDAY" into "Monday".
func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

type file struct {
	Jobs []JobPatch `yaml:"jobs"`
}

// Load reads and validates a patch file.
func Load(path string) ([]JobPatch, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	patches, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return patches, nil
}

// Parse decodes and validates patch file content. The first invalid entry
// fails the whole file.
func Parse(buf []byte) ([]JobPatch, error) {
	var f file
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, err
	}
	if len(f.Jobs) == 0 {
		return nil, ErrNoJobs
	}
	for i, p := range f.Jobs {
		if err := p.Validate(); err != nil {
			if p.Name != "" {
				return nil, fmt.Errorf("jobs[%d] (%s): %w", i, p.Name, err)
			}
			return nil, fmt.Errorf("jobs[%d]: %w", i, err)
		}
	}
	return f.Jobs, nil
}
