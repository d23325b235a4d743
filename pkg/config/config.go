package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/subosito/gotenv"
)

const (
	envPrefix = "VEEAM_"

	// MaxPageSize is the largest page the server accepts.
	MaxPageSize = 1000
)

// Config holds the connection settings for a Veeam Backup & Replication server.
type Config struct {
	Server     string `json:"VEEAM_SERVER"`
	Username   string `json:"VEEAM_USERNAME"`
	Password   string `json:"-"`
	Port       int    `json:"VEEAM_PORT"`
	APIVersion string `json:"VEEAM_API_VERSION"`
	S3Endpoint string `json:"VEEAM_S3_ENDPOINT"`

	// JobLimit and JobPageSize are zero when unset.
	JobLimit    int `json:"VEEAM_JOB_LIMIT"`
	JobPageSize int `json:"VEEAM_JOB_PAGE_SIZE"`

	verifySSL string
}

// environment is the raw view of the VEEAM_* variables.
type environment struct {
	Server      string `env:"SERVER"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Port        int    `env:"PORT" envDefault:"9419"`
	APIVersion  string `env:"API_VERSION" envDefault:"1.2-rev1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	VerifySSL   string `env:"VERIFY_SSL" envDefault:"true"`
	JobLimit    string `env:"JOB_LIMIT"`
	JobPageSize string `env:"JOB_PAGE_SIZE"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: envPrefix})
}

// LoadFrom reads the configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: envPrefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var e environment
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return nil, err
	}

	var missing []string
	for _, v := range []struct{ name, value string }{
		{"SERVER", e.Server},
		{"USERNAME", e.Username},
		{"PASSWORD", e.Password},
	} {
		if v.value == "" {
			missing = append(missing, envPrefix+v.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	c := &Config{
		Server:     e.Server,
		Username:   e.Username,
		Password:   e.Password,
		Port:       e.Port,
		APIVersion: e.APIVersion,
		S3Endpoint: e.S3Endpoint,
		verifySSL:  e.VerifySSL,
	}

	var err error
	if c.JobLimit, err = optionalInt("JOB_LIMIT", e.JobLimit); err != nil {
		return nil, err
	}
	if c.JobPageSize, err = optionalInt("JOB_PAGE_SIZE", e.JobPageSize); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func optionalInt(name, value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s%s must be an integer", envPrefix, name)
	}
	return n, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.APIVersion, validation.Required),
		validation.Field(&c.JobLimit, validation.Min(0)),
		validation.Field(&c.JobPageSize, validation.Min(0), validation.Max(MaxPageSize)),
	)
}

// VerifySSL reports whether server certificates are checked. Only the
// literal "true" enables verification.
func (c *Config) VerifySSL() bool {
	return strings.EqualFold(strings.TrimSpace(c.verifySSL), "true")
}

// BaseURL returns the REST API root, e.g. https://vbr.local:9419/api.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("https://%s:%d/api", c.Server, c.Port)
}

// LoadDotEnv loads key=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
