// Package config loads the calm CLI settings from ~/.calm/config.yaml and
// CALM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"calmdsl/internal/localfile"
)

const (
	DefaultPort       = 9440
	DefaultLintImage  = "koalaman/shellcheck:stable"
	DefaultGitLabURL  = "https://gitlab.com"
	DefaultArchiveDir = "archive"
	DefaultSCMProject = "calm-archive"
	redacted          = "********"
)

// Config holds every setting of the CLI.
type Config struct {
	Server  Server  `mapstructure:"server"`
	Project Project `mapstructure:"project"`
	SCM     SCM     `mapstructure:"scm"`
	Lint    Lint    `mapstructure:"lint"`
	Home    string  `mapstructure:"home"`
}

// Server locates and authenticates against Prism Central.
type Server struct {
	Host         string        `mapstructure:"host" validate:"required,hostname|ip"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Username     string        `mapstructure:"username" validate:"required"`
	Password     string        `mapstructure:"password" validate:"required"`
	VerifyTLS    bool          `mapstructure:"verify_tls"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
	RetryMax     int           `mapstructure:"retry_max" validate:"gte=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout" validate:"gte=0"`
}

// Project is the default project for created entities.
type Project struct {
	Name string `mapstructure:"name"`
}

// SCM configures where compiled payloads are archived and published.
type SCM struct {
	ArchiveDir string `mapstructure:"archive_dir"`
	GitLabURL  string `mapstructure:"gitlab_url" validate:"omitempty,url"`
	Token      string `mapstructure:"token"`
	Namespace  string `mapstructure:"namespace"`
	// Project is the GitLab project the archive is pushed to.
	Project    string `mapstructure:"project"`
	Visibility string `mapstructure:"visibility" validate:"omitempty,oneof=private internal public"`
}

// Lint configures the script linter container.
type Lint struct {
	Image string `mapstructure:"image" validate:"required"`
}

// envBindings maps config keys to the environment variables overriding them.
var envBindings = map[string][]string{
	"server.host":       {"CALM_HOST"},
	"server.port":       {"CALM_PORT"},
	"server.username":   {"CALM_USERNAME"},
	"server.password":   {"CALM_PASSWORD"},
	"server.verify_tls": {"CALM_VERIFY_TLS"},
	"project.name":      {"CALM_PROJECT"},
	"scm.token":         {"CALM_SCM_TOKEN", "GITLAB_TOKEN"},
	"scm.gitlab_url":    {"CALM_GITLAB_URL"},
	"home":              {"CALM_HOME"},
}

// keyKinds lists the keys accepted by Set and how their values parse.
var keyKinds = map[string]string{
	"server.host":          "string",
	"server.port":          "int",
	"server.username":      "string",
	"server.password":      "string",
	"server.verify_tls":    "bool",
	"server.timeout":       "duration",
	"server.retry_max":     "int",
	"server.poll_interval": "duration",
	"server.poll_timeout":  "duration",
	"project.name":         "string",
	"scm.archive_dir":      "string",
	"scm.gitlab_url":       "string",
	"scm.token":            "string",
	"scm.namespace":        "string",
	"scm.project":          "string",
	"scm.visibility":       "string",
	"lint.image":           "string",
}

var validate = validator.New()

// DefaultPath returns the config file location inside the calm home.
func DefaultPath() string {
	return filepath.Join(localfile.DefaultHome(), "config.yaml")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.verify_tls", false)
	v.SetDefault("server.timeout", 60*time.Second)
	v.SetDefault("server.retry_max", 4)
	v.SetDefault("server.poll_interval", 5*time.Second)
	v.SetDefault("server.poll_timeout", 30*time.Minute)
	v.SetDefault("scm.gitlab_url", DefaultGitLabURL)
	v.SetDefault("scm.project", DefaultSCMProject)
	v.SetDefault("scm.visibility", "private")
	v.SetDefault("lint.image", DefaultLintImage)
	v.SetDefault("home", localfile.DefaultHome())

	for key, envs := range envBindings {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	return v
}

// Load reads path, or DefaultPath when empty. A missing default file is not
// an error; a missing explicit file is. Environment variables override the
// file.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || (!errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist)) {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.SCM.ArchiveDir == "" {
		cfg.SCM.ArchiveDir = filepath.Join(cfg.Home, DefaultArchiveDir)
	}
	return &cfg, nil
}

// Validate checks the settings needed to talk to the server.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	key := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "hostname|ip":
		return fmt.Sprintf("%s must be a hostname or IP address", key)
	case "url":
		return fmt.Sprintf("%s must be a URL", key)
	case "min", "max", "gte":
		return fmt.Sprintf("%s is out of range", key)
	default:
		return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
	}
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	if c.Server.Password != "" {
		c.Server.Password = redacted
	}
	if c.SCM.Token != "" {
		c.SCM.Token = redacted
	}
	return c
}

// Set writes key=value into the config file at path, creating it if needed.
func Set(path, key, value string) error {
	if path == "" {
		path = DefaultPath()
	}
	kind, ok := keyKinds[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (known keys: %s)", key, strings.Join(Keys(), ", "))
	}

	var typed any = value
	switch kind {
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", key, err)
		}
		typed = n
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false: %w", key, err)
		}
		typed = b
	case "duration":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s must be a duration such as 30s: %w", key, err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	v.Set(key, typed)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}

// Keys returns the keys accepted by Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
