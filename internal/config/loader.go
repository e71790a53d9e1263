package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig. Type says which stage failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

const (
	localEnv       = "local"
	ssmParamSuffix = "_SSM_PARAM"
	ssmTimeout     = 30 * time.Second
)

// secretVars are the variables that may be given as an SSM pointer instead
// of a value: DATABASE_URL_SSM_PARAM=/prod/placement/database/url. Pointers
// for any other variable are ignored.
var secretVars = []string{
	"DATABASE_URL",
	"SMTP_PASSWORD",
	"SENDGRID_API_KEY",
}

// env is the slice of the process environment the loader touches.
type env struct {
	lookup func(key string) (string, bool)
	set    func(key, value string) error
}

var osEnv = env{lookup: os.LookupEnv, set: os.Setenv}

// LoadConfig reads .env, resolves secret pointers through provider unless
// APP_ENV is local, then parses and validates the Config. The process zone is
// forced to UTC. provider may be nil when no pointers are set.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return load(provider, osEnv)
}

func load(provider SecretProvider, e env) (*Config, error) {
	time.Local = time.UTC

	// Existing variables win over .env.
	_ = godotenv.Load()

	if appEnv, _ := e.lookup("APP_ENV"); appEnv != localEnv {
		if err := resolveSecrets(provider, e); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}
	cfg.Build = NewBuildInfo()

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	if _, err := time.LoadLocation(cfg.Mail.DisplayTimezone); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("MAIL_DISPLAY_TIMEZONE %q is not a valid IANA zone", cfg.Mail.DisplayTimezone),
			Err:     err,
		}
	}
	if cfg.Archive.Bucket != "" && cfg.Archive.Dir != "" {
		return &ConfigError{Type: ErrValidation, Message: "ARCHIVE_BUCKET and ARCHIVE_DIR are mutually exclusive"}
	}
	return nil
}

type secretPointer struct {
	name string
	path string
}

// pendingSecrets returns the secret variables that are unset but have a
// pointer, in secretVars order.
func pendingSecrets(e env) []secretPointer {
	var out []secretPointer
	for _, name := range secretVars {
		if _, set := e.lookup(name); set {
			continue
		}
		if path, _ := e.lookup(name + ssmParamSuffix); path != "" {
			out = append(out, secretPointer{name: name, path: path})
		}
	}
	return out
}

// resolveSecrets fetches every pending pointer in one provider call and
// exports the values so envconfig picks them up.
func resolveSecrets(provider SecretProvider, e env) error {
	pending := pendingSecrets(e)
	if len(pending) == 0 {
		return nil
	}

	names := make([]string, len(pending))
	paths := make([]string, len(pending))
	for i, p := range pending {
		names[i], paths[i] = p.name, p.path
	}

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("a secret provider is required to resolve %s", strings.Join(names, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmTimeout)
	defer cancel()

	values, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %s", strings.Join(names, ", ")),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range pending {
		v, ok := values[p.path]
		if !ok {
			missing = append(missing, p.name)
			continue
		}
		if err := e.set(p.name, v); err != nil {
			return &ConfigError{Type: ErrSSMResolution, Message: "failed to export " + p.name, Err: err}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
