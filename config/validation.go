package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"gradekit/aggregate"
	"gradekit/core"
)

var validate = validator.New()

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		errs = append(errs, describe(err)...)
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Grading.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("grading config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Analytics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("analytics config: %v", err))
	}

	for name, hash := range c.Admins {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "admins: empty username")
			continue
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			errs = append(errs, fmt.Sprintf("admins[%s]: password must be a bcrypt hash", name))
		}
	}

	for i, ep := range c.Webhooks.Endpoints {
		if err := validate.Var(ep, "required,url"); err != nil {
			errs = append(errs, fmt.Sprintf("webhooks.endpoints[%d] is not a url", i))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// describe flattens validator errors into "namespace failed tag" messages.
func describe(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			out = append(out, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			out = append(out, fmt.Sprintf("%s must satisfy %s", field, fe.Tag()))
		}
	}
	return out
}

// Validate checks the settings of the selected adapter.
func (s *StorageConfig) Validate() error {
	switch s.Adapter {
	case AdapterFile:
		return s.File.Validate()
	case AdapterSQL:
		return s.SQL.Validate()
	case AdapterRedis:
		if s.Redis.Addr == "" {
			return errors.New("redis.addr cannot be empty")
		}
	case AdapterMongoDB:
		if s.MongoDB.URI == "" || s.MongoDB.Database == "" {
			return errors.New("mongodb.uri and mongodb.database are required")
		}
	}
	return nil
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate checks the score policy, bands and default term.
func (g *GradingConfig) Validate() error {
	var errs []string
	if err := (core.ScorePolicy{Min: g.ScoreMin, Max: g.ScoreMax}).Validate(); err != nil {
		errs = append(errs, "score_max must exceed score_min")
	}
	if len(g.Bands) > 0 {
		if err := aggregate.ValidateBands(g.Bands); err != nil {
			errs = append(errs, fmt.Sprintf("bands: %v", err))
		}
	}
	if g.DefaultTerm != "" {
		if _, err := core.ParseTerm(g.DefaultTerm); err != nil {
			errs = append(errs, fmt.Sprintf("default_term: %v", err))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates security settings.
func (s *SecurityConfig) Validate() error {
	var errs []string
	if s.EnableRateLimit && s.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the analytics section when it is enabled.
func (a *AnalyticsConfig) Validate() error {
	if !a.Enabled {
		return nil
	}
	if a.Interval < time.Minute {
		return fmt.Errorf("interval must be at least 1m, got %s", a.Interval)
	}
	if a.ExportEndpoint != "" {
		if err := validate.Var(a.ExportEndpoint, "url"); err != nil {
			return fmt.Errorf("export endpoint %q is not a url", a.ExportEndpoint)
		}
		if a.ExportBatch <= 0 {
			return errors.New("export batch must be positive")
		}
	}
	return nil
}
