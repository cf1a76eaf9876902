package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CredentialFields names the login form inputs on a distributor portal.
type CredentialFields struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// DistributorProfile is the immutable per-distributor configuration. Created
// at startup from the profiles file; never mutated afterwards.
type DistributorProfile struct {
	Identifier       string
	BaseURL          string
	LoginURL         string
	Credentials      CredentialFields
	Concurrency      int
	RateLimit        time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	ConvergenceCap   int
	StableIterations int
	SessionTTL       time.Duration
	PriceValidity    time.Duration
	UserAgent        string
}

// profileYAML is the on-disk shape of one distributor entry. Durations are
// unit-suffixed integers.
type profileYAML struct {
	Identifier        string           `yaml:"identifier"`
	BaseURL           string           `yaml:"base_url"`
	LoginURL          string           `yaml:"login_url"`
	Credentials       CredentialFields `yaml:"credential_fields"`
	Concurrency       int              `yaml:"concurrency"`
	RateLimitMs       int              `yaml:"rate_limit_ms"`
	TimeoutSec        int              `yaml:"timeout_sec"`
	MaxRetries        *int             `yaml:"max_retries"`
	RetryBackoffMs    int              `yaml:"retry_backoff_ms"`
	RetryBackoffMaxMs int              `yaml:"retry_backoff_max_ms"`
	ConvergenceCap    int              `yaml:"convergence_cap"`
	StableIterations  int              `yaml:"stable_iterations"`
	SessionTTLMin     int              `yaml:"session_ttl_min"`
	PriceValidityDays int              `yaml:"price_validity_days"`
	UserAgent         string           `yaml:"user_agent"`
}

type profilesFile struct {
	Distributors []profileYAML `yaml:"distributors"`
}

// DefaultProfile returns a profile with the subsystem-wide defaults applied.
// Callers overwrite the identifier and URLs.
func DefaultProfile() *DistributorProfile {
	return &DistributorProfile{
		Concurrency:      3,
		RateLimit:        500 * time.Millisecond,
		Timeout:          20 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     200 * time.Millisecond,
		RetryBackoffMax:  5 * time.Second,
		ConvergenceCap:   50,
		StableIterations: 1,
		SessionTTL:       30 * time.Minute,
		PriceValidity:    7 * 24 * time.Hour,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
	}
}

// LoadProfiles reads and validates the distributor profiles document.
func LoadProfiles(path string) (map[string]*DistributorProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}

	var doc profilesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}
	if len(doc.Distributors) == 0 {
		return nil, fmt.Errorf("profiles file declares no distributors")
	}

	profiles := make(map[string]*DistributorProfile, len(doc.Distributors))
	for _, entry := range doc.Distributors {
		p := entry.toProfile()
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Identifier, err)
		}
		if _, dup := profiles[p.Identifier]; dup {
			return nil, fmt.Errorf("duplicate distributor identifier %q", p.Identifier)
		}
		profiles[p.Identifier] = p
	}
	return profiles, nil
}

func (y profileYAML) toProfile() *DistributorProfile {
	p := DefaultProfile()
	p.Identifier = y.Identifier
	p.BaseURL = y.BaseURL
	p.LoginURL = y.LoginURL

	if y.Credentials.Email != "" {
		p.Credentials.Email = y.Credentials.Email
	} else {
		p.Credentials.Email = "email"
	}
	if y.Credentials.Password != "" {
		p.Credentials.Password = y.Credentials.Password
	} else {
		p.Credentials.Password = "password"
	}

	if y.Concurrency > 0 {
		p.Concurrency = y.Concurrency
	}
	if y.RateLimitMs > 0 {
		p.RateLimit = time.Duration(y.RateLimitMs) * time.Millisecond
	}
	if y.TimeoutSec > 0 {
		p.Timeout = time.Duration(y.TimeoutSec) * time.Second
	}
	if y.MaxRetries != nil {
		p.MaxRetries = *y.MaxRetries
	}
	if y.RetryBackoffMs > 0 {
		p.RetryBackoff = time.Duration(y.RetryBackoffMs) * time.Millisecond
	}
	if y.RetryBackoffMaxMs > 0 {
		p.RetryBackoffMax = time.Duration(y.RetryBackoffMaxMs) * time.Millisecond
	}
	if y.ConvergenceCap > 0 {
		p.ConvergenceCap = y.ConvergenceCap
	}
	if y.StableIterations > 0 {
		p.StableIterations = y.StableIterations
	}
	if y.SessionTTLMin > 0 {
		p.SessionTTL = time.Duration(y.SessionTTLMin) * time.Minute
	}
	if y.PriceValidityDays > 0 {
		p.PriceValidity = time.Duration(y.PriceValidityDays) * 24 * time.Hour
	}
	if y.UserAgent != "" {
		p.UserAgent = y.UserAgent
	}
	return p
}

// Validate ensures the profile is usable.
func (p *DistributorProfile) Validate() error {
	if p.Identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if p.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsed, err := url.Parse(p.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if p.LoginURL != "" {
		if _, err := url.Parse(p.LoginURL); err != nil {
			return fmt.Errorf("invalid login URL: %w", err)
		}
	}
	if p.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if p.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if p.RetryBackoffMax > 0 && p.RetryBackoff > p.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", p.RetryBackoff, p.RetryBackoffMax)
	}
	if p.ConvergenceCap <= 0 {
		return fmt.Errorf("convergence cap must be positive")
	}
	if p.StableIterations <= 0 {
		return fmt.Errorf("stable iterations must be positive")
	}
	if p.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if p.PriceValidity <= 0 {
		return fmt.Errorf("price validity must be positive")
	}
	return nil
}
