package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default announcer voice plus the two alternates the gateway accepts.
const defaultVoice = "Polly.Salli"

var allowedVoices = map[string]bool{
	"alice": true,
	"man":   true,
}

// TeamConfig is one manually configured destination team. When any are
// present they replace the "list every team from the roster" behavior, and
// each name must resolve to a real roster slug at call time.
type TeamConfig struct {
	Name             string `yaml:"name"`
	EscalationPolicy string `yaml:"escalation_policy"`
}

// Config contains all runtime settings for the call routing service.
type Config struct {
	BindAddr         string
	PublicURL        string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AlertHost string
	APIHost   string

	// MenuDepth: 0 skips all menus and auto-routes, 1 shows the
	// call-or-message menu then the team menu, 2 shows the team menu only.
	MenuDepth int

	Voice       string
	NoVoicemail bool
	NoCall      bool
	VMEmail     bool

	APIID         string
	APIKey        string
	ServiceAPIKey string

	MailAPIKey string
	MailTo     string
	MailFrom   string

	Teams []TeamConfig
}

// HasRequiredSecrets reports whether the incident-platform credentials are
// present. Missing secrets are not a startup failure: the webhook speaks an
// apology to the caller instead of processing the call.
func (c Config) HasRequiredSecrets() bool {
	return c.APIID != "" && c.APIKey != "" && c.ServiceAPIKey != ""
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		PublicURL:        strings.TrimRight(envOrDefault("APP_PUBLIC_URL", "http://localhost:8080"), "/"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "callrouter"),
		AlertHost:        envOrDefault("ALERT_HOST", "alert.victorops.com"),
		APIHost:          envOrDefault("API_HOST", "api.victorops.com"),
		Voice:            defaultVoice,
		APIID:            trimmedEnv("VICTOROPS_API_ID"),
		APIKey:           trimmedEnv("VICTOROPS_API_KEY"),
		ServiceAPIKey:    trimmedEnv("VICTOROPS_SERVICE_API_KEY"),
		MailAPIKey:       trimmedEnv("SENDGRID_API_KEY"),
		MailTo:           trimmedEnv("VM_EMAIL_TO"),
		MailFrom:         trimmedEnv("VM_EMAIL_FROM"),
		ShutdownTimeout:  15 * time.Second,
	}

	// Any value outside {1, 2} normalizes to 0 (auto-route).
	switch trimmedEnv("NUMBER_OF_MENUS") {
	case "1":
		cfg.MenuDepth = 1
	case "2":
		cfg.MenuDepth = 2
	default:
		cfg.MenuDepth = 0
	}

	// Voices outside the allow-list fall back to the default profile.
	if v := trimmedEnv("VOICE"); allowedVoices[v] {
		cfg.Voice = v
	}

	var err error
	cfg.NoVoicemail, err = boolFromEnv("NO_VOICEMAIL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.NoCall, err = boolFromEnv("NO_CALL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.VMEmail, err = boolFromEnv("VM_EMAIL", false)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	if path := trimmedEnv("TEAMS_FILE"); path != "" {
		cfg.Teams, err = loadTeamsFile(path)
		if err != nil {
			return Config{}, err
		}
	}

	if cfg.VMEmail && (cfg.MailAPIKey == "" || cfg.MailTo == "" || cfg.MailFrom == "") {
		return Config{}, fmt.Errorf("VM_EMAIL requires SENDGRID_API_KEY, VM_EMAIL_TO and VM_EMAIL_FROM")
	}

	return cfg, nil
}

// loadTeamsFile parses the declared team list. The file is a YAML sequence of
// {name, escalation_policy} entries, loaded once at startup and kept sorted
// by name so menu positions are stable across legs.
func loadTeamsFile(path string) ([]TeamConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read TEAMS_FILE: %w", err)
	}
	var teams []TeamConfig
	if err := yaml.Unmarshal(raw, &teams); err != nil {
		return nil, fmt.Errorf("parse TEAMS_FILE: %w", err)
	}
	for i, t := range teams {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("TEAMS_FILE entry %d has no name", i)
		}
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
