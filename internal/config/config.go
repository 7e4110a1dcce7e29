package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Crash recovery policies for actions that were started but never recorded.
const (
	RecoveryReattempt  = "reattempt"
	RecoveryAssumeDone = "assume_done"
)

type Config struct {
	Browser struct {
		BaseURL  string `yaml:"base_url"`
		Headless bool   `yaml:"headless"`
	} `yaml:"browser"`
	Limits struct {
		MaxConnectionsPerDay int `yaml:"max_connections_per_day"`
		MaxMessagesPerDay    int `yaml:"max_messages_per_day"`
	} `yaml:"limits"`
	Pacing struct {
		MinDelaySeconds   int    `yaml:"min_delay_seconds"`
		MaxDelaySeconds   int    `yaml:"max_delay_seconds"`
		BreakAfterActions int    `yaml:"break_after_actions"`
		BreakSeconds      int    `yaml:"break_seconds"`
		ActiveStart       string `yaml:"active_start"`
		ActiveEnd         string `yaml:"active_end"`
	} `yaml:"pacing"`
	Classifier struct {
		RecruiterTitles []string `yaml:"recruiter_titles"`
		NegativeTitles  []string `yaml:"negative_titles"`
	} `yaml:"classifier"`
	AI struct {
		APIKey            string `yaml:"-"`
		BaseURL           string `yaml:"base_url"`
		Model             string `yaml:"model"`
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		MaxRetries        int    `yaml:"max_retries"`
		RequestsPerMinute int    `yaml:"requests_per_minute"`
		FailureThreshold  int    `yaml:"failure_threshold"`
	} `yaml:"ai"`
	Outreach struct {
		CompaniesFile         string `yaml:"companies_file"`
		MaxProfilesPerCompany int    `yaml:"max_profiles_per_company"`
		CrashRecovery         string `yaml:"crash_recovery"`
		FollowUpAfterDays     int    `yaml:"follow_up_after_days"`
	} `yaml:"outreach"`
	Resume struct {
		Path string `yaml:"path"`
	} `yaml:"resume"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Audit struct {
		CSVPath string `yaml:"csv_path"`
	} `yaml:"audit"`
	Status struct {
		Addr string `yaml:"addr"`
	} `yaml:"status"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional
	cfg := defaultConfig()
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching files or env.
func Default() Config { return defaultConfig() }

func defaultConfig() Config {
	var cfg Config
	cfg.Browser.BaseURL = "https://www.linkedin.com/"
	cfg.Limits.MaxConnectionsPerDay = 20
	cfg.Limits.MaxMessagesPerDay = 15
	cfg.Pacing.MinDelaySeconds = 10
	cfg.Pacing.MaxDelaySeconds = 30
	cfg.Pacing.BreakAfterActions = 5
	cfg.Pacing.BreakSeconds = 120
	cfg.Pacing.ActiveStart = "09:00"
	cfg.Pacing.ActiveEnd = "18:00"
	cfg.Classifier.RecruiterTitles = []string{
		"Technical Recruiter",
		"Senior Recruiter",
		"Talent Acquisition Partner",
		"Talent Acquisition",
		"University Recruiter",
		"Hiring Manager",
		"Engineering Manager",
		"HR Manager",
		"Recruiter",
	}
	cfg.Classifier.NegativeTitles = []string{
		"Student",
		"Intern",
		"Looking for",
		"Open to work",
	}
	cfg.AI.BaseURL = "https://generativelanguage.googleapis.com"
	cfg.AI.Model = "gemini-2.0-flash"
	cfg.AI.TimeoutSeconds = 30
	cfg.AI.MaxRetries = 2
	cfg.AI.RequestsPerMinute = 15
	cfg.AI.FailureThreshold = 5
	cfg.Outreach.CompaniesFile = "data/companies.txt"
	cfg.Outreach.MaxProfilesPerCompany = 5
	cfg.Outreach.CrashRecovery = RecoveryReattempt
	cfg.Resume.Path = "data/resume.txt"
	cfg.Database.Path = "data/outreach.db"
	cfg.Audit.CSVPath = "data/outreach_log.csv"
	cfg.Logging.Level = "info"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OUTREACHBOT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("OUTREACHBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OUTREACHBOT_HEADLESS"); v == "1" || v == "true" {
		cfg.Browser.Headless = true
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
}

func (cfg *Config) Validate() error {
	if cfg.Browser.BaseURL == "" {
		return errors.New("browser.base_url is required")
	}
	if cfg.Limits.MaxConnectionsPerDay <= 0 {
		return errors.New("limits.max_connections_per_day must be > 0")
	}
	if cfg.Limits.MaxMessagesPerDay <= 0 {
		return errors.New("limits.max_messages_per_day must be > 0")
	}
	if cfg.Pacing.MinDelaySeconds < 0 || cfg.Pacing.MaxDelaySeconds < cfg.Pacing.MinDelaySeconds {
		return errors.New("pacing: need 0 <= min_delay_seconds <= max_delay_seconds")
	}
	if len(cfg.Classifier.RecruiterTitles) == 0 {
		return errors.New("classifier.recruiter_titles must not be empty")
	}
	for _, t := range cfg.Classifier.RecruiterTitles {
		if strings.TrimSpace(t) == "" {
			return errors.New("classifier.recruiter_titles contains an empty entry")
		}
	}
	switch cfg.Outreach.CrashRecovery {
	case RecoveryReattempt, RecoveryAssumeDone:
	default:
		return fmt.Errorf("outreach.crash_recovery: unknown policy %q", cfg.Outreach.CrashRecovery)
	}
	if cfg.Outreach.MaxProfilesPerCompany <= 0 {
		return errors.New("outreach.max_profiles_per_company must be > 0")
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is required")
	}
	return nil
}

// RequireCredentials checks the secrets needed by commands that drive the browser.
func (cfg *Config) RequireCredentials() error {
	if os.Getenv("LINKEDIN_EMAIL") == "" {
		return errors.New("LINKEDIN_EMAIL is required in env")
	}
	if os.Getenv("LINKEDIN_PASSWORD") == "" {
		return errors.New("LINKEDIN_PASSWORD is required in env")
	}
	return nil
}

func (cfg *Config) MinDelay() time.Duration {
	return time.Duration(cfg.Pacing.MinDelaySeconds) * time.Second
}

func (cfg *Config) MaxDelay() time.Duration {
	return time.Duration(cfg.Pacing.MaxDelaySeconds) * time.Second
}

// LoadCompanies reads one company per line. Blank lines and lines starting
// with # are ignored; duplicates keep their first position.
func LoadCompanies(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read companies: %w", err)
	}
	seen := map[string]bool{}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "#") || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no companies listed in %s", path)
	}
	return out, nil
}
