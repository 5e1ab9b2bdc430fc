package worker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ternarybob/enricher/internal/models"
)

// Env is the contract between the control process and a worker. The control
// process builds it per job and passes it as environment variables.
type Env struct {
	Selectors        string        `env:"JOB_SELECTORS"` // JSON SelectorConfig
	Cookies          string        `env:"JOB_COOKIES"`
	Manual           bool          `env:"JOB_MANUAL"` // 1/0
	Headless         bool          `env:"JOB_HEADLESS"`
	ProgressFile     string        `env:"JOB_PROGRESS_FILE,required"`
	SignalFile       string        `env:"JOB_SIGNAL_FILE,required"`
	ProfileDir       string        `env:"JOB_PROFILE_DIR" envDefault:"./data/browser_profile"`
	LoginTimeout     time.Duration `env:"JOB_LOGIN_TIMEOUT" envDefault:"30m"` // 0 waits forever
	OperationTimeout time.Duration `env:"JOB_OPERATION_TIMEOUT" envDefault:"60s"`
	RatePolicy       string        `env:"JOB_RATE_POLICY"` // JSON RatePolicy
	UserAgent        string        `env:"JOB_USER_AGENT"`
	PersonalDomains  []string      `env:"JOB_PERSONAL_DOMAINS" envSeparator:","`
	LogLevel         string        `env:"JOB_LOG_LEVEL" envDefault:"info"`
}

// LoadEnv parses the contract from the process environment
func LoadEnv() (*Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("invalid worker environment: %w", err)
	}
	return &e, nil
}

// ParseEnv parses the contract from an explicit variable set
func ParseEnv(vars map[string]string) (*Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("invalid worker environment: %w", err)
	}
	return &e, nil
}

// Environ renders the contract as KEY=VALUE pairs for exec.Cmd.Env
func (e *Env) Environ() []string {
	manual := "0"
	if e.Manual {
		manual = "1"
	}
	return []string{
		"JOB_SELECTORS=" + e.Selectors,
		"JOB_COOKIES=" + e.Cookies,
		"JOB_MANUAL=" + manual,
		"JOB_HEADLESS=" + strconv.FormatBool(e.Headless),
		"JOB_PROGRESS_FILE=" + e.ProgressFile,
		"JOB_SIGNAL_FILE=" + e.SignalFile,
		"JOB_PROFILE_DIR=" + e.ProfileDir,
		"JOB_LOGIN_TIMEOUT=" + e.LoginTimeout.String(),
		"JOB_OPERATION_TIMEOUT=" + e.OperationTimeout.String(),
		"JOB_RATE_POLICY=" + e.RatePolicy,
		"JOB_USER_AGENT=" + e.UserAgent,
		"JOB_PERSONAL_DOMAINS=" + strings.Join(e.PersonalDomains, ","),
		"JOB_LOG_LEVEL=" + e.LogLevel,
	}
}

// SelectorConfig decodes JOB_SELECTORS. An unreadable blob is a configuration error.
func (e *Env) SelectorConfig() (models.SelectorConfig, error) {
	var selectors models.SelectorConfig
	if strings.TrimSpace(e.Selectors) == "" {
		return selectors, nil
	}
	if err := json.Unmarshal([]byte(e.Selectors), &selectors); err != nil {
		return selectors, &models.ConfigurationError{Fields: []string{"JOB_SELECTORS"}, Err: err}
	}
	return selectors, nil
}

// Policy decodes JOB_RATE_POLICY, defaulting to the conservative preset
func (e *Env) Policy() (models.RatePolicy, error) {
	policy := models.RatePolicy{Preset: models.RatePresetConservative}
	if strings.TrimSpace(e.RatePolicy) == "" {
		return policy, nil
	}
	if err := json.Unmarshal([]byte(e.RatePolicy), &policy); err != nil {
		return policy, fmt.Errorf("invalid JOB_RATE_POLICY: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("invalid JOB_RATE_POLICY: %w", err)
	}
	return policy, nil
}

// EncodeJSON marshals a contract value. The types involved always encode.
func EncodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
