// Package config provides configuration types and loading for ansibot.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration struct.
type Config struct {
	Paths      PathsConfig      `json:"paths"`
	Controller ControllerConfig `json:"controller"`
	Planner    ModelConfig      `json:"planner"`
	Reasoner   ModelConfig      `json:"reasoner"`
	Agent      AgentConfig      `json:"agent"`
	Session    SessionConfig    `json:"session"`
	Channels   ChannelsConfig   `json:"channels"`
	Audit      AuditConfig      `json:"audit"`
}

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// ControllerConfig points at the automation controller API.
type ControllerConfig struct {
	BaseURL            string        `json:"baseUrl" envconfig:"BASE_URL"`
	InsecureSkipVerify bool          `json:"insecureSkipVerify" envconfig:"INSECURE_SKIP_VERIFY"`
	RequestTimeout     time.Duration `json:"requestTimeout" envconfig:"REQUEST_TIMEOUT"`
}

// ModelConfig configures one LLM endpoint. The planner proposes tool calls;
// the reasoner classifies execution intent.
type ModelConfig struct {
	APIKey      string  `json:"apiKey" envconfig:"API_KEY"`
	APIBase     string  `json:"apiBase" envconfig:"API_BASE"`
	Model       string  `json:"model" envconfig:"MODEL"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// AgentConfig groups turn-loop limits and job polling behaviour.
type AgentConfig struct {
	MaxIterations   int           `json:"maxIterations" envconfig:"MAX_ITERATIONS"`
	RecursionLimit  int           `json:"recursionLimit" envconfig:"RECURSION_LIMIT"`
	ApprovalTimeout time.Duration `json:"approvalTimeout" envconfig:"APPROVAL_TIMEOUT"`
	JobPollInterval time.Duration `json:"jobPollInterval" envconfig:"JOB_POLL_INTERVAL"`
	JobPollTimeout  time.Duration `json:"jobPollTimeout" envconfig:"JOB_POLL_TIMEOUT"`
}

// SessionConfig controls the credential session store.
type SessionConfig struct {
	Expiry        time.Duration `json:"expiry" envconfig:"EXPIRY"`
	SweepInterval time.Duration `json:"sweepInterval" envconfig:"SWEEP_INTERVAL"`
}

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Slack SlackConfig `json:"slack"`
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled   bool     `json:"enabled" envconfig:"ENABLED"`
	AppToken  string   `json:"appToken" envconfig:"APP_TOKEN"`
	BotToken  string   `json:"botToken" envconfig:"BOT_TOKEN"`
	AllowFrom []string `json:"allowFrom"`
}

// AuditConfig configures the Kafka audit event publisher.
type AuditConfig struct {
	Enabled bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers []string `json:"brokers" envconfig:"BROKERS"`
	Topic   string   `json:"topic" envconfig:"TOPIC"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.ansibot",
		},
		Controller: ControllerConfig{
			RequestTimeout: 30 * time.Second,
		},
		Planner: ModelConfig{
			MaxTokens:   4096,
			Temperature: 0,
		},
		Reasoner: ModelConfig{
			MaxTokens:   256,
			Temperature: 0,
		},
		Agent: AgentConfig{
			MaxIterations:   8,
			RecursionLimit:  300,
			ApprovalTimeout: 60 * time.Second,
			JobPollInterval: 1 * time.Second,
			JobPollTimeout:  60 * time.Second,
		},
		Session: SessionConfig{
			Expiry:        24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Topic: "ansibot.audit",
		},
	}
}

// Validate checks that required settings are present. Called once at startup;
// a broken config is a process-fatal condition.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Controller.BaseURL) == "" {
		return fmt.Errorf("controller.baseUrl is required")
	}
	if strings.TrimSpace(c.Planner.APIBase) == "" || strings.TrimSpace(c.Planner.Model) == "" {
		return fmt.Errorf("planner.apiBase and planner.model are required")
	}
	if strings.TrimSpace(c.Reasoner.APIBase) == "" || strings.TrimSpace(c.Reasoner.Model) == "" {
		return fmt.Errorf("reasoner.apiBase and reasoner.model are required")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.maxIterations must be positive")
	}
	if c.Agent.RecursionLimit <= 0 {
		return fmt.Errorf("agent.recursionLimit must be positive")
	}
	if c.Channels.Slack.Enabled {
		if c.Channels.Slack.AppToken == "" || c.Channels.Slack.BotToken == "" {
			return fmt.Errorf("slack channel enabled but appToken/botToken missing")
		}
	}
	if c.Audit.Enabled && len(c.Audit.Brokers) == 0 {
		return fmt.Errorf("audit enabled but no brokers configured")
	}
	return nil
}
