// Package config loads the treasury agent's runtime configuration from
// environment variables. LoadTemplates separately parses an optional
// YAML file of per-document table templates (command table, auto-approve
// list, payout defaults); Load does not read that file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/docwallet-hq/agent/pkg/notify"
	"github.com/docwallet-hq/agent/pkg/repository"
)

// Config is the full set of operating parameters for one agent process.
// A process may serve multiple documents; per-document overrides live in
// DocConfig (pkg/model) inside the repository, not here.
type Config struct {
	Backend    string `env:"DOCWALLET_REPO_BACKEND" envDefault:"sqlite"`
	DataDir    string `env:"DOCWALLET_DATA_DIR" envDefault:"./data"`
	SQLitePath string `env:"DOCWALLET_SQLITE_PATH"`

	PostgresHost     string `env:"DOCWALLET_PG_HOST"`
	PostgresPort     int    `env:"DOCWALLET_PG_PORT" envDefault:"5432"`
	PostgresUser     string `env:"DOCWALLET_PG_USER"`
	PostgresPassword string `env:"DOCWALLET_PG_PASSWORD"`
	PostgresDatabase string `env:"DOCWALLET_PG_DATABASE"`
	PostgresSSLMode  string `env:"DOCWALLET_PG_SSLMODE" envDefault:"require"`

	DemoMode       bool          `env:"DOCWALLET_DEMO_MODE" envDefault:"true"`
	ExecutorBudget int           `env:"DOCWALLET_EXECUTOR_BUDGET" envDefault:"5"`
	MasterKeyPath  string        `env:"DOCWALLET_MASTER_KEY_PATH" envDefault:"./data/master.key"`
	ApprovalAddr   string        `env:"DOCWALLET_APPROVAL_ADDR" envDefault:"127.0.0.1:8088"`
	HealthAddr     string        `env:"DOCWALLET_HEALTH_ADDR" envDefault:"127.0.0.1:8089"`

	PollInterval      time.Duration `env:"DOCWALLET_POLL_INTERVAL" envDefault:"15s"`
	ExecutorInterval  time.Duration `env:"DOCWALLET_EXECUTOR_INTERVAL" envDefault:"5s"`
	ChatInterval      time.Duration `env:"DOCWALLET_CHAT_INTERVAL" envDefault:"3s"`
	BalancesInterval  time.Duration `env:"DOCWALLET_BALANCES_INTERVAL" envDefault:"60s"`
	SchedulerInterval time.Duration `env:"DOCWALLET_SCHEDULER_INTERVAL" envDefault:"30s"`
	PriceInterval     time.Duration `env:"DOCWALLET_PRICE_INTERVAL" envDefault:"20s"`
	AdvisorInterval   time.Duration `env:"DOCWALLET_ADVISOR_INTERVAL" envDefault:"5m"`
	PayoutInterval    time.Duration `env:"DOCWALLET_PAYOUT_INTERVAL" envDefault:"1h"`
	DiscoveryInterval time.Duration `env:"DOCWALLET_DISCOVERY_INTERVAL" envDefault:"2m"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	CopilotAPIKey   string `env:"COPILOT_API_KEY"`
	AdvisorBackend  string `env:"DOCWALLET_ADVISOR_BACKEND" envDefault:"anthropic"`

	DiscordBotToken  string `env:"DISCORD_BOT_TOKEN"`
	SlackBotToken    string `env:"SLACK_BOT_TOKEN"`
	SlackAppToken    string `env:"SLACK_APP_TOKEN"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	LarkAppID        string `env:"LARK_APP_ID"`
	LarkAppSecret    string `env:"LARK_APP_SECRET"`
	DingTalkClientID string `env:"DINGTALK_CLIENT_ID"`
	DingTalkSecret   string `env:"DINGTALK_CLIENT_SECRET"`
	QQAppID          string `env:"QQ_APP_ID"`
	QQBotToken       string `env:"QQ_BOT_TOKEN"`

	// TemplatesPath points to a YAML file describing per-document table
	// layouts and payout defaults, read by LoadTemplates. Optional; an
	// empty path or a missing file yields an empty template set.
	TemplatesPath string `env:"DOCWALLET_TEMPLATES_PATH"`
}

// Load reads Config from the environment, applying envDefault tags for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment config: %w", err)
	}
	return cfg, nil
}

// NotifyConfig adapts Config into the shape pkg/notify.NewFanout expects.
func (c *Config) NotifyConfig() notify.Config {
	return notify.Config{
		DiscordBotToken:      c.DiscordBotToken,
		SlackBotToken:        c.SlackBotToken,
		SlackAppToken:        c.SlackAppToken,
		TelegramBotToken:     c.TelegramBotToken,
		LarkAppID:            c.LarkAppID,
		LarkAppSecret:        c.LarkAppSecret,
		DingTalkClientID:     c.DingTalkClientID,
		DingTalkClientSecret: c.DingTalkSecret,
		QQAppID:              c.QQAppID,
		QQBotToken:           c.QQBotToken,
	}
}

// RepositoryConfig adapts Config into the shape pkg/repository.New expects.
func (c *Config) RepositoryConfig() repository.Config {
	rc := repository.Config{
		Backend:    c.Backend,
		DataDir:    c.DataDir,
		SQLitePath: c.SQLitePath,
	}
	if c.Backend == "postgres" {
		rc.Postgres = &repository.PostgresConfig{
			Host:     c.PostgresHost,
			Port:     c.PostgresPort,
			User:     c.PostgresUser,
			Password: c.PostgresPassword,
			Database: c.PostgresDatabase,
			SSLMode:  c.PostgresSSLMode,
		}
	}
	return rc
}

// TableTemplate describes one document's table layout: which sheet/table
// names map to which command column, and the default payout policy for
// commands created without explicit arguments.
type TableTemplate struct {
	DocumentID     string   `yaml:"document_id"`
	CommandTable   string   `yaml:"command_table"`
	AutoApprove    []string `yaml:"auto_approve"`
	PayoutDefaults struct {
		Recipient string  `yaml:"recipient"`
		Percent   float64 `yaml:"percent"`
	} `yaml:"payout_defaults"`
}

// TemplateFile is the top-level shape of the YAML templates file.
type TemplateFile struct {
	Templates []TableTemplate `yaml:"templates"`
}

// LoadTemplates reads the optional YAML templates file. A missing path
// or missing file is not an error; it just yields an empty template set.
func LoadTemplates(path string) (*TemplateFile, error) {
	if path == "" {
		return &TemplateFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &TemplateFile{}, nil
		}
		return nil, fmt.Errorf("read templates file %s: %w", path, err)
	}
	var tf TemplateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse templates file %s: %w", path, err)
	}
	return &tf, nil
}
