/*
Package config loads the server configuration.

SOURCES (later wins):
  1. Defaults below
  2. A .env file in the working directory, if present
  3. Environment variables
  4. Command line flags (bound in cmd/server)

KEYS:
  PORT                   8080
  DB_PATH                appropriation.db (":memory:" for a throwaway store)
  LOG_LEVEL              info (debug, info, warn, error)
  ACCOUNTING_DEPARTMENT  XXX
  ACCOUNTING_KIND        XXX
  HORIZON_CRON           "0 3 * * *"
  SCHEDULER_ENABLED      true
  SMTP_ADDR              host:port; empty disables email notifications
  SMTP_FROM, NOTIFY_TO   sender and the payments office address
  REGISTRY_URL           person registry base url; empty uses the mock registry
  CORS_ORIGINS           comma separated; empty allows any origin
  MANAGERS               comma separated users allowed to grant; empty allows everyone
*/
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string
	DBPath   string
	LogLevel slog.Level

	AccountingDepartment string
	AccountingKind       string

	HorizonCron      string
	SchedulerEnabled bool

	SMTPAddr string
	SMTPFrom string
	NotifyTo string

	RegistryURL string
	CORSOrigins []string
	Managers    []string
}

// Defaults registers the default of every key on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "appropriation.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ACCOUNTING_DEPARTMENT", "XXX")
	v.SetDefault("ACCOUNTING_KIND", "XXX")
	v.SetDefault("HORIZON_CRON", "0 3 * * *")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("NOTIFY_TO", "")
	v.SetDefault("REGISTRY_URL", "")
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("MANAGERS", "")
}

// Load reads .env and the environment into a fresh viper instance.
func Load() (*Config, error) {
	return LoadInto(viper.New())
}

// LoadInto layers defaults, .env and the environment onto v, which may
// already carry flag bindings.
func LoadInto(v *viper.Viper) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	Defaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                 v.GetString("PORT"),
		DBPath:               v.GetString("DB_PATH"),
		AccountingDepartment: v.GetString("ACCOUNTING_DEPARTMENT"),
		AccountingKind:       v.GetString("ACCOUNTING_KIND"),
		HorizonCron:          v.GetString("HORIZON_CRON"),
		SchedulerEnabled:     v.GetBool("SCHEDULER_ENABLED"),
		SMTPAddr:             v.GetString("SMTP_ADDR"),
		SMTPFrom:             v.GetString("SMTP_FROM"),
		NotifyTo:             v.GetString("NOTIFY_TO"),
		RegistryURL:          v.GetString("REGISTRY_URL"),
		CORSOrigins:          splitList(v.GetString("CORS_ORIGINS")),
		Managers:             splitList(v.GetString("MANAGERS")),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("PORT must not be empty")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH must not be empty")
	}
	if _, err := cron.ParseStandard(cfg.HorizonCron); err != nil {
		return nil, fmt.Errorf("HORIZON_CRON %q: %w", cfg.HorizonCron, err)
	}
	if cfg.SMTPAddr != "" && (cfg.SMTPFrom == "" || cfg.NotifyTo == "") {
		return nil, fmt.Errorf("SMTP_ADDR requires SMTP_FROM and NOTIFY_TO")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
