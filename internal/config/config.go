// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Levels     []LevelConfig    `mapstructure:"levels"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Trial      TrialConfig      `mapstructure:"trial"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// LevelConfig describes one progression tier. All amounts are in cents.
type LevelConfig struct {
	Level         int   `mapstructure:"level"`
	TaskReward    int64 `mapstructure:"task_reward"`
	DailyQuota    int   `mapstructure:"daily_quota"`
	UpgradeCost   int64 `mapstructure:"upgrade_cost"`
	ReferralBonus int64 `mapstructure:"referral_bonus"`
}

// CalendarConfig holds the access-gating calendar rules.
type CalendarConfig struct {
	RestWeekday int                 `mapstructure:"rest_weekday"` // time.Weekday value, default Sunday
	Holidays    map[string][]Holiday `mapstructure:"holidays"`    // keyed by year, e.g. "2026"
}

// Holiday is a single calendar-date entry in the holiday table.
type Holiday struct {
	Date string `mapstructure:"date"` // "2006-01-02"
	Name string `mapstructure:"name"`
}

// WithdrawalConfig holds withdrawal admission rules.
type WithdrawalConfig struct {
	MinAmount int64 `mapstructure:"min_amount"` // cents
	OpenHour  int   `mapstructure:"open_hour"`  // inclusive, 24h clock
	CloseHour int   `mapstructure:"close_hour"` // exclusive
}

// TrialConfig holds the time-boxed trial rules for level-0 accounts.
type TrialConfig struct {
	Days int `mapstructure:"days"`
}

// SchedulerConfig holds the daily maintenance schedule.
type SchedulerConfig struct {
	ResetHour int `mapstructure:"reset_hour"` // local wall-clock hour for the daily reset
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. DATABASE_HOST, WITHDRAWAL_MIN_AMOUNT.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rewardengine")
	v.SetDefault("database.name", "rewardengine")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Tier table. Amounts in cents: level 0 pays 7.00 per task, level 1
	// costs 2800.00 to enter and pays the inviter 280.00, and so on.
	v.SetDefault("levels", []map[string]any{
		{"level": 0, "task_reward": 700, "daily_quota": 3, "upgrade_cost": 0, "referral_bonus": 0},
		{"level": 1, "task_reward": 2500, "daily_quota": 5, "upgrade_cost": 280000, "referral_bonus": 28000},
		{"level": 2, "task_reward": 5500, "daily_quota": 5, "upgrade_cost": 560000, "referral_bonus": 56000},
		{"level": 3, "task_reward": 12000, "daily_quota": 8, "upgrade_cost": 1120000, "referral_bonus": 112000},
		{"level": 4, "task_reward": 26000, "daily_quota": 8, "upgrade_cost": 2240000, "referral_bonus": 224000},
		{"level": 5, "task_reward": 56000, "daily_quota": 10, "upgrade_cost": 4480000, "referral_bonus": 448000},
		{"level": 6, "task_reward": 120000, "daily_quota": 10, "upgrade_cost": 8960000, "referral_bonus": 896000},
		{"level": 7, "task_reward": 255000, "daily_quota": 12, "upgrade_cost": 17920000, "referral_bonus": 1792000},
		{"level": 8, "task_reward": 540000, "daily_quota": 12, "upgrade_cost": 35840000, "referral_bonus": 3584000},
	})

	// Calendar defaults: Sunday rest day, empty holiday table.
	v.SetDefault("calendar.rest_weekday", 0)

	// Withdrawal defaults: minimum 5.00, window 10:00-17:00.
	v.SetDefault("withdrawal.min_amount", 500)
	v.SetDefault("withdrawal.open_hour", 10)
	v.SetDefault("withdrawal.close_hour", 17)

	// Trial accounts may work tasks for 5 days after registration.
	v.SetDefault("trial.days", 5)

	// Daily reset fires at midnight local time.
	v.SetDefault("scheduler.reset_hour", 0)
}
