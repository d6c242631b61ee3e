package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/roosterplan/rooster/pkg/core/fairness"
	"github.com/roosterplan/rooster/pkg/holidays"
)

// FairnessConfig overrides the default fairness weighting constants.
// Zero values fall back to the defaults.
type FairnessConfig struct {
	WeekendMultiplier        float64 `yaml:"weekendMultiplier,omitempty" validate:"omitempty,gt=0"`
	HolidayMultiplier        float64 `yaml:"holidayMultiplier,omitempty" validate:"omitempty,gt=0"`
	ManualOverrideMultiplier float64 `yaml:"manualOverrideMultiplier,omitempty" validate:"omitempty,gt=0"`
	DecayHalfLifeDays        float64 `yaml:"decayHalfLifeDays,omitempty" validate:"omitempty,gt=0"`
	LookbackDays             int     `yaml:"lookbackDays,omitempty" validate:"omitempty,gt=0"`
	LongLeaveDays            int     `yaml:"longLeaveDays,omitempty" validate:"omitempty,gt=0"`
}

// HorizonConfig sets the rolling-horizon defaults
type HorizonConfig struct {
	Weeks     int `yaml:"weeks,omitempty" validate:"omitempty,min=1,max=104"`
	SeedWeeks int `yaml:"seedWeeks,omitempty" validate:"omitempty,min=1,max=104"`
}

// ExtraHoliday is a company-specific closure day added to the public
// holiday calendar
type ExtraHoliday struct {
	Date string `yaml:"date" validate:"required,datetime=2006-01-02"`
	Name string `yaml:"name" validate:"required"`
}

// CompanyClosure defines recurring closure days as an RFC 5545 rule
type CompanyClosure struct {
	RRule string `yaml:"rrule" validate:"required"`
	Name  string `yaml:"name" validate:"required"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL     string           `yaml:"databaseURL" validate:"required"`
	Environment     string           `yaml:"environment,omitempty"`
	Fairness        FairnessConfig   `yaml:"fairness,omitempty"`
	Horizon         HorizonConfig    `yaml:"horizon,omitempty"`
	ExtraHolidays   []ExtraHoliday   `yaml:"extraHolidays,omitempty" validate:"dive"`
	CompanyClosures []CompanyClosure `yaml:"companyClosures,omitempty" validate:"dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from rooster.yaml.
// It looks for the config file in the current directory first, then in the
// user's home directory.
func Load() (*Config, error) {
	configPath, err := findConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for i, closure := range cfg.CompanyClosures {
		if _, err := rrule.StrToRRule(closure.RRule); err != nil {
			return fmt.Errorf("invalid rrule in companyClosures[%d]: %w", i, err)
		}
	}

	return nil
}

// Weights materializes the fairness constants, falling back to the
// defaults for anything the file leaves unset
func (c *Config) Weights() fairness.Weights {
	w := fairness.DefaultWeights()
	if c.Fairness.WeekendMultiplier > 0 {
		w.Weekend = c.Fairness.WeekendMultiplier
	}
	if c.Fairness.HolidayMultiplier > 0 {
		w.Holiday = c.Fairness.HolidayMultiplier
	}
	if c.Fairness.ManualOverrideMultiplier > 0 {
		w.ManualOverride = c.Fairness.ManualOverrideMultiplier
	}
	if c.Fairness.DecayHalfLifeDays > 0 {
		w.DecayHalfLifeDays = c.Fairness.DecayHalfLifeDays
	}
	if c.Fairness.LookbackDays > 0 {
		w.LookbackDays = float64(c.Fairness.LookbackDays)
	}
	if c.Fairness.LongLeaveDays > 0 {
		w.LongLeaveDays = c.Fairness.LongLeaveDays
	}
	return w
}

// ExtraHolidayDates parses the configured extra holidays into dates in the
// given zone. Validation already guarantees the format.
func (c *Config) ExtraHolidayDates(loc *time.Location) ([]time.Time, []string, error) {
	dates := make([]time.Time, 0, len(c.ExtraHolidays))
	names := make([]string, 0, len(c.ExtraHolidays))
	for _, h := range c.ExtraHolidays {
		parsed, err := time.ParseInLocation("2006-01-02", h.Date, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid extra holiday date %q: %w", h.Date, err)
		}
		dates = append(dates, parsed)
		names = append(names, h.Name)
	}
	return dates, names, nil
}

// HolidayCalendarDays materializes the configured extra holidays and
// company closures as concrete closure days in [from, to]. Recurring
// closures are expanded from their RFC 5545 rules.
func (c *Config) HolidayCalendarDays(loc *time.Location, from, to time.Time) ([]holidays.ExtraDay, error) {
	dates, names, err := c.ExtraHolidayDates(loc)
	if err != nil {
		return nil, err
	}

	days := make([]holidays.ExtraDay, 0, len(dates))
	for i, date := range dates {
		days = append(days, holidays.ExtraDay{Date: date, Name: names[i]})
	}

	for _, closure := range c.CompanyClosures {
		rule, err := rrule.StrToRRule(closure.RRule)
		if err != nil {
			return nil, fmt.Errorf("invalid company closure rrule %q: %w", closure.RRule, err)
		}
		// Anchor the rule at the window start so expansion is deterministic
		rule.DTStart(from.In(loc))
		for _, occurrence := range rule.Between(from, to, true) {
			days = append(days, holidays.ExtraDay{Date: occurrence.In(loc), Name: closure.Name})
		}
	}

	return days, nil
}

// findConfigFile searches for rooster.yaml in current directory and home directory
func findConfigFile() (string, error) {
	configFileName := "rooster.yaml"

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
