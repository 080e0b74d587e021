package application

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Thresholds defines when a run raises an alert. Zero disables a threshold.
type Thresholds struct {
	DriftGroups           int     `yaml:"drift_groups" json:"drift_groups"`
	UnderdeterminedGroups int     `yaml:"underdetermined_groups" json:"underdetermined_groups"`
	MissingAssociations   int     `yaml:"missing_associations" json:"missing_associations"`
	UnallocatedFuelMMBtu  float64 `yaml:"unallocated_fuel_mmbtu" json:"unallocated_fuel_mmbtu"`
}

// Config defines allocation configuration.
type Config struct {
	Defaults      Thresholds            `yaml:"defaults"`
	Years         map[string]Thresholds `yaml:"years"`
	Tolerance     float64               `yaml:"tolerance"`
	Workers       int                   `yaml:"workers"`
	Schedule      ScheduleConfig        `yaml:"schedule"`
	StorageRoot   string                `yaml:"storage_root"`
	WebhookURL    string                `yaml:"webhook_url"`
	PublicBaseURL string                `yaml:"public_base_url"`
	ObjectStore   ObjectStoreConfig     `yaml:"object_store"`
}

// ScheduleConfig defines the daily run.
type ScheduleConfig struct {
	DailyAt  string `yaml:"daily_at"`
	Years    []int  `yaml:"years"`
	PlantIDs []int  `yaml:"plant_ids"`
}

// ObjectStoreConfig selects where report archives are kept. An empty
// endpoint keeps them on the local filesystem.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Defaults: Thresholds{
			DriftGroups:           1,
			UnderdeterminedGroups: 1,
			MissingAssociations:   1,
			UnallocatedFuelMMBtu:  0,
		},
		Tolerance:     getenvFloatDefault("ALLOCATION_TOLERANCE", 1e-6),
		Workers:       getenvIntDefault("ALLOCATION_WORKERS", 0),
		StorageRoot:   getenvDefault("ALLOCATION_STORAGE_ROOT", filepath.FromSlash("var/reports/allocation")),
		WebhookURL:    os.Getenv("ALLOCATION_WEBHOOK_URL"),
		PublicBaseURL: getenvDefault("ALLOCATION_PUBLIC_BASE_URL", "http://localhost:8080"),
	}

	if path := os.Getenv("ALLOCATION_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("ALLOCATION_DAILY_AT", "03:00")
	}
	if len(cfg.Schedule.Years) == 0 {
		cfg.Schedule.Years = splitInts(os.Getenv("ALLOCATION_YEARS"))
	}
	if len(cfg.Schedule.PlantIDs) == 0 {
		cfg.Schedule.PlantIDs = splitInts(os.Getenv("ALLOCATION_PLANT_IDS"))
	}
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = os.Getenv("ALLOCATION_WEBHOOK_URL")
	}
	if cfg.ObjectStore.Endpoint == "" {
		cfg.ObjectStore = ObjectStoreConfig{
			Endpoint:  os.Getenv("ALLOCATION_S3_ENDPOINT"),
			Bucket:    getenvDefault("ALLOCATION_S3_BUCKET", "allocation-reports"),
			AccessKey: os.Getenv("ALLOCATION_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("ALLOCATION_S3_SECRET_KEY"),
			UseSSL:    os.Getenv("ALLOCATION_S3_USE_SSL") == "true",
		}
	}
	if cfg.StorageRoot == "" {
		return cfg, errors.New("allocation: storage root required")
	}
	if cfg.Tolerance < 0 {
		return cfg, errors.New("allocation: tolerance must not be negative")
	}
	return cfg, nil
}

// ThresholdsForYear returns thresholds for a report year.
func (c Config) ThresholdsForYear(year int) Thresholds {
	if c.Years != nil {
		if override, ok := c.Years[strconv.Itoa(year)]; ok {
			return mergeThresholds(c.Defaults, override)
		}
	}
	return c.Defaults
}

func mergeThresholds(base, override Thresholds) Thresholds {
	if override.DriftGroups != 0 {
		base.DriftGroups = override.DriftGroups
	}
	if override.UnderdeterminedGroups != 0 {
		base.UnderdeterminedGroups = override.UnderdeterminedGroups
	}
	if override.MissingAssociations != 0 {
		base.MissingAssociations = override.MissingAssociations
	}
	if override.UnallocatedFuelMMBtu != 0 {
		base.UnallocatedFuelMMBtu = override.UnallocatedFuelMMBtu
	}
	return base
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitInts(value string) []int {
	if value == "" {
		return nil
	}
	var result []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		result = append(result, n)
	}
	return result
}
