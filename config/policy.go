package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cropcal/pkg/tracker"
)

// Policy holds the engine thresholds. Fields missing from the file keep
// their defaults.
type Policy struct {
	PlantingGraceDays   int                 `yaml:"planting_grace_days"`
	PrecipitationSkipMM float64             `yaml:"precipitation_skip_threshold_mm"`
	AdvisoryHeatC       float64             `yaml:"advisory_heat_c"`
	Drift               tracker.DriftPolicy `yaml:"drift"`
	Risk                RiskPolicy          `yaml:"risk"`
	SnapshotTimeout     time.Duration       `yaml:"snapshot_timeout"`
	Recommendations     Recommendations     `yaml:"recommendations"`
	Tick                Tick                `yaml:"tick"`
	LocationPrecision   uint                `yaml:"location_precision"`
	ReportedNDVITTLDays int                 `yaml:"reported_ndvi_ttl_days"`
}

type RiskPolicy struct {
	HealthyMin        float64 `yaml:"healthy_min"`
	MediumMin         float64 `yaml:"medium_min"`
	PestLookaheadDays int     `yaml:"pest_lookahead_days"`
}

type Recommendations struct {
	TopN int `yaml:"top_n"`
}

type Tick struct {
	Cron        string        `yaml:"cron"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

func DefaultPolicy() Policy {
	return Policy{
		PlantingGraceDays:   7,
		PrecipitationSkipMM: 10,
		AdvisoryHeatC:       35,
		Drift:               tracker.DefaultDriftPolicy(),
		Risk:                RiskPolicy{HealthyMin: 80, MediumMin: 60, PestLookaheadDays: 14},
		SnapshotTimeout:     5 * time.Second,
		Recommendations:     Recommendations{TopN: 3},
		Tick:                Tick{Cron: "0 5 * * *", Concurrency: 8, Timeout: 30 * time.Minute},
		LocationPrecision:   6,
		ReportedNDVITTLDays: 7,
	}
}

// LoadPolicy reads path over the defaults. An empty path returns the
// defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("policy %s: %w", path, err)
	}
	return p, nil
}

func (p Policy) Validate() error {
	var errs []error
	if p.PlantingGraceDays < 0 {
		errs = append(errs, errors.New("planting_grace_days must not be negative"))
	}
	if p.PrecipitationSkipMM < 0 {
		errs = append(errs, errors.New("precipitation_skip_threshold_mm must not be negative"))
	}
	if p.Drift.TemperatureDeltaC <= 0 || p.Drift.NDVIDelta <= 0 || p.Drift.SoilMoistureDeltaPct <= 0 {
		errs = append(errs, errors.New("drift deltas must be positive"))
	}
	if p.Drift.StageMismatchTolerance < 1 {
		errs = append(errs, errors.New("drift.stage_mismatch_tolerance must be at least 1"))
	}
	if p.Risk.MediumMin < 0 || p.Risk.HealthyMin > 100 || p.Risk.MediumMin >= p.Risk.HealthyMin {
		errs = append(errs, fmt.Errorf("risk bands need 0 <= medium_min < healthy_min <= 100, got %v/%v", p.Risk.MediumMin, p.Risk.HealthyMin))
	}
	if p.SnapshotTimeout <= 0 {
		errs = append(errs, errors.New("snapshot_timeout must be positive"))
	}
	if p.Tick.Concurrency < 1 {
		errs = append(errs, errors.New("tick.concurrency must be at least 1"))
	}
	if p.Tick.Cron == "" {
		errs = append(errs, errors.New("tick.cron must be set"))
	}
	if p.LocationPrecision < 1 || p.LocationPrecision > 12 {
		errs = append(errs, errors.New("location_precision must be within 1..12"))
	}
	return errors.Join(errs...)
}
