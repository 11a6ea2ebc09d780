package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"cropcal/config"
	"cropcal/database"
	"cropcal/entities"
	calRepoImp "cropcal/pkg/calendar/repositoryImp"
	"cropcal/pkg/calendar/service"
	calSvcImp "cropcal/pkg/calendar/serviceImp"
	"cropcal/pkg/environment"
	fieldRepoImp "cropcal/pkg/field/repositoryImp"
	measRepoImp "cropcal/pkg/measure/repositoryImp"
	"cropcal/pkg/profile/loader"
	profileRepo "cropcal/pkg/profile/repository"
	profileRepoImp "cropcal/pkg/profile/repositoryImp"
	"cropcal/pkg/risk"
	"cropcal/pkg/schedule"
)

// app holds what every subcommand needs: storage, the snapshot gateway and
// the calendar pipeline.
type app struct {
	cfg      config.AppConfig
	policy   config.Policy
	logger   *slog.Logger
	db       *gorm.DB
	cache    *environment.Cache
	gateway  *environment.Gateway
	profiles profileRepo.ProfileRepository
	calendar service.CalendarService
}

func newApp(cfg config.AppConfig, logger *slog.Logger) (*app, error) {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, policy: policy, logger: logger, db: db}

	cacheCfg := environment.CacheConfig{Path: cfg.SnapshotCacheDir, Logger: logger}
	if cfg.SnapshotCacheDir == "" {
		logger.Warn("[env] SNAPSHOT_CACHE_DIR not set; snapshots are cached in memory only")
		cacheCfg.InMemory = true
	}
	a.cache, err = environment.OpenCache(cacheCfg)
	if err != nil {
		a.close()
		return nil, err
	}
	var provider environment.Provider
	if cfg.EnvProviderURL != "" {
		provider = environment.NewHTTPProvider(cfg.EnvProviderURL, cfg.EnvProviderRPS, policy.SnapshotTimeout)
	} else {
		logger.Warn("[env] ENV_PROVIDER_URL not set; serving pushed snapshots only")
		provider = environment.NewStaticProvider()
	}
	a.gateway = environment.NewGateway(provider, a.cache, policy.SnapshotTimeout, logger)

	a.profiles = profileRepoImp.New(db)
	a.calendar = calSvcImp.NewCalendarService(
		calRepoImp.New(db),
		a.profiles,
		fieldRepoImp.New(db),
		measRepoImp.New(db),
		a.gateway,
		options(policy),
		logger,
	)
	return a, nil
}

func options(p config.Policy) calSvcImp.Options {
	return calSvcImp.Options{
		GraceDays: p.PlantingGraceDays,
		Schedule: schedule.Policy{
			PrecipitationSkipMM: p.PrecipitationSkipMM,
			HeatAdvisoryC:       p.AdvisoryHeatC,
		},
		Risk: risk.Policy{
			HealthyMin:        p.Risk.HealthyMin,
			MediumMin:         p.Risk.MediumMin,
			PestLookaheadDays: p.Risk.PestLookaheadDays,
		},
		Drift:               p.Drift,
		TopN:                p.Recommendations.TopN,
		TickConcurrency:     p.Tick.Concurrency,
		ReportedNDVITTLDays: p.ReportedNDVITTLDays,
	}
}

// importProfiles publishes every profile found in the workbook and the CSV
// directory. Versions already stored are left alone.
func (a *app) importProfiles(xlsx, dir string) (created, skipped int, err error) {
	var all []entities.CropProfile
	if xlsx != "" {
		ps, err := loader.FromWorkbook(xlsx)
		if err != nil {
			return 0, 0, err
		}
		all = append(all, ps...)
	}
	if dir != "" {
		ps, err := loader.FromDir(dir)
		if err != nil {
			return 0, 0, err
		}
		all = append(all, ps...)
	}
	var errs []error
	for i := range all {
		ok, err := a.profiles.Publish(&all[i])
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s v%d: %w", all[i].CropID, all[i].Version, err))
		case ok:
			created++
		default:
			skipped++
		}
	}
	a.logger.Info("[profiles] imported", "created", created, "unchanged", skipped, "failed", len(errs))
	return created, skipped, errors.Join(errs...)
}

func (a *app) location() *time.Location {
	loc, err := time.LoadLocation(a.cfg.Timezone)
	if err != nil {
		a.logger.Warn("[cfg] unknown timezone, using UTC", "tz", a.cfg.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("[env] cache close", "error", err)
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
