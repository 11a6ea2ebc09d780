package serviceImp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"cropcal/entities"
	"cropcal/pkg/advisory"
	"cropcal/pkg/apperr"
	calrepo "cropcal/pkg/calendar/repository"
	"cropcal/pkg/calendar/service"
	"cropcal/pkg/cost"
	farmrepo "cropcal/pkg/field/repository"
	obsrepo "cropcal/pkg/measure/repository"
	"cropcal/pkg/metrics"
	profilerepo "cropcal/pkg/profile/repository"
	"cropcal/pkg/risk"
	"cropcal/pkg/schedule"
	"cropcal/pkg/timeline"
	"cropcal/pkg/tracker"
)

var tracer = otel.Tracer("cropcal.calendar")

const (
	outcomeCreate    = "create"
	outcomeFull      = "full"
	outcomeLight     = "light"
	outcomeUnchanged = "unchanged"
	outcomeClosed    = "closed"
	outcomeCompleted = "completed"

	saveAttempts = 2
)

// Options tunes the pipeline.
type Options struct {
	GraceDays       int
	Schedule        schedule.Policy
	Risk            risk.Policy
	Drift           tracker.DriftPolicy
	TopN            int
	TickConcurrency int
	// ReportedNDVITTLDays is how long a field-reported NDVI stands in for
	// missing satellite data.
	ReportedNDVITTLDays int
}

func DefaultOptions() Options {
	return Options{
		GraceDays:           7,
		Schedule:            schedule.DefaultPolicy(),
		Risk:                risk.DefaultPolicy(),
		Drift:               tracker.DefaultDriftPolicy(),
		TopN:                3,
		TickConcurrency:     8,
		ReportedNDVITTLDays: 7,
	}
}

type snapshotSource interface {
	Fetch(ctx context.Context, locationHash string, asOf time.Time) (*entities.EnvironmentalSnapshot, error)
}

type calendarSvc struct {
	calendars    calrepo.CalendarRepository
	profiles     profilerepo.ProfileRepository
	farms        farmrepo.FarmRepository
	observations obsrepo.ObservationRepository
	env          snapshotSource
	runner       *tracker.Runner
	opts         Options
	logger       *slog.Logger
	now          func() time.Time
}

// NewCalendarService wires the pipeline. env may be nil, in which case every
// run is degraded.
func NewCalendarService(cr calrepo.CalendarRepository, pr profilerepo.ProfileRepository, fr farmrepo.FarmRepository, or obsrepo.ObservationRepository, env snapshotSource, opts Options, logger *slog.Logger) service.CalendarService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TickConcurrency <= 0 {
		opts.TickConcurrency = 1
	}
	return &calendarSvc{
		calendars:    cr,
		profiles:     pr,
		farms:        fr,
		observations: or,
		env:          env,
		runner:       tracker.NewRunner(),
		opts:         opts,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *calendarSvc) asOf(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	return entities.Day(t)
}

func (s *calendarSvc) Owner(id string) (string, error) { return s.calendars.Owner(id) }

func (s *calendarSvc) owned(id, uid string) (*entities.CropCalendar, error) {
	cal, err := s.calendars.FindByID(id)
	if err != nil {
		return nil, err
	}
	if cal.UserID != uid {
		return nil, fmt.Errorf("calendar %s: %w", id, apperr.ErrNotFound)
	}
	return cal, nil
}

func (s *calendarSvc) Get(_ context.Context, id, uid string) (*entities.CropCalendar, error) {
	return s.owned(id, uid)
}

func (s *calendarSvc) RecalcLogs(_ context.Context, id, uid string) ([]entities.RecalcLog, error) {
	if _, err := s.owned(id, uid); err != nil {
		return nil, err
	}
	return s.calendars.RecalcLogs(id)
}

func (s *calendarSvc) Create(ctx context.Context, req service.CreateRequest) (*entities.CropCalendar, error) {
	ctx, span := tracer.Start(ctx, "calendar.create", trace.WithAttributes(
		attribute.String("crop_id", req.CropID),
		attribute.Int("farm_id", int(req.FarmID)),
	))
	defer span.End()
	start := time.Now()

	cal, err := s.create(ctx, req)
	metrics.PipelineDuration.WithLabelValues(tracker.TriggerCreate).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.PipelineRuns.WithLabelValues(outcomeCreate).Inc()
	span.SetAttributes(attribute.String("calendar_id", cal.CalendarID))
	s.logger.Info("[calendar] created",
		"calendar_id", cal.CalendarID,
		"crop_id", cal.CropID,
		"planting", cal.PlantingDate.Format(entities.DateLayout),
		"harvest", cal.ExpectedHarvestDate.Format(entities.DateLayout),
		"risk", cal.RiskAssessment.Score,
	)
	return cal, nil
}

func (s *calendarSvc) create(ctx context.Context, req service.CreateRequest) (*entities.CropCalendar, error) {
	profile, err := s.profiles.FindByID(req.CropID)
	if err != nil {
		return nil, err
	}
	farm, err := s.farms.FindByID(req.FarmID)
	if err != nil {
		return nil, err
	}
	if farm.UserID != req.UserID {
		return nil, fmt.Errorf("farm %d: %w", req.FarmID, apperr.ErrNotFound)
	}

	// the grace window is measured from the service clock; a caller's as_of
	// only moves the evaluation date
	asOf := s.asOf(req.AsOf)
	planting := entities.Day(req.PlantingDate)
	tl, harvest, err := timeline.Build(profile, planting, s.asOf(time.Time{}), s.opts.GraceDays)
	if err != nil {
		return nil, err
	}
	snap := s.snapshot(ctx, farm.LocationHash, asOf)

	cal := &entities.CropCalendar{
		CalendarID:          uuid.NewString(),
		UserID:              req.UserID,
		FarmID:              farm.FarmID,
		CropID:              profile.CropID,
		ProfileVersion:      profile.Version,
		CropVariety:         req.CropVariety,
		PlannedArea:         req.PlannedArea,
		LocationHash:        farm.LocationHash,
		PlantingDate:        planting,
		ExpectedHarvestDate: harvest,
		GrowthTimeline:      tl,
		CalendarStatus:      entities.CalendarPlanned,
		Revision:            1,
	}
	cal.SetSchedule(schedule.Synthesize(schedule.Input{
		Profile:      profile,
		Timeline:     tl,
		PlantingDate: planting,
		PlannedArea:  req.PlannedArea,
		Snapshot:     snap,
		AsOf:         asOf,
		Policy:       s.opts.Schedule,
	}))
	cal.GenerationConditions = tracker.Conditions(snap, asOf, "", tracker.TriggerCreate)
	s.evaluate(cal, profile, farm, snap, nil, asOf, true)
	cal.ContentHash = cal.Fingerprint()

	log := &entities.RecalcLog{
		Trigger:        tracker.TriggerCreate,
		Reasons:        []string{"calendar created"},
		AsOf:           asOf,
		NewHarvestDate: harvest,
	}
	if err := s.calendars.Create(cal, log); err != nil {
		return nil, err
	}
	return cal, nil
}

// evaluate is the light refresh: stage, progress, status, risk and cost in
// parallel, then recommendations. It never touches the timeline or schedule.
func (s *calendarSvc) evaluate(cal *entities.CropCalendar, profile *entities.CropProfile, farm *entities.Farm, snap *entities.EnvironmentalSnapshot, reportedNDVI *float64, asOf time.Time, resetProgress bool) {
	tl := cal.GrowthTimeline
	if i := timeline.StageAt(tl, asOf); i >= 0 {
		cal.CurrentGrowthStage = tl[i].Stage
	}
	progress := tracker.Progress(tl, asOf)
	if !resetProgress {
		progress = tracker.Advance(cal.ProgressPercentage, progress)
	}
	cal.ProgressPercentage = progress
	cal.CalendarStatus = tracker.Status(cal.CalendarStatus, tl, asOf)

	sched := cal.Schedule()
	var (
		ra entities.RiskAssessment
		ce entities.CostEstimation
		g  errgroup.Group
	)
	g.Go(func() error {
		ra = risk.Assess(risk.Input{
			Profile:      profile,
			Timeline:     tl,
			Schedule:     sched,
			Farm:         farm,
			Snapshot:     snap,
			ReportedNDVI: reportedNDVI,
			AsOf:         asOf,
			Policy:       s.opts.Risk,
		})
		return nil
	})
	g.Go(func() error {
		ce = cost.Estimate(sched, cal.PlannedArea, profile.ReferenceAreaHa, profile.Currency)
		return nil
	})
	_ = g.Wait()

	cal.RiskAssessment = ra
	cal.CostEstimation = ce
	cal.AIRecommendations = advisory.Synthesize(advisory.Input{
		Risk:     ra,
		Schedule: sched,
		Timeline: tl,
		Progress: cal.ProgressPercentage,
		AsOf:     asOf,
		TopN:     s.opts.TopN,
	})
}

// snapshot never fails the pipeline; without data the run is degraded.
func (s *calendarSvc) snapshot(ctx context.Context, locationHash string, asOf time.Time) *entities.EnvironmentalSnapshot {
	if s.env == nil || locationHash == "" {
		return nil
	}
	snap, err := s.env.Fetch(ctx, locationHash, asOf)
	if err != nil {
		s.logger.Warn("[env] running degraded", "location", locationHash, "error", err)
		return nil
	}
	return snap
}

func (s *calendarSvc) farm(id uint) *entities.Farm {
	f, err := s.farms.FindByID(id)
	if err != nil {
		s.logger.Warn("[calendar] farm lookup failed", "farm_id", id, "error", err)
		return nil
	}
	return f
}

func (s *calendarSvc) Tick(ctx context.Context, id string, asOf time.Time) (*entities.CropCalendar, error) {
	return s.run(ctx, id, tracker.TriggerTick, asOf)
}

// run funnels every recalculation of one calendar through the keyed runner.
// Whoever arrives while a run is in flight rides on the single follow-up run
// and reads the state it left behind.
func (s *calendarSvc) run(ctx context.Context, id, trigger string, asOf time.Time) (*entities.CropCalendar, error) {
	asOf = s.asOf(asOf)
	coalesced, err := s.runner.Do(ctx, id, func(ctx context.Context) error {
		return s.recalculate(ctx, id, trigger, asOf)
	})
	if coalesced {
		metrics.Coalesced.Inc()
	}
	if err != nil {
		return nil, err
	}
	return s.calendars.FindByID(id)
}

func (s *calendarSvc) recalculate(ctx context.Context, id, trigger string, asOf time.Time) error {
	ctx, span := tracer.Start(ctx, "calendar.recalculate", trace.WithAttributes(
		attribute.String("calendar_id", id),
		attribute.String("trigger", trigger),
		attribute.String("as_of", asOf.Format(entities.DateLayout)),
	))
	defer span.End()
	start := time.Now()

	var (
		outcome string
		err     error
	)
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		outcome, err = s.pass(ctx, id, trigger, asOf)
		if !errors.Is(err, apperr.ErrRecalculationConflict) {
			break
		}
		s.logger.Warn("[tick] revision moved during run", "calendar_id", id, "attempt", attempt)
	}
	metrics.PipelineDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	metrics.PipelineRuns.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	return nil
}

// pass is one read-compute-save cycle. The stored row changes only through
// the final Save, so any earlier failure leaves it as it was.
func (s *calendarSvc) pass(ctx context.Context, id, trigger string, asOf time.Time) (string, error) {
	cal, err := s.calendars.FindByID(id)
	if err != nil {
		return "", err
	}
	if cal.CalendarStatus.Closed() {
		return outcomeClosed, nil
	}
	profile, err := s.profiles.FindVersion(cal.CropID, cal.ProfileVersion)
	if err != nil {
		return "", err
	}
	obs, err := s.observations.ListByCalendar(id, 0)
	if err != nil {
		return "", fmt.Errorf("observations of %s: %w", id, err)
	}
	f := fold(obs, cal.ObservationCursor, asOf, s.opts.ReportedNDVITTLDays)
	baseline := cal.Fingerprint()

	next := *cal
	next.ObservationCursor = f.cursor

	if f.harvest != nil {
		return s.complete(cal, &next, profile, f.harvest, asOf)
	}

	farm := s.farm(cal.FarmID)
	snap := s.snapshot(ctx, cal.LocationHash, asOf)
	var (
		log     *entities.RecalcLog
		reset   bool
		outcome = outcomeLight
	)

	switch {
	case f.replant != nil && !entities.Day(*f.replant.ReplantDate).Equal(cal.PlantingDate):
		planting := entities.Day(*f.replant.ReplantDate)
		tl, harvest, err := timeline.Build(profile, planting, planting, 0)
		if err != nil {
			return "", err
		}
		next.PlantingDate = planting
		next.GrowthTimeline = tl
		next.ExpectedHarvestDate = harvest
		next.SetSchedule(schedule.Synthesize(schedule.Input{
			Profile:      profile,
			Timeline:     tl,
			PlantingDate: planting,
			PlannedArea:  cal.PlannedArea,
			Snapshot:     snap,
			AsOf:         asOf,
			Policy:       s.opts.Schedule,
		}))
		next.GenerationConditions = tracker.Conditions(snap, asOf, "", tracker.TriggerReplant)
		reset = true
		log = &entities.RecalcLog{
			Trigger: tracker.TriggerReplant,
			Reasons: []string{fmt.Sprintf("replanted on %s", planting.Format(entities.DateLayout))},
		}

	default:
		observed, stageName := -1, ""
		if f.stage != nil {
			observed, stageName = profile.StageIndex(f.stage.ObservedStage), f.stage.ObservedStage
		}
		d := tracker.Detect(cal.GenerationConditions, cal.GrowthTimeline, observed, snap, asOf, s.opts.Drift)
		if !d.Full {
			// a fresh forecast still re-applies the weather rules to the
			// events from asOf on; the fingerprint keeps this idempotent
			if snap.FreshWeather(asOf) != nil {
				next.SetSchedule(s.resynthesize(profile, cal, next.GrowthTimeline, snap, asOf))
			}
			break
		}
		if d.StageMismatch {
			tl, harvest, err := timeline.Reanchor(profile, cal.GrowthTimeline, observed, asOf)
			if err != nil {
				return "", err
			}
			next.GrowthTimeline = tl
			next.ExpectedHarvestDate = harvest
		}
		next.SetSchedule(s.resynthesize(profile, cal, next.GrowthTimeline, snap, asOf))
		next.GenerationConditions = tracker.Conditions(snap, asOf, stageName, trigger)
		log = &entities.RecalcLog{Trigger: trigger, Reasons: d.Reasons}
	}

	s.evaluate(&next, profile, farm, snap, f.ndvi, asOf, reset)
	next.ContentHash = next.Fingerprint()
	if next.ContentHash == baseline {
		return outcomeUnchanged, nil
	}

	if log != nil {
		log.AsOf = asOf
		log.PreviousHarvestDate = cal.ExpectedHarvestDate
		log.NewHarvestDate = next.ExpectedHarvestDate
		outcome = outcomeFull
		s.logger.Info("[tick] full recalculation",
			"calendar_id", id,
			"trigger", log.Trigger,
			"reasons", log.Reasons,
			"harvest", next.ExpectedHarvestDate.Format(entities.DateLayout),
		)
	}
	next.Revision = cal.Revision + 1
	if err := s.calendars.Save(&next, cal.Revision, log); err != nil {
		return "", err
	}
	return outcome, nil
}

// resynthesize rebuilds the schedule on tl. Events dated before asOf and
// events the user completed or skipped are carried over from cal.
func (s *calendarSvc) resynthesize(profile *entities.CropProfile, cal *entities.CropCalendar, tl []entities.StageWindow, snap *entities.EnvironmentalSnapshot, asOf time.Time) entities.Schedule {
	prev := cal.Schedule()
	return schedule.Synthesize(schedule.Input{
		Profile:      profile,
		Timeline:     tl,
		PlantingDate: cal.PlantingDate,
		PlannedArea:  cal.PlannedArea,
		Snapshot:     snap,
		AsOf:         asOf,
		Previous:     &prev,
		FreezeBefore: asOf,
		Policy:       s.opts.Schedule,
	})
}

// complete freezes the calendar on a confirmed harvest.
func (s *calendarSvc) complete(cal, next *entities.CropCalendar, profile *entities.CropProfile, o *entities.Observation, asOf time.Time) (string, error) {
	harvested := entities.Day(*o.ActualHarvestDate)
	next.CalendarStatus = entities.CalendarCompleted
	next.ActualHarvestDate = &harvested
	next.ActualYield = o.ActualYield
	next.ProgressPercentage = 100
	if n := len(next.GrowthTimeline); n > 0 {
		next.CurrentGrowthStage = next.GrowthTimeline[n-1].Stage
	}
	next.ContentHash = next.Fingerprint()
	next.Revision = cal.Revision + 1
	log := &entities.RecalcLog{
		Trigger:             tracker.TriggerObservation,
		Reasons:             []string{fmt.Sprintf("harvest confirmed on %s", harvested.Format(entities.DateLayout))},
		AsOf:                asOf,
		PreviousHarvestDate: cal.ExpectedHarvestDate,
		NewHarvestDate:      cal.ExpectedHarvestDate,
	}
	if err := s.calendars.Save(next, cal.Revision, log); err != nil {
		return "", err
	}
	s.logger.Info("[calendar] completed", "calendar_id", cal.CalendarID, "crop_id", profile.CropID, "harvested", harvested.Format(entities.DateLayout))
	return outcomeCompleted, nil
}

func (s *calendarSvc) ReportObservation(ctx context.Context, id, uid string, req service.ObservationRequest) (*entities.CropCalendar, error) {
	cal, err := s.owned(id, uid)
	if err != nil {
		return nil, err
	}
	if cal.CalendarStatus.Closed() {
		return nil, fmt.Errorf("calendar %s is %s: %w", id, cal.CalendarStatus, apperr.ErrCalendarClosed)
	}
	profile, err := s.profiles.FindVersion(cal.CropID, cal.ProfileVersion)
	if err != nil {
		return nil, err
	}
	date := s.asOf(req.Date)
	if err := validateObservation(req, cal, profile, date, s.opts.GraceDays); err != nil {
		return nil, err
	}

	o := &entities.Observation{
		CalendarID:        id,
		Date:              date,
		ObservedStage:     req.ObservedStage,
		NDVI:              req.NDVI,
		ActualHarvestDate: dayPtr(req.ActualHarvestDate),
		ActualYield:       req.ActualYield,
		ReplantDate:       dayPtr(req.ReplantDate),
		Note:              req.Note,
	}
	if err := s.observations.Create(o); err != nil {
		return nil, err
	}
	trigger := tracker.TriggerObservation
	if o.ReplantDate != nil {
		trigger = tracker.TriggerReplant
	}
	return s.run(ctx, id, trigger, date)
}

func validateObservation(req service.ObservationRequest, cal *entities.CropCalendar, profile *entities.CropProfile, date time.Time, graceDays int) error {
	if req.ObservedStage == "" && req.NDVI == nil && req.ActualHarvestDate == nil && req.ReplantDate == nil && req.Note == "" {
		return fmt.Errorf("observation carries no facts: %w", apperr.ErrInvalidObservation)
	}
	if req.ObservedStage != "" && profile.StageIndex(req.ObservedStage) < 0 {
		return fmt.Errorf("unknown stage %q for %s: %w", req.ObservedStage, profile.CropID, apperr.ErrInvalidObservation)
	}
	if req.NDVI != nil && (*req.NDVI < -1 || *req.NDVI > 1) {
		return fmt.Errorf("ndvi %.3f outside [-1,1]: %w", *req.NDVI, apperr.ErrInvalidObservation)
	}
	if req.ActualYield != nil && (*req.ActualYield < 0 || req.ActualHarvestDate == nil) {
		return fmt.Errorf("actual yield needs a harvest date and must not be negative: %w", apperr.ErrInvalidObservation)
	}
	if req.ActualHarvestDate != nil && entities.Day(*req.ActualHarvestDate).Before(cal.PlantingDate) {
		return fmt.Errorf("harvest %s before planting %s: %w", req.ActualHarvestDate.Format(entities.DateLayout),
			cal.PlantingDate.Format(entities.DateLayout), apperr.ErrInvalidObservation)
	}
	if req.ReplantDate != nil {
		if req.ActualHarvestDate != nil {
			return fmt.Errorf("replant and harvest in one observation: %w", apperr.ErrInvalidObservation)
		}
		if entities.Day(*req.ReplantDate).Before(date.AddDate(0, 0, -graceDays)) {
			return fmt.Errorf("replant date %s more than %d days in the past: %w",
				req.ReplantDate.Format(entities.DateLayout), graceDays, apperr.ErrInvalidPlantingDate)
		}
		return nil
	}
	if date.Before(cal.PlantingDate) && req.ObservedStage != "" {
		return fmt.Errorf("stage observed %s before planting: %w", date.Format(entities.DateLayout), apperr.ErrInvalidObservation)
	}
	return nil
}

// Abandon does not go through the runner: a queued tick would replace it.
// The revision check makes an in-flight run retry and see the closed state.
func (s *calendarSvc) Abandon(_ context.Context, id, uid string) (*entities.CropCalendar, error) {
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		var cal *entities.CropCalendar
		cal, err = s.owned(id, uid)
		if err != nil {
			return nil, err
		}
		if cal.CalendarStatus.Closed() {
			return nil, fmt.Errorf("calendar %s is %s: %w", id, cal.CalendarStatus, apperr.ErrCalendarClosed)
		}
		next := *cal
		next.CalendarStatus = entities.CalendarAbandoned
		next.ContentHash = next.Fingerprint()
		next.Revision = cal.Revision + 1
		err = s.calendars.Save(&next, cal.Revision, nil)
		if err == nil {
			s.logger.Info("[calendar] abandoned", "calendar_id", id)
			return &next, nil
		}
		if !errors.Is(err, apperr.ErrRecalculationConflict) {
			return nil, err
		}
	}
	return nil, err
}

// TickAll ticks every open calendar with bounded parallelism. One calendar
// failing does not stop the batch.
func (s *calendarSvc) TickAll(ctx context.Context, asOf time.Time) (service.TickSummary, error) {
	asOf = s.asOf(asOf)
	ids, err := s.calendars.ListOpen()
	if err != nil {
		return service.TickSummary{}, err
	}
	failed := s.fanOut(ctx, ids, tracker.TriggerTick, asOf)
	sum := service.TickSummary{AsOf: asOf, Visited: len(ids), Failed: failed}
	s.logger.Info("[tick] batch done", "as_of", asOf.Format(entities.DateLayout), "visited", sum.Visited, "failed", sum.Failed)
	return sum, ctx.Err()
}

// RefreshLocation recalculates the open calendars sharing a location after
// a new snapshot arrived for it.
func (s *calendarSvc) RefreshLocation(ctx context.Context, locationHash string, asOf time.Time) (int, error) {
	asOf = s.asOf(asOf)
	ids, err := s.calendars.ListOpenByLocation(locationHash)
	if err != nil {
		return 0, err
	}
	failed := s.fanOut(ctx, ids, tracker.TriggerRefresh, asOf)
	s.logger.Info("[env] location refreshed", "location", locationHash, "calendars", len(ids), "failed", failed)
	return len(ids) - failed, ctx.Err()
}

func (s *calendarSvc) fanOut(ctx context.Context, ids []string, trigger string, asOf time.Time) int {
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(s.opts.TickConcurrency)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := s.run(ctx, id, trigger, asOf); err != nil {
				failed.Add(1)
				metrics.TickCalendars.WithLabelValues("error").Inc()
				s.logger.Error("[tick] calendar failed", "calendar_id", id, "trigger", trigger, "error", err)
				return nil
			}
			metrics.TickCalendars.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := entities.Day(*t)
	return &d
}
