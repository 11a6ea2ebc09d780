package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"cropcal/config"
	"cropcal/entities"
	"cropcal/router"

	calCtrlImp "cropcal/pkg/calendar/controllerImp"
	"cropcal/pkg/events"
	fieldCtrlImp "cropcal/pkg/field/controllerImp"
	fieldRepoImp "cropcal/pkg/field/repositoryImp"
	fieldSvcImp "cropcal/pkg/field/serviceImp"
	healthCtrlImp "cropcal/pkg/health/controllerImp"
	measCtrlImp "cropcal/pkg/measure/controllerImp"
	measRepoImp "cropcal/pkg/measure/repositoryImp"
	measSvcImp "cropcal/pkg/measure/serviceImp"
	"cropcal/pkg/middleware"
	schedCtrlImp "cropcal/pkg/schedule/controllerImp"
	schedRepoImp "cropcal/pkg/schedule/repositoryImp"
	schedSvcImp "cropcal/pkg/schedule/serviceImp"
	"cropcal/pkg/scheduler"
	"cropcal/pkg/telemetry"
)

var (
	asOfFlag    string
	xlsxFlag    string
	profileFlag string

	rootCmd = &cobra.Command{
		Use:   "cropcal",
		Short: "Crop calendar engine: schedules, risk and recalculation",
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the daily tick and the refresh subscriber",
		RunE:  runServe,
	}
	tickCmd = &cobra.Command{
		Use:   "tick",
		Short: "Recalculate every open calendar once and exit",
		RunE:  runTick,
	}
	importCmd = &cobra.Command{
		Use:   "import-profiles",
		Short: "Publish crop profiles from an .xlsx workbook or a CSV directory",
		RunE:  runImport,
	}
)

func init() {
	tickCmd.Flags().StringVar(&asOfFlag, "as-of", "", "evaluation date YYYY-MM-DD (default today)")
	importCmd.Flags().StringVar(&xlsxFlag, "xlsx", "", "profile workbook (default PROFILE_XLSX)")
	importCmd.Flags().StringVar(&profileFlag, "dir", "", "directory with profiles.csv, stages.csv, templates.csv (default PROFILE_DIR)")
	rootCmd.AddCommand(serveCmd, tickCmd, importCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return newApp(config.Load(), logger)
}

func runImport(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	xlsx, dir := xlsxFlag, profileFlag
	if xlsx == "" && dir == "" {
		xlsx, dir = a.cfg.ProfileXLSX, a.cfg.ProfileDir
	}
	if xlsx == "" && dir == "" {
		return errors.New("no profile source: pass --xlsx or --dir, or set PROFILE_XLSX / PROFILE_DIR")
	}
	created, skipped, err := a.importProfiles(xlsx, dir)
	fmt.Fprintf(cmd.OutOrStdout(), "created %d, unchanged %d\n", created, skipped)
	return err
}

func runTick(cmd *cobra.Command, _ []string) error {
	var asOf time.Time
	if asOfFlag != "" {
		t, err := time.Parse(entities.DateLayout, asOfFlag)
		if err != nil {
			return fmt.Errorf("--as-of: %w", err)
		}
		asOf = t
	}
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	sum, err := a.calendar.TickAll(cmd.Context(), asOf)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "as of %s: %d calendars, %d failed\n", sum.AsOf.Format(entities.DateLayout), sum.Visited, sum.Failed)
	return nil
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.ProfileXLSX != "" || a.cfg.ProfileDir != "" {
		if _, _, err := a.importProfiles(a.cfg.ProfileXLSX, a.cfg.ProfileDir); err != nil {
			a.logger.Warn("[profiles] import incomplete", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Exporter:     a.cfg.TraceExporter,
		ServiceName:  "cropcal",
		OTLPEndpoint: a.cfg.OTLPEndpoint,
		OTLPInsecure: a.cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			a.logger.Warn("[otel] tracer shutdown", "error", err)
		}
	}()

	if a.cfg.EnableCron {
		cr, err := scheduler.New(a.policy.Tick.Cron, a.location(), a.calendar, a.policy.Tick.Timeout, a.logger)
		if err != nil {
			return err
		}
		cr.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			cr.Stop(sctx)
		}()
	}

	if a.cfg.NATSURL != "" {
		h := events.NewHandler(a.gateway, a.calendar, a.policy.Tick.Timeout, a.logger)
		sub, err := events.Subscribe(a.cfg.NATSURL, a.cfg.NATSSubject, h, a.logger)
		if err != nil {
			a.logger.Warn("[events] refresh subscriber disabled", "error", err)
		} else {
			defer sub.Close()
		}
	}

	// Repos
	fRepo := fieldRepoImp.New(a.db)
	mRepo := measRepoImp.New(a.db)
	sRepo := schedRepoImp.New(a.db)

	// Services
	fSvc := fieldSvcImp.NewFarmService(fRepo, a.policy.LocationPrecision)
	mSvc := measSvcImp.NewObservationService(mRepo, a.calendar)
	sSvc := schedSvcImp.NewScheduleService(sRepo, a.profiles, a.calendar, a.logger)

	hCtrl := healthCtrlImp.NewHealthCtrl(a.db, a.cache)

	e := echo.New()
	e.HideBanner = true
	e.Validator = middleware.NewValidator()
	e.Use(echoMiddleware.Recover())
	router.New(
		e,
		a.logger,
		fieldCtrlImp.New(fSvc),
		calCtrlImp.New(a.calendar),
		measCtrlImp.New(mSvc),
		schedCtrlImp.New(sSvc),
		hCtrl,
		promhttp.Handler(),
	)

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on :%s", a.cfg.Port)
		if err := e.Start(":" + a.cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("[http] shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
