package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"caseflow/admin"
	"caseflow/auth"
	"caseflow/cases"
	"caseflow/catalog"
	"caseflow/db"
	"caseflow/importer"
	"caseflow/logging"
	"caseflow/moderation"
	"caseflow/notify"
	"caseflow/settings"
	"caseflow/sla"
	"caseflow/variable"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := logging.Init("caseflow-api", os.Stdout)

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		return errors.New("DATABASE_URL is required")
	}
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	slaCron := os.Getenv("SLA_CRON")
	if slaCron == "" {
		slaCron = "*/15 * * * *"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	variableRepo := variable.NewRepository(pool)
	settingsRepo := settings.NewRepository(pool)
	notifyRepo := notify.NewRepository(pool)

	server := &Server{
		authService:       auth.NewService(auth.NewRepository(pool), jwtSecret),
		caseService:       cases.NewService(cases.NewRepository(pool)),
		variableStore:     variableRepo,
		workflowService:   variable.NewWorkflowService(pool),
		importService:     importer.NewService(pool, variableRepo),
		moderationService: moderation.NewService(moderation.NewRepository(pool)),
		catalogService:    catalog.NewService(catalog.NewRepository(pool)),
		notifyStore:       notifyRepo,
		adminService:      admin.NewService(pool),
		settingsStore:     settingsRepo,
		logger:            logger,
	}

	scanner, err := sla.NewScanner(pool, settingsRepo, slaCron, logger)
	if err != nil {
		return fmt.Errorf("bootstrap sla scanner: %w", err)
	}
	dispatcher := notify.NewDispatcher(pool, notifyRepo, logger)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return scanner.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("api stopped")
	return nil
}
