package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/pavelsemenov/choreboard/internal/application/dispatcher"
	"github.com/pavelsemenov/choreboard/internal/application/port"
	"github.com/pavelsemenov/choreboard/internal/config"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/export"
	"github.com/pavelsemenov/choreboard/internal/generator"
	"github.com/pavelsemenov/choreboard/internal/infrastructure/persistence/repository"
	"github.com/pavelsemenov/choreboard/internal/infrastructure/worker"
	httpserver "github.com/pavelsemenov/choreboard/internal/interfaces/http"
	"github.com/pavelsemenov/choreboard/internal/lifecycle"
	"github.com/pavelsemenov/choreboard/internal/reward"
	"github.com/pavelsemenov/choreboard/internal/scheduler"
	"github.com/pavelsemenov/choreboard/internal/scoring"
	"github.com/pavelsemenov/choreboard/internal/voting"
	"github.com/pavelsemenov/choreboard/pkg/database"
	"github.com/pavelsemenov/choreboard/pkg/utils"
)

func main() {
	// Load .env if present; values feed the env bindings in config
	gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting chore coordination service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	quietWindow, err := scheduler.ParseQuietWindow(cfg.QuietHours.Window)
	if err != nil {
		logger.Fatal("Failed to parse quiet hours window", zap.Error(err))
	}
	location, err := cfg.Timezone()
	if err != nil {
		logger.Fatal("Failed to load timezone", zap.Error(err))
	}
	weeklyDay, err := cfg.WeeklyDay()
	if err != nil {
		logger.Fatal("Failed to parse weekly day", zap.Error(err))
	}

	// Repositories
	participantRepo := repository.NewParticipantRepository(db.DB, logger)
	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	reportRepo := repository.NewReportRepository(db.DB, logger)
	tallyRepo := repository.NewTallyRepository(db.DB, logger)
	scoreRepo := repository.NewScoreRepository(db.DB, logger)
	disputeRepo := repository.NewDisputeRepository(db.DB, logger)
	coefficientRepo := repository.NewCoefficientRepository(db.DB, logger)

	clock := port.SystemClock{}
	disp := dispatcher.New(logger)
	timerScheduler := scheduler.New(logger)

	// Seed reward settings from config on first start; later admin
	// overrides stored in the database win
	ctx := context.Background()
	if err := seedRewardSettings(ctx, coefficientRepo, cfg.Reward); err != nil {
		logger.Fatal("Failed to seed reward settings", zap.Error(err))
	}

	ledger := scoring.NewLedger(scoreRepo, disp, clock, logger)
	votingEngine := voting.NewEngine(tallyRepo, reportRepo, timerScheduler, clock, logger)

	rewardController := reward.NewController(coefficientRepo, clock, logger)
	rewardController.Subscribe(disp)

	seasonReporter := export.NewSeasonReporter(cfg.Season.ExportDir, logger)

	lifecycleEngine := lifecycle.NewEngine(
		lifecycle.Config{
			ReannounceDelay:   cfg.Lifecycle.ReannounceDelay,
			ReannounceCap:     cfg.Lifecycle.ReannounceCap,
			ResubmitSLAFactor: cfg.Lifecycle.ResubmitSLAFactor,
			QuietWindow:       quietWindow,
			Location:          location,
		},
		templateRepo,
		instanceRepo,
		reportRepo,
		participantRepo,
		disputeRepo,
		votingEngine,
		ledger,
		timerScheduler,
		disp,
		clock,
		seasonReporter,
		logger,
	)

	taskGenerator := generator.New(
		generator.Config{
			Hour:      cfg.Generator.Hour,
			WeeklyDay: weeklyDay,
			Location:  location,
		},
		templateRepo,
		instanceRepo,
		participantRepo,
		rewardController,
		lifecycleEngine,
		clock,
		logger,
	)

	workerManager := worker.NewManager(logger)
	workerManager.Register(taskGenerator)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if err := workerManager.StartAll(workerCtx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		httpserver.Deps{
			Lifecycle:    lifecycleEngine,
			Voting:       votingEngine,
			Ledger:       ledger,
			Reward:       rewardController,
			Generator:    taskGenerator,
			Templates:    templateRepo,
			Instances:    instanceRepo,
			Participants: participantRepo,
			Disputes:     disputeRepo,
		},
		logger,
	)

	serverCtx, serverCancel := context.WithCancel(context.Background())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(serverCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	serverCancel()

	if err := workerManager.StopAll(); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}
	timerScheduler.Stop()
	if err := disp.Close(); err != nil {
		logger.Error("Dispatcher shutdown error", zap.Error(err))
	}

	// Give the server's own shutdown a moment to drain
	time.Sleep(100 * time.Millisecond)

	logger.Info("Server exited successfully")
}

// seedRewardSettings writes the configured reward bounds when no settings
// row exists yet
func seedRewardSettings(ctx context.Context, repo *repository.CoefficientRepository, cfg config.RewardConfig) error {
	existing, err := repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return repo.SaveSettings(ctx, &entity.RewardSettings{
		Min:         cfg.Min,
		Max:         cfg.Max,
		Default:     cfg.Default,
		BonusStep:   cfg.BonusStep,
		PenaltyStep: cfg.PenaltyStep,
	})
}
