package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/forensic-testing/fts-intake/pkg/audit"
	"github.com/forensic-testing/fts-intake/pkg/auth"
	"github.com/forensic-testing/fts-intake/pkg/blob"
	"github.com/forensic-testing/fts-intake/pkg/config"
	"github.com/forensic-testing/fts-intake/pkg/crypto"
	"github.com/forensic-testing/fts-intake/pkg/database"
	"github.com/forensic-testing/fts-intake/pkg/export"
	"github.com/forensic-testing/fts-intake/pkg/handlers"
	"github.com/forensic-testing/fts-intake/pkg/logging"
	"github.com/forensic-testing/fts-intake/pkg/metrics"
	"github.com/forensic-testing/fts-intake/pkg/middleware"
	"github.com/forensic-testing/fts-intake/pkg/repositories"
	"github.com/forensic-testing/fts-intake/pkg/retry"
	"github.com/forensic-testing/fts-intake/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

// store bundles the repositories of whichever record store is configured.
type store struct {
	questionnaires repositories.QuestionnaireRepository
	users          repositories.UserRepository
	pinger         handlers.Pinger
	close          func()
}

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("version", cfg.Version),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("archive_driver", cfg.Export.ArchiveDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open record store", zap.String("error", logging.SanitizeError(err)))
	}
	defer st.close()

	schema, err := export.LoadSchema()
	if err != nil {
		logger.Fatal("Failed to load export schema", zap.Error(err))
	}

	archive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open export archive", zap.Error(err))
	}

	m := metrics.New()

	hasher := crypto.NewBcryptHasher(cfg.Auth.BcryptCost)
	sessions := auth.NewSessionManager(cfg.Auth.SessionSecret, time.Duration(cfg.Auth.SessionTTLSeconds)*time.Second)

	questionnaireService := services.NewQuestionnaireService(st.questionnaires, m, logger)
	exportService := services.NewExportService(st.questionnaires, schema, cfg.Export.SensitiveFields, archive, m, logger)
	userService := services.NewUserService(st.users, exportService, hasher, services.UserPolicy{
		AllowedEmailDomain: cfg.Auth.AllowedEmailDomain,
		StrictAdminDelete:  cfg.Auth.AdminDeleteRequiresSuperadmin,
	}, logger)
	sessionService := services.NewSessionService(st.users, hasher, sessions, logger)

	if cfg.Auth.SuperadminEmail != "" {
		created, err := sessionService.SeedSuperadmin(ctx, cfg.Auth.SuperadminEmail, cfg.Auth.SuperadminPassword)
		if err != nil {
			logger.Fatal("Failed to seed superadmin", zap.Error(err))
		}
		if created {
			logger.Info("Superadmin account created", zap.String("email", logging.MaskEmail(cfg.Auth.SuperadminEmail)))
		}
	}

	cookie := auth.DeriveCookieSettings(cfg.BaseURL, cfg.Auth.CookieName, cfg.Auth.CookieDomain, cfg.Auth.CookieSameSite)
	authService := auth.NewAuthService(sessions, st.users, cookie.Name, logger)
	authMiddleware := auth.NewMiddleware(authService, sessions, cookie, logger)
	auditor := audit.NewSecurityAuditor(logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, st.pinger, logger).RegisterRoutes(mux)
	handlers.NewAuthHandler(sessionService, cookie, auditor, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewQuestionnaireHandler(questionnaireService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAdminExportHandler(exportService, auditor, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewAdminUsersHandler(userService, auditor, logger).RegisterRoutes(mux, authMiddleware)
	mux.Handle("GET /metrics", m.Handler())

	handler := middleware.RequestLogger(logger)(middleware.Metrics(m)(mux))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting fts-intake",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// openStore connects to the configured record store, applies pending
// migrations and builds the repositories on top of it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := database.RunMigrations(db, database.DialectSQLite, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &store{
			questionnaires: repositories.NewSQLiteQuestionnaireRepository(db),
			users:          repositories.NewSQLiteUserRepository(db),
			pinger:         handlers.PingFunc(db.PingContext),
			close:          func() { _ = db.Close() },
		}, nil

	default:
		dbCfg := cfg.Database
		dbCfg.Host = config.ResolveHostForDocker(dbCfg.Host)
		logger.Info("Connecting to database",
			zap.String("dsn", logging.SanitizeConnectionString(dbCfg.ConnectionString())))

		db, err := database.ConnectWithRetry(ctx, &database.Config{
			URL:            dbCfg.URL(),
			MaxConnections: dbCfg.MaxConnections,
		}, retry.StartupConfig(), logger)
		if err != nil {
			return nil, err
		}

		// golang-migrate needs a database/sql handle; borrow one from the pool.
		sqlDB := stdlib.OpenDBFromPool(db.Pool)
		err = migratePostgres(sqlDB, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &store{
			questionnaires: repositories.NewQuestionnaireRepository(db),
			users:          repositories.NewUserRepository(db),
			pinger:         db,
			close:          db.Close,
		}, nil
	}
}

func migratePostgres(sqlDB *sql.DB, logger *zap.Logger) error {
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, database.DialectPostgres, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// openArchive returns nil when export archiving is disabled.
func openArchive(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*blob.Archive, error) {
	if !cfg.Export.ArchiveEnabled() {
		return nil, nil
	}

	var (
		bs  blob.Store
		err error
	)
	switch cfg.Export.ArchiveDriver {
	case config.ArchiveFS:
		bs, err = blob.NewFSStore(cfg.Export.ArchiveDir)
	case config.ArchiveMemory:
		bs = blob.NewMemoryStore()
	case config.ArchiveS3:
		endpoint := cfg.Export.S3Endpoint
		if endpoint != "" {
			endpoint = config.ResolveURLForDocker(endpoint)
		}
		bs, err = blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    cfg.Export.S3Bucket,
			Region:    cfg.Export.S3Region,
			Endpoint:  endpoint,
			PathStyle: cfg.Export.S3UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported export archive driver %q", cfg.Export.ArchiveDriver)
	}
	if err != nil {
		return nil, err
	}

	var sealer *crypto.Sealer
	if cfg.Export.ArchiveKey != "" {
		sealer, err = crypto.NewSealer(cfg.Export.ArchiveKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive sealer: %w", err)
		}
	} else {
		logger.Warn("Export archive is not encrypted; set EXPORT_ARCHIVE_KEY")
	}
	return blob.NewArchive(bs, sealer, logger), nil
}
