package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"fieldtrace/internal/adapter/storage"
	"fieldtrace/internal/config"
	"fieldtrace/internal/logging"
	"fieldtrace/internal/server"
	"fieldtrace/internal/service/broadcast"
	trackService "fieldtrace/internal/service/track"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	natsConn, err := initNATS(cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer natsConn.Close()

	// Storage adapters
	trackStore := storage.NewTrackStore(db)
	missionStore := storage.NewMissionStore(db)

	// Core services
	gateway := broadcast.NewGateway(broadcast.NewNATSBus(natsConn))
	ledger := trackService.NewMemoryLedger()
	pipeline := trackService.NewTrackPipeline(trackStore, ledger, missionStore, gateway)
	snapshots := trackService.NewSnapshotBuilder(trackStore, missionStore)

	// Background trail expiry sweeper
	purger := trackService.NewPurger(trackStore, cfg.Track.PurgeInterval)
	go purger.Run(ctx)

	httpServer := server.NewServer(
		cfg.Server,
		cfg.Track,
		pipeline,
		snapshots,
		gateway,
		missionStore,
	)

	go func() {
		logging.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	<-shutdown
	logging.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancel()
	logging.Info().Msg("shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info().Msg("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
