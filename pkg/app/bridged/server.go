// Package bridged implements app.Runner for the bridge daemon.
package bridged

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/stablebridge/cctp-middleware/pkg/app/http"
	"github.com/stablebridge/cctp-middleware/pkg/attestation"
	"github.com/stablebridge/cctp-middleware/pkg/bridge"
	bridgeservice "github.com/stablebridge/cctp-middleware/pkg/bridge/service"
	"github.com/stablebridge/cctp-middleware/pkg/bridgestore"
	"github.com/stablebridge/cctp-middleware/pkg/chain"
	"github.com/stablebridge/cctp-middleware/pkg/config"
	"github.com/stablebridge/cctp-middleware/pkg/pgutil"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// sourceChainName is the canonical name of the burn-side chain.
const sourceChainName = "ethereum"

// Server holds configuration for the bridge daemon process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new bridge daemon Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts the bridge orchestrator and the HTTP API server. It
// blocks until an OS shutdown signal is received or a fatal server
// error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting CCTP bridge daemon")

	store, cleanup, err := setupStatusStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	source, err := chain.NewEVMClient("source", &cfg.Source, logger)
	if err != nil {
		return fmt.Errorf("setup source chain client: %w", err)
	}
	defer source.Close()

	destinations := make(map[string]chain.Client, len(cfg.Destinations))
	orchDestinations := make(map[string]bridge.DestinationConfig, len(cfg.Destinations))
	for name := range cfg.Destinations {
		dest := cfg.Destinations[name]
		client, err := chain.NewEVMClient(name, &dest.ChainConfig, logger)
		if err != nil {
			return fmt.Errorf("setup %s chain client: %w", name, err)
		}
		defer client.Close()

		destinations[name] = client
		orchDestinations[name] = bridge.DestinationConfig{
			Domain:             dest.Domain,
			MessageTransmitter: dest.MessageTransmitter,
		}
	}

	attester := attestation.NewClient(&cfg.Attestation, logger)
	events := bridge.NewEventBus(logger)

	orchestrator := bridge.NewOrchestrator(bridge.Config{
		SourceChain:        sourceChainName,
		Account:            source.Address().Hex(),
		USDCContract:       cfg.Source.USDCContract,
		TokenMessenger:     cfg.Source.TokenMessenger,
		MessageTransmitter: cfg.Source.MessageTransmitter,
		Destinations:       orchDestinations,
		FlatFee:            cfg.Bridge.FlatFee,
		PollInterval:       cfg.Attestation.PollInterval,
		MaxPollAttempts:    cfg.Attestation.MaxAttempts,
	}, source, destinations, attester, store, events, logger)

	sub := orchestrator.Subscribe(bridge.ProgressChannel, func(event bridge.ProgressEvent) {
		fields := []zap.Field{
			zap.String("tracking_id", event.TrackingID),
			zap.String("phase", string(event.Phase)),
		}
		if event.TxHash != "" {
			fields = append(fields, zap.String("tx_hash", event.TxHash))
		}
		if event.Error != "" {
			fields = append(fields, zap.String("error", event.Error))
		}
		logger.Info("Bridge progress", fields...)
	})
	defer sub.Unsubscribe()

	return apphttp.ServeAndWait(ctx, s.router(orchestrator, logger), logger, &cfg.Server)
}

func (s *Server) router(orchestrator *bridge.Orchestrator, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled")
	}

	r.Route("/api/v1", func(r chi.Router) {
		bridgeservice.RegisterRoutes(r, orchestrator, logger)
	})

	return r
}

// setupStatusStore picks the PostgreSQL store when a database host is
// configured and falls back to the in-memory store otherwise.
func setupStatusStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (bridge.StatusStore, func(), error) {
	if cfg.Database.Host == "" {
		logger.Info("No database configured, using in-memory status store")
		return bridge.NewMemoryStatusStore(), func() {}, nil
	}

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("setup database: %w", err)
	}
	if err := bridgestore.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("Using PostgreSQL status store", zap.String("database", cfg.Database.Database))
	return bridgestore.NewStore(db), func() { _ = db.Close() }, nil
}
