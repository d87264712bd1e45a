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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/dkeye/Chatter/internal/adapters/http"
	"github.com/dkeye/Chatter/internal/adapters/rtc"
	wssignal "github.com/dkeye/Chatter/internal/adapters/signal"
	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/app/orch"
	"github.com/dkeye/Chatter/internal/app/sfu"
	"github.com/dkeye/Chatter/internal/auth"
	"github.com/dkeye/Chatter/internal/config"
	"github.com/dkeye/Chatter/internal/logging"
	"github.com/dkeye/Chatter/internal/metrics"
	transport "github.com/dkeye/Chatter/internal/transport/http"
)

func main() {
	// Console logger until the config says otherwise.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chatter",
		Short:        "Real-time chat server with channels, presence and livestreams",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})

	account := &cobra.Command{Use: "account", Short: "Manage accounts"}
	account.AddCommand(&cobra.Command{
		Use:   "add <username> <password>",
		Short: "Create an account in the configured credential store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountAdd(cmd.Context(), args[0], args[1])
		},
	})
	root.AddCommand(account)
	return root
}

func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logging: %w", err)
	}
	return cfg, func() { _ = closer.Close() }, nil
}

func newAuthenticator(cfg *config.Config, m *metrics.Metrics) (*auth.Authenticator, auth.Store, error) {
	store, err := auth.NewStore(cfg.Auth)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	opts := auth.Options{AllowVisitors: cfg.Auth.AllowVisitors, BcryptCost: cfg.Auth.BcryptCost}
	if m != nil {
		opts.Observe = m.AuthAttempt
	}
	a, err := auth.NewAuthenticator(store, tokens, opts)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return a, store, nil
}

func runAccountAdd(ctx context.Context, username, password string) error {
	cfg, closeLogs, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLogs()

	a, store, err := newAuthenticator(cfg, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Auth.Store == "memory" {
		log.Warn().Str("store", cfg.Auth.Store).Msg("account will not outlive this process")
	}
	if err := a.Register(ctx, username, password); err != nil {
		return err
	}
	fmt.Printf("account %q created\n", username)
	return nil
}

func runServe(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, closeLogs, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	defer closeLogs()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	a, store, err := newAuthenticator(cfg, m)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up authentication")
		return err
	}
	defer store.Close()

	policy, err := app.NewPolicy(cfg.Backpressure)
	if err != nil {
		return err
	}
	channels := app.NewChannelManager(cfg.HistorySize)
	channels.OnCreate(m.SetChannels)
	relays := sfu.NewRelayManager()
	relays.ValidateRTP = cfg.Stream.ValidateRTP
	if m != nil {
		relays.Observer = m
	}

	o := &orch.Orchestrator{
		Directory:    app.NewDirectory(),
		Channels:     channels,
		Policy:       policy,
		Relays:       relays,
		Metrics:      m,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}

	ingest, err := rtc.NewIngestAPI(cfg.Stream.ICEServers)
	if err != nil {
		return err
	}
	ctrl := wssignal.NewSignalWSController(o, a, wssignal.RTCMediaFactory(ingest), wssignal.OptionsFromConfig(cfg))
	r := router.SetupRouter(ctx, cfg, ctrl, transport.NewAPI(o, a), m)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Chatter server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			return err
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	o.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
