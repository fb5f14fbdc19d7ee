package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mgarrido/lumicat/internal/acme"
	"github.com/mgarrido/lumicat/internal/config"
	"github.com/mgarrido/lumicat/internal/db"
	"github.com/mgarrido/lumicat/internal/logging"
	"github.com/mgarrido/lumicat/internal/security"
	"github.com/mgarrido/lumicat/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var serveFlags struct {
	httpPort  int
	httpsPort int
	dbPath    string
	domain    string
	env       string
	tlsCert   string
	tlsKey    string
	redisAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalogue API server",
	Long: `Start the catalogue API server.

TLS Modes (when LUMICAT_HTTPS_ENABLED=true):
  --tls-cert + --tls-key  → Manual TLS mode (use provided certificates)
  (neither)               → ACME mode (automatic Let's Encrypt certificates,
                            requires a public --domain)

With LUMICAT_REDIS_ADDR set, bans are shared across instances through
Redis; otherwise each instance keeps its own in-memory ban state.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&serveFlags.httpPort, "http-port", 0, "HTTP port to listen on (overrides LUMICAT_HTTP_PORT)")
	serveCmd.Flags().IntVar(&serveFlags.httpsPort, "https-port", 0, "HTTPS port to listen on (overrides LUMICAT_HTTPS_PORT)")
	serveCmd.Flags().StringVar(&serveFlags.dbPath, "db", "", "catalogue database path (overrides LUMICAT_DB)")
	serveCmd.Flags().StringVar(&serveFlags.domain, "domain", "", "public domain (overrides LUMICAT_DOMAIN)")
	serveCmd.Flags().StringVar(&serveFlags.env, "env", "", "environment: development|production (overrides LUMICAT_ENV)")
	serveCmd.Flags().StringVar(&serveFlags.tlsCert, "tls-cert", "", "path to TLS certificate file (enables manual TLS mode)")
	serveCmd.Flags().StringVar(&serveFlags.tlsKey, "tls-key", "", "path to TLS key file (enables manual TLS mode)")
	serveCmd.Flags().StringVar(&serveFlags.redisAddr, "redis-addr", "", "redis address for shared ban state (overrides LUMICAT_REDIS_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyServeFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	bans, closeBans, err := newBanRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeBans()

	gate := security.NewGate(cfg, bans, logger.Named("gate"))

	srv := &server.Server{
		DB:     database,
		Config: cfg,
		Gate:   gate,
		Logger: logger.Named("api"),
	}
	handler := srv.Handler()

	logger.Info("starting lumicat",
		zap.String("environment", cfg.Environment),
		zap.Int("api_keys", len(cfg.APIKeys)),
		zap.Int("admin_keys", len(cfg.AdminKeys)),
		zap.Bool("rate_limiting", cfg.RateLimitEnabled),
		zap.Int("rate_limit_per_client", cfg.RateLimitPerClient),
		zap.Bool("scraping_detection", cfg.ScrapingDetectionEnabled),
		zap.Int("blocked_user_agents", len(cfg.BlockedUserAgents)),
		zap.Bool("https", cfg.HTTPSEnabled))
	if cfg.InsecureSkipAuth {
		logger.Warn("API key verification DISABLED (insecure development bypass)")
	}

	manualTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	acmeMode := cfg.HTTPSEnabled && !manualTLS

	var manager *acme.Manager
	var httpsServer *http.Server
	httpsErrLog, _ := zap.NewStdLogAt(logger.Named("https"), zapcore.ErrorLevel)

	httpHandler := handler
	if acmeMode {
		manager = acme.NewManager(cfg.Domain, cfg.ACMEEmail, database, cfg.ACMEStaging, logger.Named("certmagic"))
		logger.Info("starting acme certificate acquisition", logging.Domain(cfg.Domain), zap.Bool("staging", cfg.ACMEStaging))
		if err := manager.Manage(context.Background()); err != nil {
			return fmt.Errorf("ACME certificate acquisition: %w", err)
		}
		logger.Info("acme certificate obtained", logging.Domain(cfg.Domain))
	}

	httpErrLog, _ := zap.NewStdLogAt(logger.Named("http"), zapcore.ErrorLevel)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpHandler,
		ErrorLog:          httpErrLog,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	if manager != nil {
		httpServer.Handler = manager.HTTPChallengeHandler(handler)
	}

	go func() {
		logger.Info("starting http server", logging.Port(cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	switch {
	case acmeMode:
		httpsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPSPort),
			Handler:           handler,
			TLSConfig:         manager.TLSConfig(),
			ErrorLog:          httpsErrLog,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
		go func() {
			logger.Info("starting https server", logging.Port(cfg.HTTPSPort), logging.TLSMode("acme"))
			if err := httpsServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				logger.Error("https server error", zap.Error(err))
			}
		}()
	case manualTLS:
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		httpsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPSPort),
			Handler:           handler,
			TLSConfig:         &tls.Config{Certificates: []tls.Certificate{cert}},
			ErrorLog:          httpsErrLog,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
		go func() {
			logger.Info("starting https server", logging.Port(cfg.HTTPSPort), logging.TLSMode("manual"))
			if err := httpsServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				logger.Error("https server error", zap.Error(err))
			}
		}()
	default:
		logger.Info("https disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if httpsServer != nil {
		httpsServer.Shutdown(ctx)
	}
	httpServer.Shutdown(ctx)

	return nil
}

func applyServeFlags(cfg *config.Config) {
	if serveFlags.httpPort != 0 {
		cfg.HTTPPort = serveFlags.httpPort
	}
	if serveFlags.httpsPort != 0 {
		cfg.HTTPSPort = serveFlags.httpsPort
	}
	if serveFlags.dbPath != "" {
		cfg.DBPath = serveFlags.dbPath
	}
	if serveFlags.domain != "" {
		cfg.Domain = serveFlags.domain
	}
	if serveFlags.env != "" {
		cfg.Environment = serveFlags.env
	}
	if serveFlags.tlsCert != "" {
		cfg.TLSCertFile = serveFlags.tlsCert
	}
	if serveFlags.tlsKey != "" {
		cfg.TLSKeyFile = serveFlags.tlsKey
	}
	if serveFlags.redisAddr != "" {
		cfg.RedisAddr = serveFlags.redisAddr
	}
}

func newBanRegistry(cfg *config.Config) (security.BanRegistry, func(), error) {
	if cfg.RedisAddr == "" {
		return security.NewMemoryBanRegistry(), func() {}, nil
	}

	registry := security.NewRedisBanRegistry(security.RedisBanConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := registry.Ping(ctx); err != nil {
		registry.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("sharing ban state through redis", logging.Addr(cfg.RedisAddr))
	return registry, func() { _ = registry.Close() }, nil
}
