package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/wfunc/blinkduel/broadcast"
	"github.com/wfunc/blinkduel/config"
	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/monitor"
	"github.com/wfunc/blinkduel/persistence"
	"github.com/wfunc/blinkduel/room"
	"github.com/wfunc/blinkduel/rpc"
	"github.com/wfunc/blinkduel/server"
	"github.com/wfunc/blinkduel/services"
	"github.com/wfunc/blinkduel/settlement"
)

func main() {
	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Log.Warnf("Failed to read .env: %v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	store, err := openStore(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	auth, dir, err := openAuth(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to set up authentication: %v", err)
	}
	if dir != nil {
		defer dir.Close()
	}

	var signer *settlement.Signer
	if cfg.Settlement.Enabled() {
		signer, err = settlement.NewSigner(cfg.Settlement.PrivateKey, cfg.Settlement.ContractAddress)
		if err != nil {
			logger.Log.Fatalf("Failed to load settlement key: %v", err)
		}
		logger.Log.Infow("Settlement enabled", "signer", signer.Address(), "contract", signer.Contract())
	} else {
		logger.Log.Warn("Settlement key or contract missing, claims are disabled")
	}
	payouts, err := settlement.ParsePayouts(cfg.Settlement.StakeAmount, cfg.Settlement.WinAmount)
	if err != nil {
		logger.Log.Fatalf("Invalid payout amounts: %v", err)
	}

	notifiers, closers := openNotifiers(cfg)
	for _, c := range closers {
		defer c()
	}
	dispatcher := broadcast.NewDispatcher(cfg.Notify.Timeout, notifiers...)

	mon := monitor.NewMonitor("blinkduel")
	mon.StartServer(cfg.Server.MetricsAddress)

	matches := services.NewMatchService(store, services.Options{
		Settings:       cfg.Match.Settings(),
		Codes:          room.NewCodeGenerator(cfg.Match.CodeAlphabet, cfg.Match.CodeLength),
		CodeAttempts:   cfg.Match.CodeAttempts,
		CommitAttempts: cfg.Match.CommitAttempts,
		Signer:         signer,
		Payouts:        payouts,
		Dispatcher:     dispatcher,
		Monitor:        mon,
		Clock:          clockwork.NewRealClock(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewMatchRPC(matches))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	go rpcServer.Start()

	healthServer, err := rpc.NewHealthServer(cfg.Server.GRPCAddress, store, 5*time.Second)
	if err != nil {
		logger.Log.Fatalf("Failed to create health server: %v", err)
	}
	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		if err := healthServer.Serve(ctx); err != nil {
			logger.Log.Errorf("Health server stopped: %v", err)
		}
	}()

	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, matches, store, auth, server.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Monitor:        mon,
	})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gameServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Log.Errorf("Game server stopped: %v", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("HTTP shutdown: %v", err)
	}
	rpcServer.Stop()
	<-healthDone
	if err := mon.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("Metrics shutdown: %v", err)
	}
	dispatcher.Wait()
}

func openStore(cfg *config.Config) (persistence.Store, error) {
	if cfg.Store.Driver == "memory" {
		logger.Log.Warn("Using in-memory store, state is lost on restart and not shared between instances")
		return persistence.NewMemoryStore(clockwork.NewRealClock()), nil
	}
	return persistence.NewRedisStore(persistence.RedisOptions{
		URL:      cfg.Redis.URL,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// openAuth returns the authenticator and, in session mode, its directory.
func openAuth(cfg *config.Config) (server.Authenticator, persistence.Directory, error) {
	if cfg.Auth.Mode == "gateway" {
		if cfg.Auth.GatewayToken == "" {
			return nil, nil, errors.New("auth.gateway_token is required in gateway mode")
		}
		return server.NewGatewayAuth(cfg.Auth.GatewayToken), nil, nil
	}

	pg := cfg.Database.Postgres
	var dir persistence.Directory
	var err error
	switch {
	case pg.Host == "":
		sessions := make(map[string]persistence.Identity, len(cfg.Auth.StaticSessions))
		for _, s := range cfg.Auth.StaticSessions {
			sessions[s.Token] = persistence.Identity{Wallet: s.Wallet, DisplayName: s.Username}
		}
		logger.Log.Infof("Using %d static sessions", len(sessions))
		dir = persistence.NewStaticDirectory(sessions)
	case pg.Driver == "sql":
		dir, err = persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		dir, err = persistence.NewGormDirectory(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	}
	if err != nil {
		return nil, nil, err
	}
	if pg.Host != "" {
		logger.Log.Info("Database connection successful.")
	}
	return server.NewSessionAuth(dir), dir, nil
}

func openNotifiers(cfg *config.Config) ([]broadcast.Notifier, []func()) {
	var notifiers []broadcast.Notifier
	var closers []func()

	if cfg.Notify.NATSURL != "" {
		conn, err := broadcast.DialNATS(cfg.Notify.NATSURL)
		if err != nil {
			logger.Log.Warnf("NATS unavailable, outcomes will not be published: %v", err)
		} else {
			n := broadcast.NewNATSNotifier(conn, cfg.Notify.SubjectPrefix)
			notifiers = append(notifiers, n)
			closers = append(closers, func() { _ = n.Close() })
		}
	}

	mk, err := broadcast.NewMinikitNotifier(cfg.Notify.MinikitAPIKey, cfg.Notify.MinikitAppID, cfg.Notify.MinikitURL)
	if err == nil {
		notifiers = append(notifiers, mk)
	} else if !errors.Is(err, broadcast.ErrNotConfigured) {
		logger.Log.Warnf("Push notifications disabled: %v", err)
	}
	return notifiers, closers
}
