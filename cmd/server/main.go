package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/better-wallet/dapp-broker/internal/api"
	"github.com/better-wallet/dapp-broker/internal/broker"
	"github.com/better-wallet/dapp-broker/internal/config"
	"github.com/better-wallet/dapp-broker/internal/gate"
	"github.com/better-wallet/dapp-broker/internal/keyexec"
	"github.com/better-wallet/dapp-broker/internal/ledger"
	"github.com/better-wallet/dapp-broker/internal/logger"
	"github.com/better-wallet/dapp-broker/internal/metrics"
	"github.com/better-wallet/dapp-broker/internal/middleware"
	"github.com/better-wallet/dapp-broker/internal/permissions"
	"github.com/better-wallet/dapp-broker/internal/policy"
	"github.com/better-wallet/dapp-broker/internal/relay"
	"github.com/better-wallet/dapp-broker/internal/storage"
	"github.com/better-wallet/dapp-broker/internal/vault"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	hubBuffer       = 16
	metricsNS       = "dapp_broker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.LogFormat, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg); err != nil {
		logger.Error(context.Background(), "server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var repos *storage.Repositories
	if cfg.PostgresDSN != "" {
		store, err := storage.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()
		repos = store.Repositories()
		logger.Info(ctx, "connected to database")
	} else {
		repos = storage.NewMemoryRepositories()
		logger.Warn(ctx, "POSTGRES_DSN not set, state is kept in memory only")
	}

	// Keyfile sealing and signing
	sealer, err := keyexec.NewSealer(ctx, &keyexec.SealerConfig{
		Provider:          cfg.KMSProvider,
		LocalMasterKeyHex: cfg.KMSLocalMasterKey,
		AWSKMSKeyID:       cfg.KMSAWSKeyID,
		AWSKMSRegion:      cfg.KMSAWSRegion,
		VaultAddress:      cfg.KMSVaultAddress,
		VaultToken:        cfg.KMSVaultToken,
		VaultTransitKey:   cfg.KMSVaultTransitKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sealer: %w", err)
	}
	executor := keyexec.NewLocalExecutor(cfg.KeyfileScryptWorkFactor)
	logger.Info(ctx, "initialized keyfile sealer", "provider", sealer.Provider())

	wallets := vault.New(repos.Keyfiles, repos.Profile, sealer, executor)
	session := vault.NewSession(cfg.VaultIdleTimeout)

	// Fees and auto-approval
	fees, denom, closeFees, err := newFeeQuoter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFees()

	ceiling, err := denom.ParseAmount(cfg.AutoApproveCeiling)
	if err != nil {
		return fmt.Errorf("invalid AUTO_APPROVE_CEILING: %w", err)
	}
	engine, err := policy.NewEngine(ceiling)
	if err != nil {
		return err
	}
	logger.Info(ctx, "auto-approve ceiling", "amount", denom.Format(ceiling), "denomination", denom.Symbol)

	// Permissions
	capabilities := permissions.NewCapabilityStore(repos.Capabilities)
	blockList := permissions.NewBlockList(repos.BlockList)
	if cfg.BlocklistFile != "" {
		n, err := blockList.LoadBlockList(ctx, cfg.BlocklistFile)
		if err != nil {
			return err
		}
		logger.Info(ctx, "block list loaded", "file", cfg.BlocklistFile, "entries", n)
	}

	// Approval gate
	hub := relay.NewHub(hubBuffer)
	prom := metrics.NewPrometheus(metricsNS)

	launcher, err := newLauncher(cfg, hub)
	if err != nil {
		return err
	}
	tickets, err := gate.NewTicketIssuer([]byte(cfg.TicketSecret))
	if err != nil {
		return err
	}
	approvals := gate.New(gate.Config{PopupURL: cfg.PopupURL, Timeout: cfg.GateTimeout}, launcher, tickets)
	approvals.SetObserver(prom)

	b, err := broker.New(broker.Config{
		AppName:    cfg.AppName,
		AppVersion: cfg.AppVersion,
	}, broker.Deps{
		Capabilities: capabilities,
		BlockList:    blockList,
		Activity:     repos.Activity,
		Wallets:      wallets,
		Approver:     approvals,
		Signer:       executor,
		Session:      session,
		Fees:         fees,
		Policy:       engine,
		Publisher:    hub,
		Metrics:      prom,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	// Transport
	popupAuth, err := tokenAuth(middleware.CallerPopup, cfg.PopupToken, cfg.PopupTokenHash)
	if err != nil {
		return err
	}
	relayAuth, err := tokenAuth(middleware.CallerRelay, cfg.RelayToken, cfg.RelayTokenHash)
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	server := api.NewServer(api.Config{
		Port:         cfg.Port,
		PopupURL:     cfg.PopupURL,
		MaxBodyBytes: middleware.MaxBodySize,
	}, api.Deps{
		Broker:      b,
		Approvals:   approvals,
		Wallets:     wallets,
		Session:     session,
		Permissions: capabilities,
		BlockList:   blockList,
		Activity:    repos.Activity,
		Hub:         hub,
		Metrics:     prom.Handler(),
		PopupAuth:   popupAuth,
		RelayAuth:   relayAuth,
		RateLimiter: limiter,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return session.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		session.Lock()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info(context.Background(), "server stopped")
	return nil
}

// newFeeQuoter builds the configured fee ledger and the denomination its
// quotes are in
func newFeeQuoter(ctx context.Context, cfg *config.Config) (ledger.FeeQuoter, ledger.Denomination, func(), error) {
	switch cfg.LedgerKind {
	case config.LedgerEVM:
		q, err := ledger.NewEVMQuoter(ctx, cfg.LedgerRPCURL)
		if err != nil {
			return nil, ledger.Denomination{}, nil, fmt.Errorf("failed to initialize fee ledger: %w", err)
		}
		return q, ledger.DenominationETH, q.Close, nil
	default:
		q, err := ledger.NewGatewayQuoter(ledger.GatewayConfig{
			Host:     cfg.LedgerHost,
			Port:     cfg.LedgerPort,
			Protocol: cfg.LedgerProtocol,
			Timeout:  cfg.LedgerTimeout,
		})
		if err != nil {
			return nil, ledger.Denomination{}, nil, fmt.Errorf("failed to initialize fee ledger: %w", err)
		}
		return q, ledger.DenominationAR, func() {}, nil
	}
}

// newLauncher builds the configured approval surface launcher
func newLauncher(cfg *config.Config, hub *relay.Hub) (gate.Launcher, error) {
	switch cfg.PopupLauncher {
	case config.LauncherExec:
		return gate.NewExecLauncher(cfg.PopupLaunchCommand)
	case config.LauncherLog:
		return gate.LogLauncher{}, nil
	default:
		return gate.NewHubLauncher(hub), nil
	}
}

// tokenAuth prefers a configured bcrypt hash over hashing the plain token.
func tokenAuth(caller, token, hash string) (*middleware.TokenAuth, error) {
	if hash == "" {
		var err error
		if hash, err = middleware.HashToken(token); err != nil {
			return nil, err
		}
	}
	return middleware.NewTokenAuth(caller, hash)
}
