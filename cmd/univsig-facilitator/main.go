package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	univsig "github.com/blip-x402/univsig"
	"github.com/blip-x402/univsig/config"
	"github.com/blip-x402/univsig/http"
	"github.com/blip-x402/univsig/logger"
	"github.com/blip-x402/univsig/mechanisms/evm"
	"github.com/blip-x402/univsig/mechanisms/evm/universal/facilitator"
	evmsigners "github.com/blip-x402/univsig/signers/evm"
	"github.com/blip-x402/univsig/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  univsig.ServiceName,
		Usage: "Universal signature verification facilitator",
		Description: `An HTTP facilitator that verifies signatures from EOAs, deployed
EIP-1271 contract wallets and counterfactual wallets whose signatures are
wrapped with deployment data (0x69696969 suffix).

Counterfactual wallets are deployed through their factory before validation,
which requires a funded private key.`,
		Version: univsig.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Aliases: []string{"rpc"},
				Usage:   "Ethereum RPC endpoint URL",
				Value:   config.DefaultRPCURL,
				EnvVars: []string{config.EnvRPCURL},
			},
			&cli.StringFlag{
				Name:    "network",
				Usage:   "CAIP-2 network (eip155:<chain id>) or alias the RPC serves",
				Value:   config.DefaultNetwork,
				EnvVars: []string{config.EnvNetwork},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex private key that pays for counterfactual deployments (optional)",
				EnvVars: []string{config.EnvPrivateKey},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP server port",
				Value:   config.DefaultPort,
				EnvVars: []string{config.EnvPort},
			},
			&cli.DurationFlag{
				Name:    "verify-timeout",
				Usage:   "Upper bound on a single verification",
				Value:   config.DefaultVerifyTimeout,
				EnvVars: []string{config.EnvVerifyTimeout},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Requests per second allowed per client IP (0 disables)",
				Value:   config.DefaultRateLimit,
				EnvVars: []string{config.EnvRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Usage:   "Burst size for the per-client rate limit",
				Value:   config.DefaultRateBurst,
				EnvVars: []string{config.EnvRateBurst},
			},
			&cli.StringFlag{
				Name:    "recoverer",
				Usage:   "Signature recovery implementation: ecrecover or decred",
				Value:   config.DefaultRecoverer,
				EnvVars: []string{config.EnvRecoverer},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvDebug},
			},
		},
		Action: runFacilitator,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// parseConfig starts from the environment (and .env) and applies explicit flags on top
func parseConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if c.IsSet("rpc-url") {
		cfg.RPCURL = c.String("rpc-url")
	}
	if c.IsSet("network") {
		cfg.Network = c.String("network")
	}
	if c.IsSet("private-key") {
		cfg.PrivateKey = c.String("private-key")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("verify-timeout") {
		cfg.VerifyTimeout = c.Duration("verify-timeout")
	}
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Float64("rate-limit")
	}
	if c.IsSet("rate-burst") {
		cfg.RateBurst = c.Int("rate-burst")
	}
	if c.IsSet("recoverer") {
		cfg.Recoverer = c.String("recoverer")
	}
	if c.IsSet("verbose") {
		cfg.Debug = c.Bool("verbose")
	}

	return cfg, nil
}

func runFacilitator(c *cli.Context) error {
	cfg, err := parseConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	chainID, err := cfg.ChainID()
	if err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}
	l.Sugar().Infow("Using chain", "network", cfg.Network, "chain_id", chainID)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	signer, err := evmsigners.DialFacilitatorSigner(ctx, cfg.RPCURL, cfg.PrivateKey, l.Named("signer"))
	if err != nil {
		return err
	}
	if cfg.PrivateKey == "" {
		l.Sugar().Warnw("No private key configured, counterfactual signatures will be rejected")
	}

	recoverer, err := evm.RecovererByName(cfg.Recoverer)
	if err != nil {
		return err
	}

	scheme := facilitator.NewUniversalEvmScheme(signer, &facilitator.UniversalEvmSchemeConfig{
		Network:     cfg.Network,
		CallTimeout: cfg.VerifyTimeout,
		Recoverer:   recoverer,
		Logger:      l.Named("facilitator"),
	})
	if err := scheme.CheckNetwork(ctx); err != nil {
		return fmt.Errorf("RPC does not serve %s (chain id %d): %w", cfg.Network, chainID, err)
	}

	scheme.OnAfterVerify(func(_ context.Context, request types.VerifyRequest, report *evm.VerificationReport) {
		if report.Err != nil {
			l.Sugar().Debugw("Verification rejected",
				"signer", request.Signer,
				"reason", evm.ReasonFor(report.Err),
			)
		}
	})

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := http.NewRouter(scheme, &http.RouterConfig{
		Logger:         l.Named("http"),
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		RequestTimeout: cfg.VerifyTimeout + 5*time.Second,
	})

	server := &nethttp.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Sugar().Infow("Starting facilitator",
			"port", cfg.Port,
			"network", scheme.Network(),
			"signers", scheme.GetSigners(),
			"recoverer", cfg.Recoverer,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Sugar().Infow("Shutting down facilitator")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("Graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
