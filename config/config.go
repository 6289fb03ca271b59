package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blip-x402/univsig/mechanisms/evm"
	"github.com/joho/godotenv"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for facilitator configuration
const (
	EnvRPCURL        = "UNIVSIG_RPC_URL"
	EnvPrivateKey    = "UNIVSIG_PRIVATE_KEY"
	EnvPort          = "UNIVSIG_PORT"
	EnvNetwork       = "UNIVSIG_NETWORK"
	EnvVerifyTimeout = "UNIVSIG_VERIFY_TIMEOUT"
	EnvRateLimit     = "UNIVSIG_RATE_LIMIT"
	EnvRateBurst     = "UNIVSIG_RATE_BURST"
	EnvRecoverer     = "UNIVSIG_RECOVERER"
	EnvDebug         = "UNIVSIG_DEBUG"
)

// Defaults
const (
	DefaultRPCURL        = "http://localhost:8545"
	DefaultPort          = 4022
	DefaultNetwork       = "eip155:84532"
	DefaultVerifyTimeout = evm.DefaultCallTimeout
	DefaultRateLimit     = 20.0
	DefaultRateBurst     = 40
	DefaultRecoverer     = "ecrecover"
)

// Config holds facilitator configuration
type Config struct {
	// Chain access
	RPCURL  string `json:"rpc_url"`
	Network string `json:"network"` // CAIP-2 id or alias

	// PrivateKey funds counterfactual deployments. Without it the facilitator
	// can still verify deployed and EOA signers; wrapped signatures fail.
	PrivateKey string `json:"-"`

	// HTTP service
	Port      int     `json:"port"`
	RateLimit float64 `json:"rate_limit"` // requests per second, 0 disables
	RateBurst int     `json:"rate_burst"`

	// Verification
	VerifyTimeout time.Duration `json:"verify_timeout"`
	Recoverer     string        `json:"recoverer"`

	Debug bool `json:"debug"`
}

// Default returns a Config with every default applied
func Default() *Config {
	return &Config{
		RPCURL:        DefaultRPCURL,
		Network:       DefaultNetwork,
		Port:          DefaultPort,
		RateLimit:     DefaultRateLimit,
		RateBurst:     DefaultRateBurst,
		VerifyTimeout: DefaultVerifyTimeout,
		Recoverer:     DefaultRecoverer,
	}
}

// LoadFromEnv reads configuration from the environment.
// A .env file in the working directory is loaded first when present.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv(EnvRPCURL); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network = v
	}
	if v := os.Getenv(EnvRecoverer); v != "" {
		cfg.Recoverer = v
	}
	cfg.PrivateKey = os.Getenv(EnvPrivateKey)

	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv(EnvVerifyTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvVerifyTimeout, err)
		}
		cfg.VerifyTimeout = timeout
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRateLimit, err)
		}
		cfg.RateLimit = limit
	}
	if v := os.Getenv(EnvRateBurst); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRateBurst, err)
		}
		cfg.RateBurst = burst
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}

	return cfg, nil
}

// Validate validates the facilitator configuration
func (c *Config) Validate() error {
	var allErrors field.ErrorList

	if c.RPCURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("rpcUrl"), "rpc url is required"))
	} else if u, err := url.Parse(c.RPCURL); err != nil || u.Scheme == "" || u.Host == "" {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rpcUrl"), c.RPCURL, "must be an absolute URL"))
	}

	if _, err := evm.GetEvmChainId(c.Network); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("network"), c.Network, err.Error()))
	}

	if c.PrivateKey != "" {
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if len(key) != 64 { // 32 bytes
			allErrors = append(allErrors, field.Invalid(field.NewPath("privateKey"), "<redacted>",
				fmt.Sprintf("must be 32 bytes (64 hex chars), got %d chars", len(key))))
		}
	}

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	if c.VerifyTimeout <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("verifyTimeout"), c.VerifyTimeout.String(), "must be positive"))
	}

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be at least 1 when rate limiting is enabled"))
	}

	if _, err := evm.RecovererByName(c.Recoverer); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("recoverer"), c.Recoverer, []string{"ecrecover", "decred"}))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ChainID resolves the configured network to its chain id
func (c *Config) ChainID() (int64, error) {
	id, err := evm.GetEvmChainId(c.Network)
	if err != nil {
		return 0, err
	}
	return id.Int64(), nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
