// Package config holds the tunables of a deployment run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// BumpStrategy selects how the fee grows on each gas bump.
type BumpStrategy string

const (
	// BumpExponential multiplies the previous fee by the bump factor.
	BumpExponential BumpStrategy = "exponential"
	// BumpLinear adds (factor-1) times the original fee on every bump.
	BumpLinear BumpStrategy = "linear"
)

// Deploy configures the scheduler and the transaction manager.
type Deploy struct {
	// RequiredConfirmations is the number of blocks, counting the including
	// block, before a transaction is final. See Resolve.
	RequiredConfirmations int `yaml:"requiredConfirmations"`

	// ConcurrencyLimit bounds the futures executing at once.
	ConcurrencyLimit int `yaml:"concurrencyLimit"`

	// TransactionTimeoutBudget is how long a sent transaction may stay
	// unmined before its fee is bumped.
	TransactionTimeoutBudget time.Duration `yaml:"transactionTimeoutBudget"`

	GasBumpFactor float64      `yaml:"gasBumpFactor"`
	BumpStrategy  BumpStrategy `yaml:"bumpStrategy"`

	// MaxFeeBumps is the number of bumps before the transaction is given up.
	MaxFeeBumps int `yaml:"maxFeeBumps"`

	// MaxResends bounds resends of a dropped transaction.
	MaxResends int `yaml:"maxResends"`

	PollInterval time.Duration `yaml:"pollInterval"`

	// RPCRateLimit caps ledger requests per second. Zero disables the limit.
	RPCRateLimit float64 `yaml:"rpcRateLimit"`

	// MaxTransportRetries bounds retries of a transient transport failure.
	MaxTransportRetries int `yaml:"maxTransportRetries"`

	// RetryDelay is the first backoff delay; it doubles up to MaxRetryDelay.
	RetryDelay    time.Duration `yaml:"retryDelay"`
	MaxRetryDelay time.Duration `yaml:"maxRetryDelay"`
}

// Default returns the default configuration.
func Default() Deploy {
	return Deploy{
		RequiredConfirmations:    5,
		ConcurrencyLimit:         8,
		TransactionTimeoutBudget: 3 * time.Minute,
		GasBumpFactor:            1.125,
		BumpStrategy:             BumpExponential,
		MaxFeeBumps:              4,
		MaxResends:               3,
		PollInterval:             time.Second,
		RPCRateLimit:             20,
		MaxTransportRetries:      5,
		RetryDelay:               500 * time.Millisecond,
		MaxRetryDelay:            30 * time.Second,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Deploy, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from IGNITE_* variables. A nil lookup reads the
// process environment.
func (c *Deploy) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	ints := map[string]*int{
		"IGNITE_REQUIRED_CONFIRMATIONS": &c.RequiredConfirmations,
		"IGNITE_CONCURRENCY_LIMIT":      &c.ConcurrencyLimit,
		"IGNITE_MAX_FEE_BUMPS":          &c.MaxFeeBumps,
		"IGNITE_MAX_RESENDS":            &c.MaxResends,
		"IGNITE_MAX_TRANSPORT_RETRIES":  &c.MaxTransportRetries,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"IGNITE_TRANSACTION_TIMEOUT_BUDGET": &c.TransactionTimeoutBudget,
		"IGNITE_POLL_INTERVAL":              &c.PollInterval,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	floats := map[string]*float64{
		"IGNITE_GAS_BUMP_FACTOR": &c.GasBumpFactor,
		"IGNITE_RPC_RATE_LIMIT":  &c.RPCRateLimit,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup("IGNITE_BUMP_STRATEGY"); ok {
		c.BumpStrategy = BumpStrategy(v)
	}
	return nil
}

// Validate checks the configuration.
func (c Deploy) Validate() error {
	var errs []error
	if c.RequiredConfirmations < 1 {
		errs = append(errs, fmt.Errorf("requiredConfirmations must be >= 1, got %d", c.RequiredConfirmations))
	}
	if c.ConcurrencyLimit < 1 {
		errs = append(errs, fmt.Errorf("concurrencyLimit must be >= 1, got %d", c.ConcurrencyLimit))
	}
	if c.TransactionTimeoutBudget <= 0 {
		errs = append(errs, fmt.Errorf("transactionTimeoutBudget must be positive, got %s", c.TransactionTimeoutBudget))
	}
	if c.GasBumpFactor <= 1 {
		errs = append(errs, fmt.Errorf("gasBumpFactor must be > 1, got %g", c.GasBumpFactor))
	}
	if c.BumpStrategy != BumpExponential && c.BumpStrategy != BumpLinear {
		errs = append(errs, fmt.Errorf("bumpStrategy must be %q or %q, got %q", BumpExponential, BumpLinear, c.BumpStrategy))
	}
	if c.MaxFeeBumps < 0 || c.MaxResends < 0 || c.MaxTransportRetries < 0 {
		errs = append(errs, errors.New("maxFeeBumps, maxResends and maxTransportRetries must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive, got %s", c.PollInterval))
	}
	if c.RPCRateLimit < 0 {
		errs = append(errs, fmt.Errorf("rpcRateLimit must not be negative, got %g", c.RPCRateLimit))
	}
	if c.RetryDelay <= 0 || c.MaxRetryDelay < c.RetryDelay {
		errs = append(errs, fmt.Errorf("retryDelay must be positive and not above maxRetryDelay"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Resolve returns the configuration in effect on a network. Auto-mining
// networks finalize in one block, so one confirmation is required there
// whatever the configured value.
func (c Deploy) Resolve(autoMining bool) Deploy {
	if autoMining {
		c.RequiredConfirmations = 1
	}
	return c
}
