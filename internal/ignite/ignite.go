// Package ignite exposes the two operations of the engine: Deploy, which
// validates a module and runs it against a ledger, and Wipe, which resets a
// recorded future and its dependents.
package ignite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/config"
	"github.com/roach88/ignite/internal/deployer"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/store"
	"github.com/roach88/ignite/internal/validate"
	"github.com/roach88/ignite/internal/wiper"
)

// Params configures a deployment.
type Params struct {
	Module *module.Module

	// Parameters holds module parameter values keyed by module id.
	Parameters map[string]ir.Object

	Accounts      []string
	DefaultSender string

	// Config is used as given; callers start from config.Default().
	Config config.Deploy

	Client   ledger.Client
	Resolver artifact.Resolver

	// Validator defaults to validate.Static.
	Validator validate.Validator

	// Listener is optional.
	Listener deployer.Listener

	// DeploymentDir holds the durable journal. Empty runs the deployment
	// in memory only.
	DeploymentDir string

	Logger *slog.Logger

	// RunIDs defaults to UUIDv7 run ids.
	RunIDs deployer.RunIDGenerator
}

// Deploy validates p.Module and deploys it. A module that fails validation
// yields a validation-failure result and nothing is recorded.
func Deploy(ctx context.Context, p Params) (*deployer.Result, error) {
	if p.Module == nil {
		return nil, errors.New("deploy: no module")
	}
	if p.Client == nil || p.Resolver == nil {
		return nil, errors.New("deploy: ledger client and artifact resolver are required")
	}
	validator := p.Validator
	if validator == nil {
		validator = validate.Static{}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := validate.Parameters(p.Module, p.Parameters); err != nil {
		return rejected(err)
	}
	v, err := validator.Validate(ctx, p.Module, p.Resolver)
	if err != nil {
		return rejected(err)
	}

	loader, err := store.Open(p.DeploymentDir)
	if err != nil {
		return nil, fmt.Errorf("open deployment: %w", err)
	}
	defer loader.Close()

	opts := []deployer.Option{deployer.WithLogger(logger)}
	if p.Listener != nil {
		opts = append(opts, deployer.WithListener(p.Listener))
	}
	if p.RunIDs != nil {
		opts = append(opts, deployer.WithRunIDGenerator(p.RunIDs))
	}
	d := deployer.New(loader, p.Client, p.Config, opts...)
	return d.Deploy(ctx, v, deployer.Params{
		Parameters:    p.Parameters,
		Accounts:      p.Accounts,
		DefaultSender: p.DefaultSender,
	})
}

// rejected turns a validation error into a validation-failure result and
// passes any other error through.
func rejected(err error) (*deployer.Result, error) {
	var ve *validate.ValidationError
	if !errors.As(err, &ve) {
		return nil, err
	}
	msgs := make([]string, len(ve.Problems))
	for i, p := range ve.Problems {
		msgs[i] = p.String()
	}
	return deployer.ValidationFailure("", msgs), nil
}

// ErrNoDeployment is returned by Wipe for a directory without a journal.
var ErrNoDeployment = errors.New("no deployment journal")

// Wipe resets futureID and every future depending on it in the deployment
// at deploymentDir. It returns the reset future ids. The directory is never
// created.
func Wipe(ctx context.Context, deploymentDir, futureID string) ([]string, error) {
	if deploymentDir == "" {
		return nil, errors.New("wipe: a deployment directory is required")
	}
	if !store.Exists(deploymentDir) {
		return nil, fmt.Errorf("wipe: %w in %s", ErrNoDeployment, deploymentDir)
	}
	loader, err := store.OpenDurable(deploymentDir)
	if err != nil {
		return nil, fmt.Errorf("open deployment: %w", err)
	}
	defer loader.Close()
	return wiper.New(loader).Wipe(ctx, futureID)
}
