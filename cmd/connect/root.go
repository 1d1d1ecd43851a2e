package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/interfaces/http/dto"
)

// connectionFacade is the part of connection.Facade the commands drive
type connectionFacade interface {
	Authenticate(ctx context.Context, mp integration.Marketplace, credentials map[string]string, channelID string) (*connector.Result, error)
	RefreshToken(ctx context.Context, mp integration.Marketplace) (*connector.Result, error)
	ValidateCredentials(ctx context.Context, mp integration.Marketplace) (*connector.Result, error)
	Disconnect(ctx context.Context, mp integration.Marketplace, channelID string) (*connector.Result, error)
	GetConnectionStatus(ctx context.Context, mp integration.Marketplace) (*connector.Result, error)
}

type globalOptions struct {
	tenant   string
	token    string
	server   string
	logLevel string
	headless bool
}

func (o *globalOptions) tenantID() (uuid.UUID, error) {
	id, err := uuid.Parse(o.tenant)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, &exitError{code: exitUsage, err: fmt.Errorf("--tenant must be a tenant UUID")}
	}
	return id, nil
}

// facadeBuilder assembles the facade for one invocation; release frees what it opened
type facadeBuilder func(cmd *cobra.Command, opts *globalOptions) (facade connectionFacade, release func(), err error)

func newRootCmd(build facadeBuilder) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "connect",
		Short:         "Connect a tenant to a marketplace and manage the connection.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.tenant, "tenant", "", "Tenant UUID the connection belongs to (required)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "Bearer token for the connector API; signed from the JWT secret when empty")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "Connector API base URL (default from client.base_url)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.headless, "headless", false, "Run the consent browser headless")

	var (
		credentials map[string]string
		channelID   string
	)
	authenticateCmd := &cobra.Command{
		Use:   "authenticate <marketplace>",
		Short: "Connect a marketplace through OAuth consent or API key credentials.",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(build, opts, func(ctx context.Context, f connectionFacade, mp integration.Marketplace) (*connector.Result, error) {
			return f.Authenticate(ctx, mp, credentials, channelID)
		}),
	}
	authenticateCmd.Flags().StringToStringVar(&credentials, "credential", nil, "API key field as key=value; repeatable")
	authenticateCmd.Flags().StringVar(&channelID, "channel", "", "Sales channel the integration belongs to")

	disconnectCmd := &cobra.Command{
		Use:   "disconnect <marketplace>",
		Short: "Revoke and wipe the stored credentials.",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(build, opts, func(ctx context.Context, f connectionFacade, mp integration.Marketplace) (*connector.Result, error) {
			return f.Disconnect(ctx, mp, channelID)
		}),
	}
	disconnectCmd.Flags().StringVar(&channelID, "channel", "", "Sales channel the integration belongs to")

	refreshCmd := &cobra.Command{
		Use:   "refresh <marketplace>",
		Short: "Refresh the access token now.",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(build, opts, func(ctx context.Context, f connectionFacade, mp integration.Marketplace) (*connector.Result, error) {
			return f.RefreshToken(ctx, mp)
		}),
	}
	validateCmd := &cobra.Command{
		Use:   "validate <marketplace>",
		Short: "Check that the stored credentials still work.",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(build, opts, func(ctx context.Context, f connectionFacade, mp integration.Marketplace) (*connector.Result, error) {
			return f.ValidateCredentials(ctx, mp)
		}),
	}
	statusCmd := &cobra.Command{
		Use:   "status <marketplace>",
		Short: "Show the connection status.",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(build, opts, func(ctx context.Context, f connectionFacade, mp integration.Marketplace) (*connector.Result, error) {
			return f.GetConnectionStatus(ctx, mp)
		}),
	}

	root.AddCommand(authenticateCmd, refreshCmd, validateCmd, disconnectCmd, statusCmd)
	return root
}

type operation func(ctx context.Context, f connectionFacade, mp integration.Marketplace) (*connector.Result, error)

// runWith parses the marketplace, builds the facade and prints the result
// as JSON on stdout or the failure as JSON on stderr
func runWith(build facadeBuilder, opts *globalOptions, op operation) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		mp, err := integration.ParseMarketplace(args[0])
		if err != nil {
			return &exitError{code: exitUsage, err: fmt.Errorf("unknown marketplace %q", args[0])}
		}
		if _, err := opts.tenantID(); err != nil {
			return err
		}

		facade, release, err := build(cmd, opts)
		if err != nil {
			return err
		}
		defer release()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result, err := op(ctx, facade, mp)
		if err != nil {
			ce := integration.Classify(mp, err)
			_, failure := dto.NewConnectorFailure(ce)
			if encErr := writeJSON(cmd.ErrOrStderr(), failure); encErr != nil {
				return encErr
			}
			return &exitError{code: exitCodeForKind(ce.Kind), err: ce, silent: true}
		}
		return writeJSON(cmd.OutOrStdout(), result)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
