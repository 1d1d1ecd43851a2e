package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/authwindow"
	"github.com/erp/connector/internal/application/connection"
	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/infrastructure/backendclient"
	"github.com/erp/connector/internal/infrastructure/browser"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/logger"
)

const cliSubject = "connect-cli"

// buildFacade wires a facade that opens consent windows in Chrome and calls
// the connector API of a running server
func buildFacade(cmd *cobra.Command, opts *globalOptions) (connectionFacade, func(), error) {
	tenantID, err := opts.tenantID()
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(&logger.Config{
		Level:  opts.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	release := func() { _ = log.Sync() }

	cfg, err := config.Load()
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if opts.server != "" {
		cfg.Client.BaseURL = opts.server
	}
	if opts.headless {
		cfg.Browser.Headless = true
	}

	var tokens backendclient.TokenSource
	if opts.token != "" {
		tokens = backendclient.StaticToken(opts.token)
	} else {
		tokens = backendclient.NewSignedTokenSource(auth.NewJWTService(cfg.JWT), tenantID, cliSubject)
	}
	client, err := backendclient.New(cfg.Client, tokens, backendclient.WithLogger(log))
	if err != nil {
		release()
		return nil, nil, &exitError{code: exitUsage, err: err}
	}

	windows, err := authwindow.NewController(
		browser.NewChromeOpener(cfg.Browser, log),
		authwindow.Config{
			RedirectURL:  cfg.Connector.RedirectURL,
			PollInterval: cfg.Window.PollInterval,
			Timeout:      cfg.Window.Timeout,
			Width:        cfg.Window.Width,
			Height:       cfg.Window.Height,
			ScreenWidth:  cfg.Window.ScreenWidth,
			ScreenHeight: cfg.Window.ScreenHeight,
		},
		authwindow.WithLogger(log),
	)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("consent window controller: %w", err)
	}

	log.Debug("Connector CLI ready",
		zap.String("server", cfg.Client.BaseURL),
		zap.String("tenant_id", tenantID.String()),
		zap.String("command", cmd.Name()),
	)
	facade := connection.NewFacade(client, windows,
		connection.WithCallTimeout(cfg.Client.Timeout),
		connection.WithLogger(log),
	)
	return facade, release, nil
}
