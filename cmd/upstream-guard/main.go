package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// CLI is the command line of upstream-guard
type CLI struct {
	Config string `help:"Path to the YAML configuration file. Defaults apply when empty." env:"UPSTREAM_GUARD_CONFIG" type:"path"`
	Dev    bool   `help:"Human readable debug logging." env:"UPSTREAM_GUARD_DEV"`

	Serve ServeCmd `cmd:"" default:"1" help:"Run the HTTP API."`
	Token TokenCmd `cmd:"" help:"Issue a session token for local testing."`
}

type ServeCmd struct{}

// Run starts the server and blocks until SIGINT or SIGTERM
func (c *ServeCmd) Run(cli *CLI) error {
	root, err := NewCompositionRoot(cli.Config, cli.Dev)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Ensure cleanup on exit
	defer func() {
		if err := root.Cleanup(); err != nil {
			root.Logger.Error("Failed to cleanup resources", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := root.HTTPServer.Start(root.Config.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		root.Logger.Error("HTTP server failed", zap.Error(err))
		return err
	}

	root.Logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), root.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := root.HTTPServer.Stop(ctx); err != nil {
		root.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	root.Logger.Info("Server exited")
	return nil
}

type TokenCmd struct {
	User string `help:"User id to put in the token subject." required:""`
}

// Run prints a signed token for the user
func (c *TokenCmd) Run(cli *CLI) error {
	logger := zap.NewNop()
	cfg, err := loadConfig(cli.Config, logger)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	token, expiresAt, err := verifier.Generate(c.User)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

// loadEnvFiles loads .env.local then .env; values already in the environment win
func loadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func main() {
	if err := loadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("upstream-guard"),
		kong.Description("Caching, rate limiting and usage quotas in front of expensive upstream APIs"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
