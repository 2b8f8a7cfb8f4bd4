package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/service/mcp"
	"github.com/m-mizutani/kioku/pkg/server"
	"github.com/m-mizutani/kioku/pkg/session"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

type serveConfig struct {
	addr           string
	publicURL      string
	cookieSecret   string
	cookieInsecure bool
	redisURL       string
	strictRestore  bool
	idleTimeout    time.Duration
}

func serveCommand() *cli.Command {
	var (
		cfg   config
		serve serveConfig
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("KIOKU_ADDR"),
			Destination: &serve.addr,
		},
		&cli.StringFlag{
			Name:        "public-url",
			Usage:       "Base URL shown to users for their MCP endpoint (derived from requests when empty)",
			Sources:     cli.EnvVars("KIOKU_PUBLIC_URL"),
			Destination: &serve.publicURL,
		},
		&cli.StringFlag{
			Name:        "cookie-secret",
			Usage:       "Secret signing the session cookie",
			Sources:     cli.EnvVars("AUTH_SECRET"),
			Destination: &serve.cookieSecret,
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "cookie-insecure",
			Usage:       "Drop the Secure attribute of the session cookie (plain HTTP development)",
			Sources:     cli.EnvVars("KIOKU_COOKIE_INSECURE"),
			Destination: &serve.cookieInsecure,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis URL recording issued identifiers (in-memory when empty)",
			Sources:     cli.EnvVars("KIOKU_REDIS_URL"),
			Destination: &serve.redisURL,
		},
		&cli.BoolFlag{
			Name:        "strict-restore",
			Usage:       "Only restore sessions of identifiers this service issued",
			Sources:     cli.EnvVars("KIOKU_STRICT_RESTORE"),
			Destination: &serve.strictRestore,
		},
		&cli.DurationFlag{
			Name:        "session-idle-timeout",
			Usage:       "Close MCP sessions without an attached stream after this duration (0 keeps them)",
			Value:       30 * time.Minute,
			Sources:     cli.EnvVars("KIOKU_SESSION_IDLE_TIMEOUT"),
			Destination: &serve.idleTimeout,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, backendFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the memory UI and the MCP endpoints",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			uc, closer, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer closer()

			sessionOpts := []session.Option{}
			if serve.cookieInsecure {
				sessionOpts = append(sessionOpts, session.WithInsecureCookie())
			}
			if serve.strictRestore {
				sessionOpts = append(sessionOpts, session.WithStrictRestore())
			}
			if serve.redisURL != "" {
				registry, err := session.NewRedisRegistry(ctx, serve.redisURL)
				if err != nil {
					return err
				}
				defer registry.Close()
				sessionOpts = append(sessionOpts, session.WithRegistry(registry))
			}

			sessions, err := session.NewStore([]byte(serve.cookieSecret), sessionOpts...)
			if err != nil {
				return err
			}

			bridge, err := mcp.NewBridge(uc)
			if err != nil {
				return err
			}
			router, err := mcp.NewRouter(bridge.NewServer, mcp.WithIdleTimeout(serve.idleTimeout))
			if err != nil {
				return err
			}
			defer router.Close()

			srv, err := server.New(uc, sessions,
				server.WithRouter(router),
				server.WithPublicURL(serve.publicURL),
			)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              serve.addr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.From(ctx).Info("server started", "addr", serve.addr, "backend", cfg.backend)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return goerr.Wrap(err, "server failed", goerr.V("addr", serve.addr))
				}
				return nil
			case <-ctx.Done():
			}

			logging.From(ctx).Info("shutting down")

			// streams never finish on their own; close units first so Shutdown can drain
			_ = router.Close()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server")
			}
			return nil
		},
	}
}
