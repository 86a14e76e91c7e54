package cli

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/spf13/cobra"

	fiberbridge "github.com/lborres/folio/adapters/fiber"
)

const shutdownTimeout = 5 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session and favorites over HTTP",
	Long: `serve exposes the session manager and the favorite reconciler as a JSON
bridge for a local UI. Every request shares one session.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			addr := serveAddr
			if addr == "" {
				addr = a.cfg.Bridge.Addr
			}
			return runServe(ctx, a, addr)
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides bridge.addr)")
	rootCmd.AddCommand(serveCmd)
}

func accessLogFormat() string {
	format := []string{
		"${time}",
		"${status}|${latency}",
		"${ip}",
		"${method}|${path}|${queryParams}",
		"${error}",
	}
	return strings.Join(format, "|") + "\n"
}

// newBridge builds the fiber app serving a.
func newBridge(a *app) (*fiber.App, error) {
	srv := fiber.New()
	srv.Use(fiberlogger.New(fiberlogger.Config{
		Format:     accessLogFormat(),
		TimeFormat: "2006/01/02 15:04:05",
		TimeZone:   "Local",
	}))

	bridge := fiberbridge.New(srv, fiberbridge.Options{
		BasePath:  a.cfg.Bridge.BasePath,
		Sessions:  a.folio.Sessions,
		Favorites: a.folio.Favorites,
		Books:     a.folio.Books(),
		Logger:    a.logger.With("component", "bridge"),
	})
	if err := bridge.RegisterRoutes(); err != nil {
		return nil, err
	}
	return srv, nil
}

func runServe(ctx context.Context, a *app, addr string) error {
	srv, err := newBridge(a)
	if err != nil {
		return err
	}

	events, unsubscribe := a.folio.Sessions.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			a.logger.Info("session changed", "state", ev.Status.State.String(), "source", string(ev.Source), "provisional", ev.Status.Provisional)
		}
	}()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	a.logger.Info("bridge listening", "addr", addr, "base_path", a.cfg.Bridge.BasePath)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	a.logger.Info("bridge stopped")
	return nil
}
