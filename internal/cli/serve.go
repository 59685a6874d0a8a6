package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/broadcast"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/store"
	"github.com/nhle/taskboard/internal/sweep"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(ctxOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.withStore(func(s *store.SQLiteStore) error {
				return a.serve(ctx, s)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func (a *app) serve(ctx context.Context, s *store.SQLiteStore) error {
	var pub broadcast.Publisher = broadcast.Nop{}
	if a.cfg.Redis.Enabled {
		rc := redis.NewClient(&redis.Options{Addr: a.cfg.Redis.Addr})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		pub = broadcast.NewRedisPublisher(rc, a.cfg.Redis.Channel)
		a.logger.WithFields(log.Fields{
			"addr":    a.cfg.Redis.Addr,
			"channel": a.cfg.Redis.Channel,
		}).Info("publishing reorder events")
	}

	coord := a.coordinator(s)
	sw := sweep.New(s, coord, a.cfg.Ranking.SweepInterval, a.cfg.Ranking.SweepLength, a.logger)
	sw.OnRebalance = func(ctx context.Context, col model.ColumnKey, updated []model.Task) {
		if err := pub.PublishRebalance(ctx, col, updated); err != nil {
			a.logger.WithError(err).WithField("column", col.String()).Warn("publishing rebalance event failed")
		}
	}
	sw.Start()
	defer sw.Stop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	api.Register(e, s, coord, pub, a.logger)

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", a.cfg.Server.Addr).Info("listening")
		if err := e.Start(a.cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
