package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/harvestagent/internal/api"
	"github.com/soyeahso/harvestagent/internal/scheduler"
)

func newAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Manage the agent HTTP API",
	}

	cmd.AddCommand(newAPIRunCmd())
	return cmd
}

func newAPIRunCmd() *cobra.Command {
	var (
		port        int
		bind        string
		restart     bool
		noScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the HTTP API (and the scheduler, if enabled)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if restart {
				go autorestart.RestartOnChange()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if port != 0 {
				a.cfg.API.Port = port
			}
			if bind != "" {
				a.cfg.API.Bind = bind
			}

			srv := api.New(api.Options{
				Addr:  a.cfg.API.Addr(),
				Token: a.cfg.API.Token,
			}, a.agent, a.db, a.hooks, a.log)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Start(gctx); err != nil {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			})
			if a.cfg.Scheduler.Enabled && !noScheduler {
				sched := scheduler.New(a.agent, a.cfg.Scheduler.Interval, a.log)
				g.Go(func() error {
					if err := sched.Start(gctx); err != nil && gctx.Err() == nil {
						return err
					}
					return nil
				})
			} else {
				a.log.Info().Msg("scheduler disabled; harvesters run only when invoked")
			}
			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override API port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind address")
	cmd.Flags().BoolVar(&restart, "autorestart", false, "restart when the executable changes")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not start the scheduler even if enabled")

	return cmd
}
