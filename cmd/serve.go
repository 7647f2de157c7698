package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/api"
	"github.com/JakeFAU/legisnotice/internal/schedule"
)

// newServeCmd creates the 'serve' subcommand running the REST API and,
// when enabled, the in-process refresh and sweep schedule.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the notice API",
		Args:  cobra.NoArgs,
		RunE:  runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	ctx := cmd.Context()
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	if cfg.Schedule.Enabled {
		sched, err := schedule.New(schedule.Config{
			RefreshSpec: cfg.Schedule.RefreshCron,
			SweepSpec:   cfg.Schedule.SweepCron,
			Retention:   cfg.RetentionWindow(),
			Location:    cfg.Location(),
		}, appInstance.GetPipeline(), logger)
		if err != nil {
			return fmt.Errorf("init schedule: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	apiServer := api.NewServer(appInstance.GetPipeline(), appInstance.GetClock(), cfg, logger)
	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
