package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage/postgres"
)

// defaultSchedule runs shortly after midnight so yesterday is complete
const defaultSchedule = "5 0 * * *"

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Write yesterday's snapshots on a cron schedule.",
	Long: `Run the snapshot job for the previous day every time --schedule fires,
until SIGINT or SIGTERM. The schedule is evaluated in --timezone.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loc, err := location()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cm, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cm.Close()

		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)

		if addr := viper.GetString("metrics-addr"); addr != "" {
			srv := serveMetrics(addr, registry)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		job, err := newSnapshotJob(cm)
		if err != nil {
			return err
		}
		scheduler, err := newScheduler(ctx, viper.GetString("schedule"), loc, job, metrics)
		if err != nil {
			return err
		}

		scheduler.Start()
		log.WithField("schedule", viper.GetString("schedule")).
			WithField("timezone", loc.String()).
			Info("unwind-aggregator scheduled")

		<-ctx.Done()
		log.Info("Shutting down gracefully...")

		// waits for a running job to return
		<-scheduler.Stop().Done()
		log.Info("Aggregator stopped")
		return nil
	},
}

// newScheduler registers the daily snapshot run on a cron in loc. Each run
// snapshots the day before the moment it fires.
func newScheduler(ctx context.Context, spec string, loc *time.Location, job snapshotRunner, metrics *observability.Metrics) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() {
		date, _ := resolveDate("", time.Now().In(loc))
		if _, err := runSnapshots(ctx, job, date, metrics); err != nil {
			log.WithError(err).Error("Scheduled snapshot run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return c, nil
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("Serving metrics")
	return srv
}

// newSnapshotJob builds the job over cm, scoring with --policy-file when set
func newSnapshotJob(cm *postgres.ConnectionManager) (*analytics.SnapshotJob, error) {
	policy := analytics.DefaultPolicy()
	if path := viper.GetString("policy-file"); path != "" {
		var err error
		if policy, err = analytics.LoadPolicyFile(path); err != nil {
			return nil, err
		}
	}
	return analytics.NewSnapshotJob(
		analytics.NewEngine(policy),
		postgres.NewSnapshotSource(cm),
		viper.GetInt("concurrency"),
		jobLogger(),
	), nil
}
