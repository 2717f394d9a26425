package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"billoffice/internal/artifact"
	"billoffice/internal/config"
	"billoffice/internal/render"
	"billoffice/internal/repository"
	"billoffice/internal/service/billingrun"
	"billoffice/internal/service/lifecycle"
	"billoffice/pkg/db"
	"billoffice/pkg/logger"
	"billoffice/pkg/mq"
	"billoffice/pkg/outbox"
	"billoffice/pkg/redisclient"
)

func main() {
	root := &cobra.Command{
		Use:   "billingjob",
		Short: "Milestone-driven batch invoice generator",
	}
	root.AddCommand(newRunCmd(), newDaemonCmd(), newReplayCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRunCmd executes one batch pass and prints the summary as JSON, which is
// what the monitoring side scrapes from the scheduler logs.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process today's due milestones once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			processor, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := processor.Run(cmd.Context())
			if err != nil {
				log.Error("Batch run failed", zap.Error(err))
				return err
			}

			out, err := json.Marshal(summary)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// newDaemonCmd runs the generator once a day at local midnight.
func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the generator daily at midnight",
		RunE: func(cmd *cobra.Command, args []string) error {
			processor, log, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit
				cancel()
			}()

			for {
				now := time.Now()
				nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
				delay := nextMidnight.Sub(now)
				log.Info("Next batch run scheduled",
					zap.Time("at", nextMidnight),
					zap.Duration("delay", delay),
				)

				select {
				case <-ctx.Done():
					log.Info("Batch daemon stopped")
					return nil
				case <-time.After(delay):
				}

				summary, err := processor.Run(ctx)
				if err != nil {
					log.Error("Batch run failed, will retry next day", zap.Error(err))
					continue
				}
				log.Info("Batch run finished",
					zap.Int("processed", summary.Processed),
					zap.Int("created", summary.Created),
					zap.Int("failed", summary.Failed),
				)
			}
		},
	}
}

// newReplayCmd republishes outbox events that the dispatcher parked as failed
// after exhausting its retries.
func newReplayCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay-outbox",
		Short: "Republish outbox events parked after exhausted retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.Load()

			log := logger.NewLogger()
			defer log.Sync()

			dbConn, err := db.NewConnection(cfg.DB, log)
			if err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			defer dbConn.Close()

			publisher, err := mq.NewPublisher(cfg.MQ.URL)
			if err != nil {
				return fmt.Errorf("init mq publisher: %w", err)
			}
			defer publisher.Close()

			replay := outbox.NewReplayService(outbox.NewRepository(dbConn), publisher, log)
			replayed, err := replay.ReplayFailedEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}

			fmt.Printf("replayed %d events\n", replayed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events to replay")
	return cmd
}

func setup() (*billingrun.Processor, *zap.Logger, func(), error) {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger()

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init db: %w", err)
	}

	rdb := redisclient.NewRedisClient(cfg.Redis)

	outboxRepo := outbox.NewRepository(dbConn)
	documentRepo := repository.NewDocumentRepository(dbConn, outboxRepo, log)
	clientRepo := repository.NewClientRepository(dbConn, log)
	categoryRepo := repository.NewCategoryRepository(dbConn, log)
	userRepo := repository.NewUserRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)

	artifactStore := artifact.NewRedisStore(rdb, log)
	coordinator := lifecycle.NewCoordinator(
		documentRepo,
		artifactStore,
		render.NewPDFRenderer(),
		userRepo,
		clientRepo,
		categoryRepo,
		log,
	)

	processor := billingrun.NewProcessor(
		milestoneRepo,
		clientRepo,
		categoryRepo,
		coordinator,
		log,
	)

	cleanup := func() {
		rdb.Close()
		dbConn.Close()
		log.Sync()
	}
	return processor, log, cleanup, nil
}
