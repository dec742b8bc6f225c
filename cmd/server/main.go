package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"clinic-scheduler/internal/app"
	"clinic-scheduler/internal/availability"
	"clinic-scheduler/internal/cache"
	"clinic-scheduler/internal/config"
	"clinic-scheduler/internal/events"
	"clinic-scheduler/internal/logger"
	"clinic-scheduler/internal/server"
	"clinic-scheduler/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "scheduler",
		Short:        "Clinic availability and appointment slot service",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), seedCmd(), slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply the schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			env.log.Info("schema applied", zap.String("driver", env.cfg.StorageDriver))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Reset the database and load demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := env.store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			sum, err := store.Seed(ctx, env.store, env.clock.Now())
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			env.log.Info("demo data seeded",
				zap.Int("specializations", sum.Specializations),
				zap.Int("providers", sum.Providers),
				zap.Int("windows", sum.Windows),
				zap.Int("bookings", sum.Bookings),
			)
			return nil
		},
	}
}

func slotsCmd() *cobra.Command {
	var (
		specializationID, providerID int
		from, to                     string
		duration, maxResults         int
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print free slots as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			q := availability.Query{
				SpecializationID:    specializationID,
				SlotDurationMinutes: duration,
				MaxResults:          maxResults,
			}
			if providerID != 0 {
				q.ProviderID = &providerID
			}
			if from != "" {
				d, err := availability.ParseDate(from, env.loc)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				q.DateFrom = &d
			}
			if to != "" {
				d, err := availability.ParseDate(to, env.loc)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				q.DateTo = &d
			}
			if err := q.Validate(); err != nil {
				return err
			}

			slots, err := availability.NewEngine(env.store, env.clock, env.log).FindSlots(ctx, q)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(slots)
		},
	}
	cmd.Flags().IntVar(&specializationID, "specialization", 0, "Specialization id (required)")
	cmd.Flags().IntVar(&providerID, "provider", 0, "Restrict to one provider")
	cmd.Flags().StringVar(&from, "from", "", "First date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last date, YYYY-MM-DD")
	cmd.Flags().IntVar(&duration, "duration", availability.DefaultSlotDurationMinutes, "Slot length in minutes")
	cmd.Flags().IntVar(&maxResults, "max", availability.DefaultMaxResults, "Maximum number of slots")
	_ = cmd.MarkFlagRequired("specialization")
	return cmd
}

func runServer(ctx context.Context, migrate bool) error {
	env, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, log := env.cfg, env.log

	if migrate {
		if err := env.store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	source := store.NewBreakerSource(env.store, store.BreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		Timeout:          cfg.BreakerTimeout,
	}, log)
	engine := availability.NewEngine(source, env.clock, log)

	a := app.New(env.store, engine, log)
	a.Clock = env.clock
	a.Location = env.loc
	a.AllowSeed = cfg.IsDev()
	a.Calendar = app.NewCalendarConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)

	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("slot cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			sc := cache.New(client, engine, env.clock, cfg.CacheTTL, log)
			a.Finder = sc
			a.Cache = sc
			log.Info("slot cache enabled", zap.Duration("ttl", cfg.CacheTTL))
		}
	}

	if cfg.AMQPURL != "" {
		pub, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Warn("booking events disabled", zap.Error(err))
		} else {
			defer pub.Close()
			a.Events = pub
			log.Info("booking events enabled", zap.String("exchange", cfg.AMQPExchange))
		}
	}

	router := server.NewRouter(a, cfg, log)
	return server.Run(ctx, router, cfg.Port, log)
}

type deps struct {
	cfg   *config.Config
	log   *zap.Logger
	loc   *time.Location
	clock availability.Clock
	store store.Store
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.StorageDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		Location:    loc,
	})
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	return &deps{
		cfg:   cfg,
		log:   log,
		loc:   loc,
		clock: availability.SystemClock{Location: loc},
		store: st,
	}, nil
}

func (r *deps) Close() {
	r.store.Close()
	_ = r.log.Sync()
}
