package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/bher20/kwhmedio/internal/alerting"
	"github.com/bher20/kwhmedio/internal/aneel"
	"github.com/bher20/kwhmedio/internal/api"
	"github.com/bher20/kwhmedio/internal/auth"
	"github.com/bher20/kwhmedio/internal/cache"
	"github.com/bher20/kwhmedio/internal/config"
	"github.com/bher20/kwhmedio/internal/cron"
	"github.com/bher20/kwhmedio/internal/log"
	"github.com/bher20/kwhmedio/internal/migrate"
	"github.com/bher20/kwhmedio/internal/notification"
	"github.com/bher20/kwhmedio/internal/rates"
	"github.com/bher20/kwhmedio/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Default().Error("kwhmedio failed", "error", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.FromEnv()

	root := &cobra.Command{
		Use:           "kwhmedio",
		Short:         "Billing-period weighted average electricity tariffs from ANEEL open data",
		Version:       aneel.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetDefaultLogLevel(log.ParseLevel(cfg.LogLevel))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	pf.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "ANEEL CKAN action endpoint")
	pf.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "timeout for each upstream page request, 0 for none")
	pf.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "records per upstream page")
	pf.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "snapshot store: memory, sqlite, postgres, postgrespool or redis")
	pf.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "snapshot store connection string")
	pf.BoolVar(&cfg.AutoMigrate, "auto-migrate", cfg.AutoMigrate, "apply SQL migrations before opening the store")

	root.AddCommand(
		newServeCmd(&cfg),
		newCalcCmd(&cfg),
		newWarmCmd(&cfg),
		newMigrateCmd(&cfg),
		newTokenCmd(),
	)

	return root
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.AutoMigrate && migrate.Supported(cfg.DBDriver) {
		if err := migrate.Up(ctx, cfg.DBDriver, cfg.DBDSN); err != nil {
			return nil, fmt.Errorf("auto-migration: %w", err)
		}
	}
	return storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
}

// newClient builds the upstream client. Serving clients fall back to the
// snapshot store; warm-up clients only write to it.
func newClient(cfg *config.Config, st storage.Storage, writeOnly bool) *aneel.Client {
	var (
		flags   cache.Cache[[]aneel.FlagActivation] = cache.NewSnapshots[[]aneel.FlagActivation](st)
		tariffs cache.Cache[[]aneel.TariffRecord]   = cache.NewSnapshots[[]aneel.TariffRecord](st)
	)
	if writeOnly {
		flags = cache.WriteOnly(flags)
		tariffs = cache.WriteOnly(tariffs)
	}
	return aneel.NewClient(
		aneel.WithBaseURL(cfg.APIBaseURL),
		aneel.WithPageSize(cfg.PageSize),
		aneel.WithTimeout(cfg.HTTPTimeout),
		aneel.WithFlagCache(flags),
		aneel.WithTariffCache(tariffs),
	)
}

func newAlerter() *alerting.Alerter {
	a := alerting.NewAlerter(alerting.DefaultAlertConfig())
	if mc := notification.ConfigFromEnv(); mc.Enabled() {
		a.WithMailer(notification.NewService(mc))
	}
	return a
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	var warm bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := log.Ctx(ctx)

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			tokens, err := auth.ParseTokens(cfg.APITokens)
			if err != nil {
				return fmt.Errorf("KWHMEDIO_API_TOKENS: %w", err)
			}
			authSvc, err := auth.NewService(tokens)
			if err != nil {
				return err
			}

			svc := rates.NewService(newClient(cfg, st, false))
			w := cron.NewWarmer(newClient(cfg, st, true), st, newAlerter())
			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           api.NewMux(svc, st, api.WithAdmin(authSvc, w, cfg.WarmSchedule)),
				ReadHeaderTimeout: 10 * time.Second,
			}
			if authSvc.Enabled() {
				logger.Info("admin endpoints enabled", "tokens", len(tokens))
			}

			if warm {
				go func() {
					if err := w.Run(ctx, cfg.WarmSchedule); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("cache warm-up worker stopped", "error", err)
					}
				}()
			}

			errc := make(chan error, 1)
			go func() {
				logger.Info("kwhmedio listening", "addr", srv.Addr, "version", aneel.Version())
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	cmd.Flags().BoolVar(&warm, "warm", false, "also run the cache warm-up worker in this process")
	cmd.Flags().StringVar(&cfg.WarmSchedule, "schedule", cfg.WarmSchedule, "warm-up schedule, integer seconds or a cron expression")
	return cmd
}

func newCalcCmd(cfg *config.Config) *cobra.Command {
	var (
		req    api.CalcRequest
		icms   string
		pis    string
		cofins string
	)
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate the weighted average tariff for one billing window and print it as JSON",
		Example: `  kwhmedio calc --start 2024-06-12 --end 2024-07-12 --cnpj 04368898000106 \
    --subgroup B1 --modality Convencional --subclass Residencial --icms 0.19 --pis 0.0098 --cofins 0.04614`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			for _, t := range []struct {
				raw string
				dst *decimal.Decimal
			}{{icms, &req.ICMS}, {pis, &req.PIS}, {cofins, &req.COFINS}} {
				if t.raw == "" {
					continue
				}
				v, err := decimal.NewFromString(t.raw)
				if err != nil {
					return fmt.Errorf("invalid tax fraction %q: %w", t.raw, err)
				}
				*t.dst = v
			}
			params, err := req.Params()
			if err != nil {
				return err
			}

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := rates.NewService(newClient(cfg, st, false)).Calculate(ctx, params)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Start, "start", "", "previous reading date, YYYY-MM-DD")
	f.StringVar(&req.End, "end", "", "current reading date, YYYY-MM-DD")
	f.StringVar(&req.CNPJ, "cnpj", "", "distributor tax id")
	f.StringVar(&req.Agent, "agent", "", "distributor agent alias, takes precedence over --cnpj")
	f.StringVar(&req.Distributor, "distributor", "", "registry key of a known distributor")
	f.StringVar(&req.SubGroup, "subgroup", aneel.SubGroupB1, "tariff sub-group")
	f.StringVar(&req.Modality, "modality", aneel.ModalityConventional, "tariff modality")
	f.StringVar(&req.SubClass, "subclass", "", "tariff sub-class")
	f.StringVar(&icms, "icms", "", "ICMS as a fraction, e.g. 0.19")
	f.StringVar(&pis, "pis", "", "PIS as a fraction")
	f.StringVar(&cofins, "cofins", "", "COFINS as a fraction")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newWarmCmd(cfg *config.Config) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Refresh the snapshot cache from the ANEEL portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			w := cron.NewWarmer(newClient(cfg, st, true), st, newAlerter())
			if once {
				report, err := w.RunOnce(ctx)
				if report.Skipped {
					log.Ctx(ctx).Info("warm-up skipped, another worker holds the lock")
				}
				return err
			}
			return w.Run(ctx, cfg.WarmSchedule)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single warm-up and exit")
	cmd.Flags().StringVar(&cfg.WarmSchedule, "schedule", cfg.WarmSchedule, "integer seconds or a cron expression")
	return cmd
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL schema of the snapshot store",
	}
	for _, sub := range []struct {
		use   string
		short string
		fn    func(ctx context.Context, driver, dsn string) error
	}{
		{"up", "Apply all pending migrations", migrate.Up},
		{"down", "Roll back the latest migration", migrate.Down},
		{"status", "Print migration status", migrate.Status},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if !migrate.Supported(cfg.DBDriver) {
					return fmt.Errorf("driver %q has no SQL migrations", cfg.DBDriver)
				}
				return sub.fn(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		})
	}
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin API tokens",
	}

	var (
		name    string
		role    string
		expires string
	)
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a token and the KWHMEDIO_API_TOKENS entry for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := auth.ParseExpiration(expires, time.Now())
			if err != nil {
				return err
			}
			tok, raw, err := auth.NewToken(name, role, exp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n", raw)
			fmt.Fprintf(out, "entry: %s\n", tok.Entry())
			return nil
		},
	}
	newCmd.Flags().StringVar(&name, "name", "", "token name, shown in logs")
	newCmd.Flags().StringVar(&role, "role", auth.RoleOperator, "admin, operator or viewer")
	newCmd.Flags().StringVar(&expires, "expires", "never", "never, 30d, 2w, 24h or a YYYY-MM-DD date")
	newCmd.MarkFlagRequired("name")

	cmd.AddCommand(newCmd)
	return cmd
}
