package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"homey-driverkit/internal/enrich"
	"homey-driverkit/internal/pipeline"
	"homey-driverkit/internal/report"
	"homey-driverkit/internal/store"
)

// cli carries the state shared by the commands of one invocation.
type cli struct {
	v       *viper.Viper
	cfgPath string
	cfg     *Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "driverkit",
		Short: "Maintain Homey Zigbee driver descriptors",
		Long: `driverkit completes the driver.compose.json files of a Homey Zigbee app
from a knowledge base of Tuya products, creates drivers for products that
have none, checks every descriptor and reports how complete the set is.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "config file (default ./driverkit.yaml when present)")
	pf.String("drivers", "", "drivers directory")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	c.v.BindPFlag("drivers_dir", pf.Lookup("drivers"))
	c.v.BindPFlag("log.level", pf.Lookup("log-level"))
	c.v.BindPFlag("log.format", pf.Lookup("log-format"))

	root.AddCommand(
		c.runCmd(),
		c.validateCmd(),
		c.lookupCmd(),
		c.extractCmd(),
		c.scaffoldCmd(),
		c.historyCmd(),
		c.statusCmd(),
		c.rulesCmd(),
		c.watchCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.v, c.cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.cfg = cfg
	c.logger = newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	c.logger.Debug("config loaded", "file", c.v.ConfigFileUsed(), "drivers", cfg.DriversDir)
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func (c *cli) runCmd() *cobra.Command {
	var (
		ro         runOptions
		reportPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enrich, synthesize and check all drivers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("report") {
				ro.reportPath = &reportPath
			}
			a, err := newApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			r, closeAll, err := a.runner(ro)
			if err != nil {
				return err
			}
			defer closeAll()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			rep, err := r.Run(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd, rep)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&ro.dryRun, "dry-run", false, "do not write anything")
	f.BoolVar(&ro.noSynthesize, "no-synthesize", false, "do not create missing drivers")
	f.BoolVar(&ro.noScaffold, "no-scaffold", false, "do not write device.js, driver.js and icons")
	f.StringVar(&reportPath, "report", "", "report file (overrides run.report_path, empty for none)")
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check all drivers without changing them and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			none := ""
			r, closeAll, err := a.runner(runOptions{
				dryRun:       true,
				noSynthesize: true,
				noScaffold:   true,
				noHistory:    true,
				reportPath:   &none,
			})
			if err != nil {
				return err
			}
			defer closeAll()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			rep, err := r.Run(ctx)
			if err != nil {
				return err
			}
			data, err := rep.Encode()
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write(data)
			if invalid := rep.Summary.TotalCount - rep.Summary.ValidCount; invalid > 0 || len(rep.Failures) > 0 {
				return fmt.Errorf("%d of %d drivers need enrichment, %d unreadable",
					invalid, rep.Summary.TotalCount, len(rep.Failures))
			}
			return nil
		},
	}
}

// lookupView is the printed form of a knowledge base entry.
type lookupView struct {
	ProductID        string   `yaml:"product_id"`
	Driver           string   `yaml:"driver"`
	Category         string   `yaml:"category"`
	Type             string   `yaml:"type"`
	Capabilities     []string `yaml:"capabilities"`
	Clusters         []string `yaml:"clusters"`
	ManufacturerName string   `yaml:"manufacturer_name"`
	ZigbeeProductID  string   `yaml:"zigbee_product_id"`
}

func (c *cli) lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup PRODUCT_ID",
		Short: "Show the knowledge base entry of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			e, ok := a.kb.Lookup(args[0])
			if !ok {
				return fmt.Errorf("product %q is not in the knowledge base", args[0])
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(lookupView{
				ProductID:        e.ProductID,
				Driver:           e.DriverID(),
				Category:         e.Category,
				Type:             string(e.DeviceType),
				Capabilities:     e.Capabilities,
				Clusters:         e.Clusters,
				ManufacturerName: e.ManufacturerID,
				ZigbeeProductID:  e.ZigbeeProductID,
			})
		},
	}
}

func (c *cli) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract NAME...",
		Short: "Print the product id found in driver names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range args {
				pid, ok := enrich.Extract(name)
				if !ok {
					pid = "-"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, pid)
			}
			return w.Flush()
		},
	}
}

func (c *cli) scaffoldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scaffold DRIVER...",
		Short: "Write missing device.js, driver.js and icons for existing drivers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			sc, err := a.scaffolder()
			if err != nil {
				return err
			}
			var errs []error
			for _, name := range args {
				rec, err := a.repo.Read(name)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				files, err := sc.Write(a.repo.Dir(name), sc.DriverFor(name, rec))
				for _, f := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", name, f)
				}
				if err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}
}

// openStore opens the run history for reading commands.
func (c *cli) openStore() (*store.BoltStore, error) {
	if c.cfg.Store.Path == "" {
		return nil, fmt.Errorf("run history is disabled (store.path is empty)")
	}
	db, err := store.NewBoltStore(c.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List stored runs newest first, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if len(args) == 1 {
				run, err := db.GetRun(args[0])
				if err != nil {
					return fmt.Errorf("run %s: %w", args[0], err)
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(runView(run))
			}

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tTOTAL\tVALID\tCOMPLETE\tAVG\tENRICHED\tSYNTHESIZED\tFAILED\tERRORS\tWARNINGS")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
					r.ID, r.Total, r.Valid, r.Complete, r.AverageScore,
					r.Enriched, r.Synthesized, r.Failed, r.Errors, r.Warnings)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show, 0 for all")
	return cmd
}

// runDetail is the printed form of one stored run.
type runDetail struct {
	ID           string `yaml:"id"`
	StartedAt    string `yaml:"started_at"`
	FinishedAt   string `yaml:"finished_at"`
	DriversDir   string `yaml:"drivers_dir"`
	Total        int    `yaml:"total"`
	Valid        int    `yaml:"valid"`
	Complete     int    `yaml:"complete"`
	AverageScore int    `yaml:"average_score"`
	Enriched     int    `yaml:"enriched"`
	Synthesized  int    `yaml:"synthesized"`
	Unchanged    int    `yaml:"unchanged"`
	Failed       int    `yaml:"failed"`
	Errors       int    `yaml:"errors"`
	Warnings     int    `yaml:"warnings"`
}

func runView(r *store.Run) runDetail {
	return runDetail{
		ID:           r.ID,
		StartedAt:    r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:   r.FinishedAt.UTC().Format(time.RFC3339),
		DriversDir:   r.DriversDir,
		Total:        r.Total,
		Valid:        r.Valid,
		Complete:     r.Complete,
		AverageScore: r.AverageScore,
		Enriched:     r.Enriched,
		Synthesized:  r.Synthesized,
		Unchanged:    r.Unchanged,
		Failed:       r.Failed,
		Errors:       r.Errors,
		Warnings:     r.Warnings,
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [DRIVER]",
		Short: "Show the state of drivers after the latest stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			var states []*store.DriverState
			if len(args) == 1 {
				st, err := db.GetDriverState(args[0])
				if err != nil {
					return fmt.Errorf("driver %s: %w", args[0], err)
				}
				states = append(states, st)
			} else if states, err = db.ListDriverStates(); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DRIVER\tOUTCOME\tSCORE\tVALID\tRUN")
			for _, st := range states {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", st.Driver, st.Outcome, st.Score, st.Valid, st.RunID)
			}
			return w.Flush()
		},
	}
}

func (c *cli) rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules [RULE_ID]",
		Short: "List the lint rules of rules.dir, or print one rule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := ruleManager(c.cfg, c.logger)
			if mgr == nil {
				return fmt.Errorf("lint rules are not supported by this build")
			}
			if len(args) == 1 {
				r, err := mgr.Get(args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), r.LuaCode)
				return nil
			}

			all, errs := mgr.List()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tENABLED\tNAME\tDESCRIPTION")
			for _, r := range all {
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", r.ID, r.Enabled(), r.Meta.Name, r.Meta.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run whenever the drivers directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			r, closeAll, err := a.runner(runOptions{})
			if err != nil {
				return err
			}
			defer closeAll()
			r.Events().On(pipeline.EventRunCompleted, func(ev pipeline.Event) {
				if rep, ok := ev.Data.(*report.Report); ok {
					printSummary(cmd, rep)
				}
			})

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			err = pipeline.NewWatcher(r, c.cfg.Watch.Debounce, c.logger).Watch(ctx)
			c.logger.Info("watch stopped")
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// The version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "driverkit %s\n", version)
		},
	}
}

func printSummary(cmd *cobra.Command, rep *report.Report) {
	out := cmd.OutOrStdout()
	s := rep.Summary
	fmt.Fprintf(out, "run %s: %d drivers, %d valid (%d%%), %d complete, average score %d\n",
		rep.RunID, s.TotalCount, s.ValidCount, s.ValidPercent, s.CompleteCount, s.AverageScore)
	fmt.Fprintf(out, "  enriched %d, synthesized %d, unchanged %d, valid %d, failed %d\n",
		rep.Counts.Enriched, rep.Counts.Synthesized, rep.Counts.Unchanged, rep.Counts.Valid, rep.Counts.Failed)
	if d := rep.Delta; d != nil {
		fmt.Fprintf(out, "  since %s: valid %+d, complete %+d, average score %+d\n",
			d.PreviousRunID, d.ValidCount, d.CompleteCount, d.AverageScore)
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(out, "  %s %s: %s\n", f.Kind, f.Driver, f.Error)
	}
	if n := rep.FindingCount(report.SeverityError); n > 0 {
		fmt.Fprintf(out, "  %d error findings, %d warnings\n", n, rep.FindingCount(report.SeverityWarning))
	}
	if rep.DryRun {
		fmt.Fprintln(out, "  dry run: nothing was written")
	}
}
