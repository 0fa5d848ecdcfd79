package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blasbase/blasbase/cmd/blasbasectl/cli"
	"github.com/blasbase/blasbase/jobs"
)

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "blasbasectl",
		Short:         "Operate a blasbase installation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&e.dsn, "dsn", e.dsn, "PostgreSQL URL (env PG_DSN)")
	flags.StringVar(&e.redis, "redis", e.redis, "Redis address (env REDIS_ADDR)")
	flags.StringVar(&e.timezone, "timezone", e.timezone, "zone used for today (env APP_TIMEZONE)")
	flags.BoolVar(&e.json, "json", false, "print JSON")

	root.AddCommand(
		newMigrateCmd(e),
		newSeedCmd(e),
		newPermissionsCmd(e),
		newPeopleCmd(e),
		newLedgerCmd(e),
		newJobsCmd(e),
	)
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := e.migrator()
				if err != nil {
					return err
				}
				defer func() { _ = m.Close() }()
				return m.Up()
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				m, err := e.migrator()
				if err != nil {
					return err
				}
				defer func() { _ = m.Close() }()
				return m.Down(steps)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := e.migrator()
				if err != nil {
					return err
				}
				defer func() { _ = m.Close() }()
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
				return nil
			},
		},
	)
	return cmd
}

func newSeedCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load fixtures",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "functions FILE",
		Short: "Create the role tree described by a YAML file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			svc, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.EnsureCatalogue(cmd.Context()); err != nil {
				return err
			}
			return status(cli.SeedCommand(cmd.Context(), svc.Functions, in, e.output(cmd)))
		},
	})
	return cmd
}

func newPermissionsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect the permission catalogue",
	}

	var (
		userID   int64
		personID int64
		asOf     string
	)
	resolve := &cobra.Command{
		Use:   "resolve",
		Short: "Print the effective permissions of an account or a person",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := cli.ParseAsOf(asOf)
			if err != nil {
				return err
			}
			svc, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			opts := cli.ResolveOptions{UserID: userID, PersonID: personID, AsOf: day}
			return status(cli.ResolveCommand(cmd.Context(), svc.Access, opts, e.output(cmd)))
		},
	}
	resolve.Flags().Int64Var(&userID, "user", 0, "account id")
	resolve.Flags().Int64Var(&personID, "person", 0, "person id")
	resolve.Flags().StringVar(&asOf, "as-of", "", "date for --person (YYYY-MM-DD, default today)")
	resolve.MarkFlagsMutuallyExclusive("user", "person")

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Register every permission the application checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			return svc.EnsureCatalogue(cmd.Context())
		},
	}

	cmd.AddCommand(resolve, sync)
	return cmd
}

func newPeopleCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "people",
		Short: "Query people",
	}
	var (
		asOf     string
		category string
	)
	classify := &cobra.Command{
		Use:   "classify",
		Short: "Partition people into members, active, oldies and others",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := cli.ParseAsOf(asOf)
			if err != nil {
				return err
			}
			svc, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			return status(cli.ClassifyCommand(cmd.Context(), svc.People, day, category, e.output(cmd)))
		},
	}
	classify.Flags().StringVar(&asOf, "as-of", "", "date (YYYY-MM-DD, default today)")
	classify.Flags().StringVar(&category, "category", "", "only print this category")
	cmd.AddCommand(classify)
	return cmd
}

func newLedgerCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the assignment ledger",
	}
	var asOf string
	audit := &cobra.Command{
		Use:   "audit",
		Short: "Report assignments that start after they end (exit 10 when any)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := cli.ParseAsOf(asOf)
			if err != nil {
				return err
			}
			svc, err := e.services(cmd.Context())
			if err != nil {
				return err
			}
			job := jobs.NewLedgerAuditJob(svc.Assignments, svc.People, e.logger, nil)
			return status(cli.AuditCommand(cmd.Context(), job, day, e.output(cmd)))
		},
	}
	audit.Flags().StringVar(&asOf, "as-of", "", "date (YYYY-MM-DD, default today)")
	cmd.AddCommand(audit)
	return cmd
}

func newJobsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}
	var asOf string
	trigger := &cobra.Command{
		Use:   "trigger NAME",
		Short: "Enqueue a job (ledger:audit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := cli.ParseAsOf(asOf)
			if err != nil {
				return err
			}
			jc, err := e.jobs()
			if err != nil {
				return err
			}
			defer func() { _ = jc.Close() }()
			info, err := jc.Trigger(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&asOf, "as-of", "", "date passed to the job (YYYY-MM-DD)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jc, err := e.jobs()
			if err != nil {
				return err
			}
			defer func() { _ = jc.Close() }()
			s, err := jc.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: pending %d, active %d, scheduled %d, retry %d, failed %d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Failed)
			return nil
		},
	}
	cmd.AddCommand(trigger, stats)
	return cmd
}
