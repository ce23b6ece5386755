package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stanstork/linkdoc-import/internal/authz"
	"github.com/stanstork/linkdoc-import/internal/config"
	"github.com/stanstork/linkdoc-import/internal/migration"
	"github.com/stanstork/linkdoc-import/internal/models"
	"github.com/stanstork/linkdoc-import/internal/utils"
	"github.com/stanstork/linkdoc-import/internal/worker"
)

func newRunOnceCmd() *cobra.Command {
	var (
		jobID int64
		drain bool
	)

	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Process the oldest pending import job and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			runner, err := app.newRunner()
			if err != nil {
				return err
			}

			if drain {
				w := worker.NewWorker(worker.WorkerConfig{
					ID:        app.workerID,
					BatchSize: app.config.Worker.BatchSize,
				}, runner, app.logger)
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d job(s)\n", w.Drain(ctx))
				return nil
			}

			var outcome worker.Outcome
			if jobID > 0 {
				outcome, err = runner.RunJob(ctx, app.workerID, jobID)
			} else {
				outcome, err = runner.RunOnce(ctx, app.workerID)
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome.String())
			return err
		},
	}
	cmd.Flags().Int64Var(&jobID, "job", 0, "process this job id instead of the oldest pending one")
	cmd.Flags().BoolVar(&drain, "drain", false, "keep processing up to worker.batch_size jobs")
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var (
		job      models.NewImportJob
		fileType string
		id       string
	)

	cmd := &cobra.Command{
		Use:   "enqueue --file PATH --workspace ID --object-type ID",
		Short: "Submit an exported CSV file to the import queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" {
				parsed, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
				job.ImportIdentifier = parsed
			}
			switch fileType {
			case "gmail":
				job.FileType = models.FileTypeGmailMetadata
			case "drive-links":
				job.FileType = models.FileTypeDriveLinks
			default:
				job.FileType = models.FileType(fileType)
			}

			ctx := cmd.Context()
			app, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			jobID, err := app.queue.Enqueue(ctx, job)
			if err != nil {
				return err
			}
			stored, err := app.queue.Get(ctx, jobID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued job %d (%s)\n", stored.ID, stored.ImportIdentifier)
			return nil
		},
	}
	cmd.Flags().StringVar(&job.FilePath, "file", "", "path of the exported CSV file")
	cmd.Flags().Int64Var(&job.WorkspaceID, "workspace", 0, "target workspace id")
	cmd.Flags().Int64Var(&job.TargetObjectTypeID, "object-type", 0, "target object type id")
	cmd.Flags().Int64Var(&job.SourceRecordID, "source-record", 0, "id of the record that triggered the import")
	cmd.Flags().Int64Var(&job.CustodianID, "custodian", 0, "custodian id")
	cmd.Flags().StringVar(&fileType, "type", "gmail", `file type: "gmail", "drive-links" or a raw file type label`)
	cmd.Flags().StringVar(&id, "id", "", "import identifier (generated when empty)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			v, err := migration.Version(ctx, app.db, app.config.Database.Driver)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var (
		output string
		jobID  int64
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue counts, recent jobs or one job's status log",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			out := cmd.OutOrStdout()

			if jobID > 0 {
				job, err := app.queue.Get(ctx, jobID)
				if err != nil {
					return err
				}
				events, err := app.queue.Events(ctx, jobID)
				if err != nil {
					return err
				}
				var rows [][]string
				for _, e := range events {
					rows = append(rows, []string{e.CreatedAt.Local().Format(time.RFC3339), e.Message})
				}
				if format == outputTable {
					fmt.Fprintf(out, "Job %d (%s): %s\n\n", job.ID, job.ImportIdentifier, job.Status())
				}
				return printOutput(out, format, map[string]interface{}{"job": job, "status": job.Status(), "events": events},
					[]string{"Time", "Message"}, rows)
			}

			stats, err := app.queue.Stats(ctx)
			if err != nil {
				return err
			}
			jobs, err := app.queue.List(ctx, limit, 0)
			if err != nil {
				return err
			}
			if format == outputTable {
				fmt.Fprintf(out, "Pending:      %d\n", stats.Pending)
				fmt.Fprintf(out, "In progress:  %d\n", stats.InProgress)
				fmt.Fprintf(out, "Completed:    %d\n\n", stats.Completed)
			}
			return printOutput(out, format, map[string]interface{}{"stats": stats, "jobs": jobs}, jobHeaders, jobRows(jobs))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().Int64Var(&jobID, "job", 0, "show the status log of one job")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent jobs to list")
	return cmd
}

func newStaleCmd() *cobra.Command {
	var (
		output    string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List jobs claimed long ago that never completed",
		Long: `List jobs whose claim is older than --older-than and that have no completion
time. Such jobs belong to a worker that stopped mid-run; they are reported only and
must be re-submitted by an operator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			jobs, err := app.queue.ListStale(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), format, jobs, jobHeaders, jobRows(jobs))
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().DurationVar(&olderThan, "older-than", 2*time.Hour, "minimum claim age")
	return cmd
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage encrypted configuration values",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt VALUE",
		Short: "Encrypt a value for use in config.yaml (needs " + utils.EncryptionKeyEnv + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := utils.EncryptSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	})
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			r := authz.Role(role)
			if !authz.IsValidRole(r) {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := authz.IssueToken(cfg.Server.JWTSecret, subject, []authz.Role{r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	host, _ := os.Hostname()
	cmd.Flags().StringVar(&subject, "subject", "ldimport@"+host, "token subject")
	cmd.Flags().StringVar(&role, "role", string(authz.RoleOperator), "viewer or operator")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
