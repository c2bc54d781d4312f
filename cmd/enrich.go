package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/model"
)

var (
	enrichTenant   string
	enrichPriority int
	enrichWait     time.Duration
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <contact-id>",
	Short: "Enrich and score one contact synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		poolCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		poolDone := make(chan error, 1)
		go func() { poolDone <- env.Pool().Run(poolCtx) }()

		job, created, err := env.Service.Enqueue(ctx, enrichTenant, args[0], enrichPriority)
		if err != nil {
			return err
		}
		zap.L().Info("enrich: job queued",
			zap.String("job_id", job.ID),
			zap.String("contact_id", job.ContactID),
			zap.Bool("created", created),
		)

		waitCtx, waitCancel := context.WithTimeout(ctx, enrichWait)
		defer waitCancel()
		final, err := env.Service.Wait(waitCtx, job)
		if err != nil {
			return err
		}

		cancel()
		<-poolDone

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(final); err != nil {
			return eris.Wrap(err, "enrich: write result")
		}
		if final.Status == model.JobStatusFailed {
			return eris.Errorf("enrich: job failed: %s", final.Error)
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichTenant, "tenant", model.DefaultTenant, "tenant id")
	enrichCmd.Flags().IntVar(&enrichPriority, "priority", 0, "job priority (higher runs first)")
	enrichCmd.Flags().DurationVar(&enrichWait, "wait", 2*time.Minute, "maximum time to wait for the job")
	rootCmd.AddCommand(enrichCmd)
}
