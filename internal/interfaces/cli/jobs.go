package cli

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/jeffrey-bowles/uspto/internal/application/pipeline"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

func newJobsCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Queue pipeline jobs for the worker",
	}
	cmd.AddCommand(newJobsSubmitCmd(deps))
	return cmd
}

func newJobsSubmitCmd(deps Deps) *cobra.Command {
	var requestedBy string
	cmd := &cobra.Command{
		Use:       "submit <cycle|daily|sync|index>",
		Short:     "Publish a job request on the jobs topic",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{pipeline.JobCycle, pipeline.JobDaily, pipeline.JobSync, pipeline.JobIndex},
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if deps.OpenPublisher == nil {
				return errors.New(errors.ErrCodeInternal, "job publisher is not configured")
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			pub, closer, err := deps.OpenPublisher(ctx, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return fmt.Errorf("open publisher: %w", err)
			}
			if closer != nil {
				defer func() {
					if cerr := closer(); cerr != nil {
						cliCtx.Logger.Warn("closing publisher failed", logging.Err(cerr))
					}
				}()
			}

			if requestedBy == "" {
				requestedBy = defaultRequester()
			}
			if err := pipeline.SubmitJob(ctx, pub, cliCtx.Config.Kafka.JobsTopic, args[0], requestedBy); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("%s job submitted to %s", args[0], cliCtx.Config.Kafka.JobsTopic))
			return nil
		},
	}
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "requester recorded on the job (default: user@host)")
	return cmd
}

func defaultRequester() string {
	name := "ptoctl"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		name += "@" + host
	}
	return name
}
