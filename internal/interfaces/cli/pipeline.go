package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeffrey-bowles/uspto/internal/application/pipeline"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

func newFeesCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Maintenance fee event commands",
	}
	cmd.AddCommand(jobCmd(deps, "update", pipeline.JobFees,
		"Download the fee events archive and apply new lines"))
	return cmd
}

func newAssignmentsCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "Patent assignment commands",
	}
	cmd.AddCommand(
		jobCmd(deps, "bootstrap-csv", pipeline.JobBootstrap,
			"Seed assignment fields from the economics CSV dataset"),
		jobCmd(deps, "sync", pipeline.JobSync,
			"Apply every historical and daily assignment archive not yet applied"),
		jobCmd(deps, "daily", pipeline.JobDaily,
			"Apply new daily archives, prune expired patents and rebuild the index"),
	)
	return cmd
}

func newEnrichCmd(deps Deps) *cobra.Command {
	return jobCmd(deps, "enrich", pipeline.JobEnrich,
		"Fill missing assignee names from PatentsView")
}

func newIndexCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Reporting set index commands",
	}
	cmd.AddCommand(jobCmd(deps, "build", pipeline.JobIndex,
		"Rebuild the per-set index artifacts"))
	return cmd
}

func newCycleCmd(deps Deps) *cobra.Command {
	return jobCmd(deps, "cycle", pipeline.JobCycle,
		"Update fees, enrich assignees and rebuild the index")
}

// jobCmd builds a leaf command that runs job in process.
func jobCmd(deps Deps, use, job, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, deps, job)
		},
	}
}

func runJob(cmd *cobra.Command, deps Deps, job string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if deps.OpenRunner == nil {
		return errors.New(errors.ErrCodeInternal, "pipeline runner is not configured")
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	runner, closer, err := deps.OpenRunner(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return fmt.Errorf("open pipeline: %w", err)
	}
	if closer != nil {
		defer func() {
			if cerr := closer(); cerr != nil {
				cliCtx.Logger.Warn("closing pipeline dependencies failed", logging.Err(cerr))
			}
		}()
	}

	rep, err := runner.Run(ctx, job)
	if err != nil {
		return err
	}
	return PrintResult(cmd, reportView{rep})
}

// reportView renders a pipeline.Report for the text and table formats. The
// embedded report keeps the JSON form unchanged.
type reportView struct {
	*pipeline.Report
}

func (v reportView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "job %s (run %s) finished in %s\n",
		v.Job, v.RunID, v.FinishedAt.Sub(v.StartedAt).Round(time.Millisecond))
	for _, row := range v.TableRows() {
		fmt.Fprintf(&sb, "  %-10s %s\n", row[0], row[1])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v reportView) TableHeaders() []string {
	return []string{"STAGE", "RESULT"}
}

func (v reportView) TableRows() [][]string {
	r := v.Report
	var rows [][]string
	if r.Fees != nil {
		rows = append(rows, []string{"fees", fmt.Sprintf(
			"lines=%d new=%d discarded=%d patents_created=%d patents_updated=%d events_created=%d bootstrap=%t",
			r.Fees.Lines, r.Fees.NewLines, r.Fees.Discarded, r.Fees.PatentsCreated,
			r.Fees.PatentsUpdated, r.Fees.EventsCreated, r.Fees.Bootstrap)})
	}
	if r.CSV != nil {
		rows = append(rows, []string{"csv", fmt.Sprintf("records=%d applied=%d missing=%d",
			r.CSV.Records, r.CSV.Applied, r.CSV.Missing)})
	}
	if r.Archive != nil {
		rows = append(rows, []string{"archive", fmt.Sprintf("%s assignments=%d groups=%d unresolved=%d updated=%d",
			r.Archive.Archive, r.Archive.Assignments, r.Archive.Groups, r.Archive.Unresolved, r.Archive.Updated)})
	}
	if r.Sync != nil {
		rows = append(rows, []string{"sync", fmt.Sprintf("targets=%d skipped=%d processed=%d failed=%d",
			r.Sync.Targets, r.Sync.Skipped, len(r.Sync.Processed), len(r.Sync.Failed))})
	}
	if r.Enrichment != nil {
		rows = append(rows, []string{"enrich", fmt.Sprintf("sub_windows=%d failed=%d results=%d updated=%d",
			r.Enrichment.SubWindows, r.Enrichment.Failed, r.Enrichment.Results, r.Enrichment.Updated)})
	}
	if r.Index != nil {
		var parts []string
		for _, name := range reporting.OrderedSets {
			if n, ok := r.Index.Sizes[name]; ok {
				parts = append(parts, fmt.Sprintf("%s=%d", name, n))
			}
		}
		rows = append(rows, []string{"index", strings.Join(parts, " ")})
	}
	if r.Pruned > 0 {
		rows = append(rows, []string{"prune", fmt.Sprintf("deleted=%d", r.Pruned)})
	}
	if r.Published {
		rows = append(rows, []string{"publish", "index rebuilt event sent"})
	}
	return rows
}
