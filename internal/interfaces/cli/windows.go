package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const dateLayout = "2006-01-02"

// windowsView lists the reporting sets for one day.
type windowsView struct {
	Today time.Time        `json:"today"`
	Sets  []setWindowEntry `json:"sets"`
}

type setWindowEntry struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (v windowsView) TableHeaders() []string {
	return []string{"SET", "ISSUED FROM", "ISSUED TO"}
}

func (v windowsView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Sets))
	for _, s := range v.Sets {
		rows = append(rows, []string{s.Name, s.From, s.To})
	}
	return rows
}

func (v windowsView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "reporting sets for %s\n", v.Today.Format(dateLayout))
	for _, s := range v.Sets {
		fmt.Fprintf(&sb, "  %-16s %s .. %s\n", s.Name, s.From, s.To)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func newWindowsCmd(deps Deps) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:         "windows",
		Short:       "Print the issue date range of every reporting set",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			today := reporting.Day(deps.Clock())
			if date != "" {
				t, err := time.Parse(dateLayout, date)
				if err != nil {
					return errors.New(errors.ErrCodeValidation, "--date must be YYYY-MM-DD").WithDetail(date)
				}
				today = t
			}

			view := windowsView{Today: today}
			for _, s := range reporting.Sets(today) {
				view.Sets = append(view.Sets, setWindowEntry{
					Name: string(s.Name),
					From: s.From.Format(dateLayout),
					To:   s.To.Format(dateLayout),
				})
			}
			return PrintResult(cmd, view)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "compute the sets as of this day (YYYY-MM-DD)")
	return cmd
}
