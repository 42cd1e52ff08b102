package cli

import (
	"io"

	"github.com/spf13/cobra"

	"one-plate/internal/metrics"
	"one-plate/internal/session"
	"one-plate/internal/view"
)

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(opts *RootOptions) *cobra.Command {
	var days, cleanup int
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Summarize recent change outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, false, func(s *session.Session, out *OutputFormatter) error {
				if cleanup > 0 {
					n, err := s.Metrics().Cleanup(cmd.Context(), cleanup)
					if err != nil {
						return WrapExitError(ExitFailure, "failed to clean up metrics", err)
					}
					out.VerboseLog("removed %d old metric records", n)
				}
				rows, err := s.Metrics().Summary(cmd.Context(), days)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read metrics", err)
				}
				health := s.Health()
				data := struct {
					Ops    []metrics.OpSummary `json:"ops"`
					Health metrics.SysHealth   `json:"health"`
				}{rows, health}
				return out.Success(data, func(w io.Writer) {
					view.Metrics(w, rows)
					view.Health(w, health)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "days to summarize")
	cmd.Flags().IntVar(&cleanup, "cleanup", 0, "first delete records older than this many days")
	return cmd
}
