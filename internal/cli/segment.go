package cli

import (
	"time"

	"github.com/devrev/designer/internal/workload"
	"github.com/spf13/cobra"
)

type intervalReport struct {
	Index      int       `json:"index" yaml:"index"`
	From       time.Time `json:"from" yaml:"from"`
	To         time.Time `json:"to" yaml:"to"`
	Operations int       `json:"operations" yaml:"operations"`
}

func newSegmentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "segment",
		Short: "Show how the trace splits into skew intervals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.snapshot(cmd.Context(), nil)
			if err != nil {
				return err
			}

			bounds, err := workload.Boundaries(snap.Sessions, snap.Config.SkewIntervals)
			if err != nil {
				return err
			}

			intervals := make([]intervalReport, 0, len(snap.Segments))
			for i, segment := range snap.Segments {
				r := intervalReport{Index: i, Operations: len(segment)}
				if bounds != nil {
					r.From, r.To = bounds[i].UTC(), bounds[i+1].UTC()
				}
				intervals = append(intervals, r)
			}
			return a.render(cmd.OutOrStdout(), intervals)
		},
	}
}
