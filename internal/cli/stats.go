package cli

import (
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/workload"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type fieldReport struct {
	Name          string          `json:"name" yaml:"name"`
	Type          model.FieldType `json:"type" yaml:"type"`
	Cardinality   int64           `json:"cardinality" yaml:"cardinality"`
	Selectivity   float64         `json:"selectivity" yaml:"selectivity"`
	QueryUseCount int64           `json:"query_use_count" yaml:"query_use_count"`
}

type collectionReport struct {
	Name        string        `json:"name" yaml:"name"`
	Documents   int64         `json:"documents" yaml:"documents"`
	AvgDocSize  string        `json:"avg_doc_size" yaml:"avg_doc_size"`
	Size        string        `json:"size" yaml:"size"`
	Interesting []string      `json:"interesting_fields,omitempty" yaml:"interesting_fields,omitempty"`
	Fields      []fieldReport `json:"fields" yaml:"fields"`
}

type statsReport struct {
	Sessions     int                   `json:"sessions" yaml:"sessions"`
	Operations   int                   `json:"operations" yaml:"operations"`
	Collections  []collectionReport    `json:"collections" yaml:"collections"`
	QueryClasses []workload.QueryClass `json:"query_classes" yaml:"query_classes"`
}

func newStatsCmd(a *app) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics and the most frequent query classes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.snapshot(cmd.Context(), nil)
			if err != nil {
				return err
			}

			report := statsReport{
				Sessions:     len(snap.Sessions),
				Operations:   snap.OperationCount(),
				QueryClasses: snap.Classes,
			}
			if top > 0 && len(report.QueryClasses) > top {
				report.QueryClasses = report.QueryClasses[:top]
			}
			for _, name := range snap.Stats.Names() {
				report.Collections = append(report.Collections, collectionSummary(snap.Stats[name]))
			}
			return a.render(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&top, "top", 20, "number of query classes to list, 0 for all")
	return cmd
}

func collectionSummary(cs *model.CollectionStat) collectionReport {
	r := collectionReport{
		Name:        cs.Name,
		Documents:   cs.TupleCount,
		AvgDocSize:  humanize.IBytes(uint64(cs.AvgDocSize)),
		Size:        humanize.IBytes(uint64(cs.TupleCount * cs.AvgDocSize)),
		Interesting: cs.InterestingFields,
	}
	for _, name := range cs.FieldNames() {
		fs := cs.Fields[name]
		r.Fields = append(r.Fields, fieldReport{
			Name:          name,
			Type:          fs.Type,
			Cardinality:   fs.Cardinality,
			Selectivity:   fs.Selectivity,
			QueryUseCount: fs.QueryUseCount,
		})
	}
	return r
}
