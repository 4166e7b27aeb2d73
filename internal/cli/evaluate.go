package cli

import (
	"context"
	"fmt"

	"github.com/devrev/designer/internal/config"
	"github.com/devrev/designer/internal/model"
	"github.com/devrev/designer/internal/server"
	"github.com/devrev/designer/internal/service"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type costReport struct {
	Network    float64 `json:"network" yaml:"network"`
	Skew       float64 `json:"skew" yaml:"skew"`
	Disk       float64 `json:"disk" yaml:"disk"`
	Footprint  string  `json:"footprint" yaml:"footprint"`
	Overall    float64 `json:"overall" yaml:"overall"`
	Infeasible bool    `json:"infeasible" yaml:"infeasible"`
}

type designReport struct {
	Name  string      `json:"name" yaml:"name"`
	Cost  *costReport `json:"cost,omitempty" yaml:"cost,omitempty"`
	Error string      `json:"error,omitempty" yaml:"error,omitempty"`
}

type evaluationReport struct {
	BatchID string         `json:"batch_id" yaml:"batch_id"`
	Best    string         `json:"best,omitempty" yaml:"best,omitempty"`
	Designs []designReport `json:"designs" yaml:"designs"`
}

func newEvaluateCmd(a *app) *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "evaluate DESIGNS_FILE",
		Short: "Score the candidate designs of a YAML design file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := config.LoadCandidates(args[0])
			if err != nil {
				return err
			}
			if len(candidates) == 0 {
				return fmt.Errorf("%s lists no designs", args[0])
			}

			var (
				outcomes []service.Outcome
				batchID  string
				best     int
			)
			if remote != "" {
				outcomes, batchID, best, err = a.evaluateRemote(cmd.Context(), remote, candidates)
			} else {
				outcomes, batchID, best, err = a.evaluateLocal(cmd.Context(), candidates)
			}
			if err != nil {
				return err
			}

			report := evaluationReport{BatchID: batchID}
			if best >= 0 {
				report.Best = outcomes[best].Name
			}
			for _, o := range outcomes {
				report.Designs = append(report.Designs, designSummary(o))
			}
			return a.render(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "address of a running designer server to evaluate on")
	return cmd
}

func (a *app) evaluateLocal(ctx context.Context, candidates []model.Candidate) ([]service.Outcome, string, int, error) {
	snap, err := a.snapshot(ctx, nil)
	if err != nil {
		return nil, "", -1, err
	}

	svc := service.NewEvaluationService(&service.EvaluationConfig{
		Workers:         a.cfg.Evaluation.Workers,
		QueueSize:       a.cfg.Evaluation.QueueSize,
		ShutdownTimeout: a.cfg.Evaluation.ShutdownTimeout,
	}, snap, nil, a.logger)
	defer svc.Stop()

	batch, err := svc.EvaluateBatch(ctx, candidates)
	if err != nil {
		return nil, "", -1, err
	}
	return batch.Outcomes, batch.ID, batch.Best(), nil
}

func (a *app) evaluateRemote(ctx context.Context, addr string, candidates []model.Candidate) ([]service.Outcome, string, int, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, "", -1, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := server.NewEvaluatorClient(conn).EvaluateBatch(ctx, &server.EvaluateBatchRequest{Candidates: candidates})
	if err != nil {
		return nil, "", -1, fmt.Errorf("remote evaluation failed: %w", err)
	}
	return resp.Outcomes, resp.BatchID, resp.Best, nil
}

func designSummary(o service.Outcome) designReport {
	r := designReport{Name: o.Name, Error: o.Error}
	if res := o.Result; res != nil {
		r.Cost = &costReport{
			Network:    res.Network,
			Skew:       res.Skew,
			Disk:       res.Disk,
			Footprint:  humanize.IBytes(uint64(res.DiskBytes)),
			Overall:    res.Overall,
			Infeasible: res.Infeasible,
		}
	}
	return r
}
