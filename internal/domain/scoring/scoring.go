// Package scoring computes confusion-matrix counts and weighted gain scores
// for predicted-positive id sets against the master partitions.
package scoring

import (
	"context"
	"fmt"

	"github.com/okian/oraculus/internal/domain/masterdata"
	"github.com/okian/oraculus/internal/domain/model"
)

// GainMatrix holds the four signed coefficients applied to confusion counts.
type GainMatrix struct {
	TP float64
	TN float64
	FP float64
	FN float64
}

// Result contains the computed score and confusion counts for one partition.
// The count order (tn, fp, fn, tp) decides which gain coefficient multiplies
// which count and must not be reordered.
type Result struct {
	Score float64
	TN    int
	FP    int
	FN    int
	TP    int
}

// Engine scores predicted-positive id sets against a loaded dataset.
type Engine struct {
	dataset *masterdata.Dataset
	gain    GainMatrix
}

// New creates an Engine bound to a dataset and gain matrix.
func New(dataset *masterdata.Dataset, gain GainMatrix) *Engine {
	return &Engine{dataset: dataset, gain: gain}
}

// Score computes the gain score for one partition. Every id of the partition
// is predicted 1 when present in predicted and 0 otherwise; the true label
// comes from the dataset. An empty partition yields a zero result, not an
// error. The computation is deterministic: records are visited in load order
// and the accumulation involves only integer counts.
func (e *Engine) Score(ctx context.Context, predicted map[int64]struct{}, partition model.Partition) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("scoring cancelled: %w", err)
	}

	var r Result
	for _, rec := range e.dataset.Partition(partition) {
		_, positive := predicted[rec.ID]
		switch {
		case rec.Label == 1 && positive:
			r.TP++
		case rec.Label == 1 && !positive:
			r.FN++
		case rec.Label == 0 && positive:
			r.FP++
		default:
			r.TN++
		}
	}

	r.Score = float64(r.TP)*e.gain.TP +
		float64(r.TN)*e.gain.TN +
		float64(r.FP)*e.gain.FP +
		float64(r.FN)*e.gain.FN
	return r, nil
}

// ScoreBoth computes the public and private results from the same predicted
// set, in that order.
func (e *Engine) ScoreBoth(ctx context.Context, predicted map[int64]struct{}) (Result, Result, error) {
	public, err := e.Score(ctx, predicted, model.PartitionPublic)
	if err != nil {
		return Result{}, Result{}, err
	}
	private, err := e.Score(ctx, predicted, model.PartitionPrivate)
	if err != nil {
		return Result{}, Result{}, err
	}
	return public, private, nil
}
