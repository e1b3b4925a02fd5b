package engine

import (
	"fmt"
	"math"

	"github.com/sitincloud/owlyshield-predict/model"
)

// standardizeEpsilon is the clamp floor applied to per-column standard
// deviation so a near-constant column never blows up the standardized
// value; matches prediction.rs's epsilon.
const standardizeEpsilon = 1e-4

// Model is the opaque backend C5 invokes: a row-major, already-standardized
// feature tensor in, a scalar score in [0,1] out. The real TFLite/ONNX
// runtime is out of scope (§1); this interface is the seam an alternate
// implementation plugs into.
type Model interface {
	Predict(rows, cols int, data []float32) (float32, error)
}

// ColumnStats bundles the per-column mean/stddev the model ships with.
type ColumnStats struct {
	Mean   [model.MatrixCols]float64
	StdDev [model.MatrixCols]float64
}

// Standardize applies x' = (x-mean)/max(stddev, epsilon) to every value in
// rows, column by column, returning a new row-major float32 slice ready for
// Model.Predict. Standardization is idempotent under the epsilon clamp: a
// column whose stddev is below epsilon always divides by epsilon exactly.
func Standardize(rows []model.Timestep, stats ColumnStats) []float32 {
	out := make([]float32, 0, len(rows)*model.MatrixCols)
	for _, row := range rows {
		for c, v := range row {
			sigma := stats.StdDev[c]
			if sigma < standardizeEpsilon {
				sigma = standardizeEpsilon
			}
			out = append(out, float32((v-stats.Mean[c])/sigma))
		}
	}
	return out
}

// Predictor is the C5 contract: standardize then invoke, returning a score
// in [0,1]. Predict returns an error for a missing backend, a backend
// failure or a non-finite score; the worker logs it and leaves the family's
// state unchanged.
type Predictor interface {
	Predict(rows []model.Timestep) (score float32, err error)
}

// Sequence is the standardize-then-invoke adapter spec.md §4.5 describes,
// backing onto an injectable Model.
type Sequence struct {
	Model Model
	Stats ColumnStats
}

// NewSequence builds a Sequence adapter around backend using the given
// column statistics.
func NewSequence(backend Model, stats ColumnStats) *Sequence {
	return &Sequence{Model: backend, Stats: stats}
}

func (s *Sequence) Predict(rows []model.Timestep) (float32, error) {
	if s.Model == nil {
		return 0, fmt.Errorf("predictor: no backend configured")
	}
	data := Standardize(rows, s.Stats)
	score, err := s.Model.Predict(len(rows), model.MatrixCols, data)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	if math.IsNaN(float64(score)) || math.IsInf(float64(score), 0) {
		return 0, fmt.Errorf("predict: non-finite score")
	}
	return score, nil
}

// StaticPE is a stub scorer matching prediction_static.rs's contract: keyed
// by exe path, cached per family. PE/ELF static inspection is out of scope
// here (§1's "ML inference backend" is an external collaborator), so this
// always returns a neutral score. Nothing in this repository calls Score or
// Blend; engine.Controller acts on the sequence score alone.
type StaticPE struct {
	cache map[string]float32
}

// NewStaticPE returns a stub static-analysis scorer.
func NewStaticPE() *StaticPE {
	return &StaticPE{cache: make(map[string]float32)}
}

// Score returns a cached neutral score for exePath, computing (and caching)
// it on first use.
func (s *StaticPE) Score(exePath string) float32 {
	if v, ok := s.cache[exePath]; ok {
		return v
	}
	const neutral = 0.0
	s.cache[exePath] = neutral
	return neutral
}

// Blend combines a sequence-model score with a static scorer's score. The
// sequence model dominates; the static score only nudges the result upward,
// matching the original's treatment of static analysis as corroborating
// evidence rather than a primary signal.
func Blend(sequenceScore, staticScore float32) float32 {
	blended := sequenceScore + staticScore*0.1
	if blended > 1 {
		return 1
	}
	return blended
}
