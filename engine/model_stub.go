package engine

// NullModel is the default Model backend when no real predictor is wired
// in: it always returns a score of 0. The actual TFLite/ONNX sequence model
// is an external collaborator (§1: "a black-box predictor that maps a
// fixed-width feature matrix to a scalar score") out of this repo's scope;
// NullModel exists so the worker loop always has a non-nil Predictor to
// call rather than special-casing "no backend configured" on the hot path.
type NullModel struct{}

// Predict always returns a neutral score. rows and cols are accepted and
// ignored, matching the Model contract's shape.
func (NullModel) Predict(rows, cols int, data []float32) (float32, error) {
	return 0, nil
}
