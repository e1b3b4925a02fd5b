package model

// MatrixCols is the fixed feature-vector width the predictor contract
// guarantees row in, row out. Changing it changes the model contract.
const MatrixCols = 26

// MatrixRows is the default FIFO capacity of a family's rolling matrix.
const MatrixRows = 500

// Timestep is one row of the feature matrix, in the fixed column order
// documented on FamilyRecord.SnapshotTimestep.
type Timestep [MatrixCols]float64

// Matrix is a bounded FIFO of fixed-width feature rows. Once at capacity,
// pushing a row evicts the oldest one — strict FIFO, never a random victim.
type Matrix struct {
	rows     []Timestep
	capacity int
}

// NewMatrix creates an empty matrix with the given row capacity.
func NewMatrix(capacity int) *Matrix {
	if capacity <= 0 {
		capacity = MatrixRows
	}
	return &Matrix{rows: make([]Timestep, 0, capacity), capacity: capacity}
}

// Push appends row, evicting the oldest row first if already at capacity.
func (m *Matrix) Push(row Timestep) {
	if len(m.rows) < m.capacity {
		m.rows = append(m.rows, row)
		return
	}
	copy(m.rows, m.rows[1:])
	m.rows[len(m.rows)-1] = row
}

// Len returns the number of rows currently held (min(pushes, capacity)).
func (m *Matrix) Len() int {
	return len(m.rows)
}

// Capacity returns the fixed row capacity.
func (m *Matrix) Capacity() int {
	return m.capacity
}

// Rows returns the rows oldest-first. The returned slice aliases internal
// storage and must not be mutated by the caller.
func (m *Matrix) Rows() []Timestep {
	return m.rows
}

// Flatten lays the current rows out row-major into a single slice, the shape
// the predictor's tensor input expects: len(rows)*MatrixCols float32s.
func (m *Matrix) Flatten() []float32 {
	out := make([]float32, 0, len(m.rows)*MatrixCols)
	for _, row := range m.rows {
		for _, v := range row {
			out = append(out, float32(v))
		}
	}
	return out
}
