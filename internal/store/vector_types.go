package store

import (
	"github.com/pgvector/pgvector-go"
)

// nullVector scans a nullable vector column.
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (v *nullVector) Scan(src any) error {
	if src == nil {
		v.Valid = false
		return nil
	}
	v.Valid = true
	return v.Vector.Scan(src)
}

// vectorParam converts an optional embedding into a bindable parameter,
// mapping nil to SQL NULL.
func vectorParam(vec []float32) any {
	if vec == nil {
		return nil
	}
	return pgvector.NewVector(vec)
}
