package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// Vector is a fixed-dimension float32 embedding stored as a JSONB array.
// Go's JSON encoder emits the shortest representation that round-trips
// each float32 exactly, so stored vectors scan back bit-for-bit.
type Vector []float32

// Scan implements sql.Scanner interface for GORM
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	var bytes []byte
	switch raw := value.(type) {
	case []byte:
		bytes = raw
	case string:
		bytes = []byte(raw)
	default:
		return fmt.Errorf("cannot scan %T into Vector", value)
	}
	if len(bytes) == 0 {
		*v = nil
		return nil
	}
	return json.Unmarshal(bytes, v)
}

// Value implements driver.Valuer interface for GORM
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 for mismatched lengths or zero-magnitude vectors, which
// ranks such entries at the bottom instead of failing the scan.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
