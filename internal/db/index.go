package db

import (
	"errors"
	"fmt"
)

// StorageType defines the document storage backend for FT indexes.
type StorageType string

// StorageHash stores documents as hashes. Resource records are always hashes.
const StorageHash StorageType = "HASH"

// DistanceMetric used by vector similarity queries.
type DistanceMetric string

const (
	// DistanceCosine is cosine distance. Stored vectors are unit length, so
	// the reported score is 1 - cosine similarity.
	DistanceCosine DistanceMetric = "COSINE"
	// DistanceL2 is euclidean distance.
	DistanceL2 DistanceMetric = "L2"
)

// HNSW defaults used when a vector field leaves them unset.
const (
	DefaultHNSWM           = 16
	DefaultHNSWEFConstruct = 200
)

// IndexFieldType enumerates the field types valkey-search can index.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldVector is an HNSW vector field.
	IndexFieldVector
)

// VectorParams configures an HNSW vector field.
type VectorParams struct {
	Dim         int
	Distance    DistanceMetric
	M           int // max edges per node
	EFConstruct int // build-time candidate list size
}

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name   string
	Alias  string // AS alias in FT.CREATE SCHEMA; queries use it
	Type   IndexFieldType
	Vector *VectorParams
}

// IndexDefinition is a complete FT index definition used by FT.CREATE.
type IndexDefinition struct {
	Name        string
	StorageType StorageType
	Prefixes    []string
	Fields      []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	vectors := 0
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field name is required at position %d", i)
		}
		key := f.Name
		if f.Alias != "" {
			key = f.Alias
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate field name: %s", key)
		}
		seen[key] = struct{}{}

		if f.Type != IndexFieldVector {
			continue
		}
		vectors++
		if f.Vector == nil || f.Vector.Dim <= 0 {
			return fmt.Errorf("vector field %s requires positive DIM", f.Name)
		}
	}
	if vectors > 1 {
		return errors.New("at most one vector field is supported")
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
