package repository

import (
	"ikedadada/go-onehop/internal/domain/entity"
	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// CircuitTableRepository holds the circuits a relay serves on one link.
type CircuitTableRepository interface {
	// Add stores st, or returns ErrDuplicate if the id is taken.
	Add(vo.CircuitID, *entity.ConnState) error
	Find(vo.CircuitID) (*entity.ConnState, error)
	// Delete forgets the circuit and closes it.
	Delete(vo.CircuitID) error
	Len() int
	// Close stops expiry and closes every circuit.
	Close()
}
