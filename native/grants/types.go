package grants

import (
	"fmt"
	"math/big"
)

// Program captures the metadata and runtime status of a single grants
// program. Identifiers are ordinals assigned by the registry counter,
// starting at zero and never reused. Every field except Validator, Approved,
// Builder and Claimed is immutable after creation.
type Program struct {
	ID        uint64
	Name      string
	Price     *big.Int
	StartTime int64
	EndTime   int64
	Maker     [20]byte
	Validator [20]byte
	Builder   [20]byte
	Approved  bool
	Claimed   bool
	CreatedAt int64
}

// Clone returns a deep copy of the program so callers can safely mutate the
// copy without affecting the stored instance.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	return &clone
}

// WindowOpen reports whether the supplied timestamp falls inside the
// program's claim window. Both bounds are inclusive.
func (p *Program) WindowOpen(now int64) bool {
	if p == nil {
		return false
	}
	return now >= p.StartTime && now <= p.EndTime
}

// SanitizeProgram validates the supplied program record and returns a cloned
// instance with a non-nil price. The function does not mutate the original
// value.
func SanitizeProgram(p *Program) (*Program, error) {
	if p == nil {
		return nil, fmt.Errorf("nil program")
	}
	clone := p.Clone()
	if clone.Price.Sign() < 0 {
		return nil, fmt.Errorf("program price must be non-negative")
	}
	if clone.StartTime >= clone.EndTime {
		return nil, fmt.Errorf("program start time must precede end time")
	}
	if clone.Approved && clone.Builder == ([20]byte{}) {
		return nil, fmt.Errorf("approved program missing builder")
	}
	return clone, nil
}
