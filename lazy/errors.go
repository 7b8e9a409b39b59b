package lazy

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	// ErrPoisoned is matched by the error Negotiate returns after a Setter
	// holder panicked.
	ErrPoisoned = xerrors.New("cell poisoned")
	// ErrSetterUsed is the panic value, wrapped, when a Setter is used after
	// Set or Release.
	ErrSetterUsed = xerrors.New("setter already used")
)

// PoisonError records the panic that poisoned a cell.
type PoisonError struct {
	Cell  string
	Value any
}

func (e *PoisonError) Error() string {
	return fmt.Sprintf("lazy: cell %q poisoned by panic: %v", e.Cell, e.Value)
}

func (*PoisonError) Is(target error) bool {
	return target == ErrPoisoned
}
