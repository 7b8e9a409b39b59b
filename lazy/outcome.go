package lazy

// Outcome is the result of Cell.Negotiate. When Negotiate succeeds exactly
// one of Value and Setter reports true; the zero Outcome returned with an
// error reports neither.
type Outcome[T any] struct {
	value    T
	hasValue bool
	setter   *Setter[T]
}

// Value returns the cell's value and true if the cell was already set.
func (o Outcome[T]) Value() (T, bool) {
	return o.value, o.hasValue
}

// Setter returns the Setter and true if the caller won the right to set the
// cell. The caller must call Set or Release on it.
func (o Outcome[T]) Setter() (*Setter[T], bool) {
	return o.setter, o.setter != nil
}
