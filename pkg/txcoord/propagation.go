package txcoord

import "fmt"

// PropagationMode describes whether an operation requires its own
// transaction, joins an existing one, or runs without one.
type PropagationMode string

const (
	// PropagationUnspecified resolves to the manager's default mode.
	PropagationUnspecified PropagationMode = "unspecified"
	// PropagationRequires creates a new transaction, or nests under the
	// current one if present.
	PropagationRequires PropagationMode = "requires"
	// PropagationRequiresNew always creates a new top-level transaction,
	// ignoring any current one.
	PropagationRequiresNew PropagationMode = "requires_new"
	// PropagationSupported nests under the current transaction if present,
	// runs non-transactionally otherwise.
	PropagationSupported PropagationMode = "supported"
	// PropagationNotSupported runs non-transactionally and refuses to run
	// while an active transaction is current.
	PropagationNotSupported PropagationMode = "not_supported"
)

// Valid reports whether the mode is a member of the propagation taxonomy.
func (m PropagationMode) Valid() bool {
	switch m {
	case PropagationUnspecified, PropagationRequires, PropagationRequiresNew,
		PropagationSupported, PropagationNotSupported:
		return true
	}
	return false
}

// ParsePropagationMode parses a mode name as found in configuration.
func ParsePropagationMode(s string) (PropagationMode, error) {
	m := PropagationMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// IsolationLevel is passed through to enlisted resources; the coordinator
// itself attaches no semantics to it.
type IsolationLevel string

const (
	IsolationUnspecified    IsolationLevel = ""
	IsolationReadCommitted  IsolationLevel = "read_committed"
	IsolationRepeatableRead IsolationLevel = "repeatable_read"
	IsolationSerializable   IsolationLevel = "serializable"
)
