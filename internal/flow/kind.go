package flow

import "fmt"

// BlockKind classifies blocks. The set is closed: every switch over it
// lists all ten kinds.
type BlockKind string

const (
	KindInput        BlockKind = "input"
	KindTransform    BlockKind = "transform"
	KindFilter       BlockKind = "filter"
	KindAggregate    BlockKind = "aggregate"
	KindCondition    BlockKind = "condition"
	KindLoop         BlockKind = "loop"
	KindExternalCall BlockKind = "external_call"
	KindDatabase     BlockKind = "database"
	KindCustom       BlockKind = "custom"
	KindOutput       BlockKind = "output"
)

// Kinds returns every block kind in catalog order.
func Kinds() []BlockKind {
	return []BlockKind{
		KindInput, KindTransform, KindFilter, KindAggregate, KindCondition,
		KindLoop, KindExternalCall, KindDatabase, KindCustom, KindOutput,
	}
}

// Valid reports whether k is one of the known kinds.
func (k BlockKind) Valid() bool {
	switch k {
	case KindInput, KindTransform, KindFilter, KindAggregate, KindCondition,
		KindLoop, KindExternalCall, KindDatabase, KindCustom, KindOutput:
		return true
	}
	return false
}

// ParseKind converts a string to a BlockKind.
func ParseKind(s string) (BlockKind, error) {
	k := BlockKind(s)
	if !k.Valid() {
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown block kind %q", s)}
	}
	return k, nil
}

// Expensive reports whether blocks of this kind dominate latency
// (remote I/O or full-input aggregation).
func (k BlockKind) Expensive() bool {
	switch k {
	case KindExternalCall, KindDatabase, KindAggregate:
		return true
	case KindInput, KindTransform, KindFilter, KindCondition, KindLoop, KindCustom, KindOutput:
		return false
	}
	return false
}

// Stateless reports whether a block of this kind keeps no state between
// records and can be replicated freely.
func (k BlockKind) Stateless() bool {
	switch k {
	case KindInput, KindTransform, KindFilter, KindCondition, KindOutput:
		return true
	case KindAggregate, KindLoop, KindExternalCall, KindDatabase, KindCustom:
		return false
	}
	return false
}

// RemoteIO reports whether the block talks to something outside the flow.
func (k BlockKind) RemoteIO() bool {
	switch k {
	case KindExternalCall, KindDatabase:
		return true
	case KindInput, KindTransform, KindFilter, KindAggregate, KindCondition, KindLoop, KindCustom, KindOutput:
		return false
	}
	return false
}
