package world

import (
	"errors"
	"fmt"
)

// State is a chunk's position in the pipeline.
type State uint8

const (
	StateEmpty State = iota
	StateGenerated
	StateMeshed
	StateGpuResident
	StatePendingEvict
)

var (
	// ErrInvalidTransition is returned when a state change would skip or
	// reverse a pipeline step.
	ErrInvalidTransition = errors.New("invalid chunk state transition")
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateGenerated:
		return "Generated"
	case StateMeshed:
		return "Meshed"
	case StateGpuResident:
		return "GpuResident"
	case StatePendingEvict:
		return "PendingEvict"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// CanTransition reports whether a chunk may move from s to next.
//
//	Empty -> Generated -> Meshed -> GpuResident
//	Meshed -> Meshed            re-extraction
//	GpuResident -> Meshed       re-extraction of a resident chunk
//	any live state -> PendingEvict
func (s State) CanTransition(next State) bool {
	switch next {
	case StateGenerated:
		return s == StateEmpty
	case StateMeshed:
		return s == StateGenerated || s == StateMeshed || s == StateGpuResident
	case StateGpuResident:
		return s == StateMeshed
	case StatePendingEvict:
		return s != StatePendingEvict
	}
	return false
}

// AtLeastGenerated reports whether the chunk's voxels are final enough to
// serve as a neighbor boundary.
func (s State) AtLeastGenerated() bool {
	return s == StateGenerated || s == StateMeshed || s == StateGpuResident
}
