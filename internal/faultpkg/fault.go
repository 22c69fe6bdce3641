// Package faultpkg defines the fault record that terminates a walk. Faults
// are data, not control-flow exceptions: every walker returns a result that
// is either a success or a Fault alongside the partial event list collected
// up to the faulting level.
package faultpkg

import (
	"fmt"

	"github.com/hemindesai04/page-table-walker/internal/access"
)

// Kind enumerates the fault classes. ADDRESS_SIZE and ACCESS_FLAG are
// reserved: the enum carries them so the wire format and future walkers can
// use them, but the current walkers never raise them.
type Kind int

const (
	Translation Kind = iota
	Permission
	AddressSize
	AccessFlag
)

func (k Kind) String() string {
	switch k {
	case Translation:
		return "TRANSLATION"
	case Permission:
		return "PERMISSION"
	case AddressSize:
		return "ADDRESS_SIZE"
	case AccessFlag:
		return "ACCESS_FLAG"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Fault is the immutable record produced when a walk cannot complete. Stage
// is 1 or 2. The orchestrator picks the S1_FAULT, S2_FAULT, or
// S2_FINAL_FAULT status from where the fault arose (the stage-1 walk, one of
// its nested stage-2 sub-walks, or the final stage-2 walk), not from Stage.
type Fault struct {
	Kind             Kind
	Stage            int
	Level            int
	FaultingAddress  uint64
	HasAccessType    bool
	AccessType       access.Type
	Message          string
	HasFarEL1        bool
	FarEL1           uint64
	HasFarEL2        bool
	FarEL2           uint64
}

// Error implements error so a Fault can be returned/wrapped like any other
// Go error where convenient.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault at stage %d level %d: %s", f.Kind, f.Stage, f.Level, f.Message)
}
