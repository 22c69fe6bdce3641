// Package access defines the small vocabulary of access kinds and privilege
// levels shared by the translation walkers, the orchestrator, and the
// scenario loader.
package access

import "fmt"

// Type is the kind of memory access the walk is being performed on behalf
// of. It gates the AP/UXN/PXN permission checks in the stage-1 walker.
type Type int

const (
	Read Type = iota
	Write
	Execute
)

func (t Type) String() string {
	switch t {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case Execute:
		return "EXECUTE"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses the access_type field of a scenario's memory_access block.
func ParseType(s string) (Type, error) {
	switch s {
	case "READ":
		return Read, nil
	case "WRITE":
		return Write, nil
	case "EXECUTE":
		return Execute, nil
	default:
		return 0, fmt.Errorf("unknown access type %q", s)
	}
}

// Privilege is the exception level the access is performed at. The core only
// distinguishes EL0 (unprivileged) from EL1 (privileged); EL2/EL3 are not
// modeled.
type Privilege int

const (
	EL1 Privilege = iota
	EL0
)

func (p Privilege) String() string {
	if p == EL0 {
		return "EL0"
	}
	return "EL1"
}

// ParsePrivilege parses the privilege_level field of a scenario's
// memory_access block.
func ParsePrivilege(s string) (Privilege, error) {
	switch s {
	case "EL0":
		return EL0, nil
	case "EL1":
		return EL1, nil
	default:
		return 0, fmt.Errorf("unknown privilege level %q", s)
	}
}
