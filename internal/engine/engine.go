// Package engine is the orchestrator: it selects the TTBR and starting
// level from register state, drives the stage-1 walker (which drives
// stage-2 internally), performs the final stage-2 walk on success, and
// assembles the ordered trace and final Result. It is the only package that
// assigns event IDs, since IDs must be globally contiguous across sub-walks
// composed from independent calls.
package engine

import (
	"fmt"

	"github.com/hemindesai04/page-table-walker/internal/access"
	"github.com/hemindesai04/page-table-walker/internal/addrmodel"
	"github.com/hemindesai04/page-table-walker/internal/faultpkg"
	"github.com/hemindesai04/page-table-walker/internal/perm"
	"github.com/hemindesai04/page-table-walker/internal/tables"
	"github.com/hemindesai04/page-table-walker/internal/walk1"
	"github.com/hemindesai04/page-table-walker/internal/walk2"
	"github.com/hemindesai04/page-table-walker/internal/walkevent"
)

// Status is the aggregate outcome of a walk.
type Status int

const (
	Success Status = iota
	S1Fault
	S2Fault
	S2FinalFault
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case S1Fault:
		return "S1_FAULT"
	case S2Fault:
		return "S2_FAULT"
	case S2FinalFault:
		return "S2_FINAL_FAULT"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// TxSZ bundles TCR_EL1's two size fields.
type TxSZ struct {
	T0SZ, T1SZ int
}

// VTCR bundles VTCR_EL2's size and starting-level fields.
type VTCR struct {
	T0SZ int
	SL0  int
}

// Registers is the register state a walk consults: the two stage-1 table
// bases, the stage-2 base, and the control registers that size them.
type Registers struct {
	TTBR0EL1 uint64
	TTBR1EL1 uint64
	VTTBREL2 uint64
	TCREL1   TxSZ
	VTCREL2  VTCR
}

// Arch carries the scenario's architecture block. VABits determines the
// TTBR0/TTBR1 split; the per-walk starting level is derived from the
// registers' TxSZ fields, the operative VA sizes.
type Arch struct {
	GranuleKB       int
	VABits          int
	IPABits         int
	PABits          int
	FeatD128Enabled bool
}

// Request is the full input to a single Walk call.
type Request struct {
	VA           uint64
	AccessType   access.Type
	Privilege    access.Privilege
	Registers    Registers
	Arch         Arch
	Stage1Tables *tables.Store
	Stage2Tables *tables.Store
}

// TraceEvent is one flattened, globally-ordered trace entry, ready for the
// result reporter.
type TraceEvent struct {
	EventID         int
	Stage           int
	Level           int
	Index           uint64
	Purpose         string
	DescriptorPA    uint64
	DescriptorValue uint64
	Result          string // the descriptor's classified Kind, e.g. "TABLE"
	Output          uint64
}

// RegisterSnapshot captures register state at one of the three points a
// walk passes through: start, after stage 1, and complete.
type RegisterSnapshot struct {
	Label     string
	TTBR0     uint64
	TTBR1     uint64
	VTTBR     uint64
	UsesTTBR1 bool
	HasIPA    bool
	IPA       uint64
}

// Result aggregates the full outcome of one walk: status, addresses at
// each translation boundary, the ordered trace, and the fault if any.
type Result struct {
	Status         Status
	VA             uint64
	HasIPA         bool
	IPA            uint64
	HasPA          bool
	PA             uint64
	Events         []TraceEvent
	Fault          *faultpkg.Fault
	HasPermissions bool
	Permissions    perm.Stage1
	Attributes     walk1.Attributes
	Snapshots      []RegisterSnapshot
}

// stage2StartingLevelFromSL0 maps VTCR_EL2.SL0 to the stage-2 starting
// level. The scenario model treats SL0 as the starting level itself
// (SL0=0 -> L0, SL0=1 -> L1, SL0=2 -> L2); the loader has already rejected
// values outside 0..2, so out-of-range input cannot reach here, but clamp
// anyway since Walk must always produce a Result.
func stage2StartingLevelFromSL0(sl0 int) int {
	if sl0 < 0 || sl0 > 2 {
		return 0
	}
	return sl0
}

// Walk performs one full two-stage translation.
func Walk(req Request) *Result {
	granule, ok := addrmodel.ConfigFor(req.Arch.GranuleKB)
	if !ok {
		// The scenario loader rejects unsupported granules before Walk is
		// ever called. Fall back to 4 KB rather than panic, since Walk
		// must always return a Result.
		granule, _ = addrmodel.ConfigFor(4)
	}

	usesTTBR1 := addrmodel.UsesTTBR1(req.VA, req.Arch.VABits)

	result := &Result{VA: req.VA}
	result.Snapshots = append(result.Snapshots, RegisterSnapshot{
		Label:     "start",
		TTBR0:     req.Registers.TTBR0EL1,
		TTBR1:     req.Registers.TTBR1EL1,
		VTTBR:     req.Registers.VTTBREL2,
		UsesTTBR1: usesTTBR1,
	})

	var ttbrBase uint64
	var txsz int
	if usesTTBR1 {
		ttbrBase = req.Registers.TTBR1EL1
		txsz = req.Registers.TCREL1.T1SZ
	} else {
		ttbrBase = req.Registers.TTBR0EL1
		txsz = req.Registers.TCREL1.T0SZ
	}
	stage1StartingLevel := granule.StartingLevel(64 - txsz)
	stage2StartingLevel := stage2StartingLevelFromSL0(req.Registers.VTCREL2.SL0)

	s1res := walk1.Walk(walk1.Input{
		VA:            req.VA,
		AccessType:    req.AccessType,
		Privilege:     req.Privilege,
		TTBRBaseIPA:   ttbrBase,
		StartingLevel: stage1StartingLevel,
		Tables:        req.Stage1Tables,
		Granule:       granule,
		Stage2: walk1.Stage2Config{
			VTTBRBasePA:   req.Registers.VTTBREL2,
			StartingLevel: stage2StartingLevel,
			Tables:        req.Stage2Tables,
		},
	})

	nextID := 1
	for _, step := range s1res.Steps {
		for _, ev := range step.Prologue {
			result.Events = append(result.Events, flatten(&nextID, ev, fmt.Sprintf(
				"S2 for S1 L%d table @ IPA 0x%016X", step.Level, step.TableIPA,
			)))
		}
		if step.HasOwn {
			purpose := fmt.Sprintf("S1 L%d lookup", step.Level)
			if step.TableStage2Faulted {
				purpose = fmt.Sprintf("S1 L%d - S2 fault translating table @ IPA 0x%016X", step.Level, step.TableIPA)
			}
			result.Events = append(result.Events, flatten(&nextID, step.Own, purpose))
		}
	}

	if s1res.Fault != nil {
		result.Fault = s1res.Fault
		if s1res.FaultFromStage2 {
			result.Status = S2Fault
		} else {
			result.Status = S1Fault
		}
		return result
	}

	result.HasIPA = true
	result.IPA = s1res.IPA
	result.Snapshots = append(result.Snapshots, RegisterSnapshot{
		Label:     "after_s1",
		TTBR0:     req.Registers.TTBR0EL1,
		TTBR1:     req.Registers.TTBR1EL1,
		VTTBR:     req.Registers.VTTBREL2,
		UsesTTBR1: usesTTBR1,
		HasIPA:    true,
		IPA:       s1res.IPA,
	})

	s2res := walk2.Walk(walk2.Input{
		IPA:           s1res.IPA,
		AccessType:    req.AccessType,
		VTTBRBasePA:   req.Registers.VTTBREL2,
		StartingLevel: stage2StartingLevel,
		Tables:        req.Stage2Tables,
		Granule:       granule,
	})
	for _, ev := range s2res.Events {
		result.Events = append(result.Events, flatten(&nextID, ev, fmt.Sprintf(
			"Final S2 L%d for IPA 0x%016X", ev.Level, s1res.IPA,
		)))
	}

	if s2res.Fault != nil {
		result.Fault = s2res.Fault
		result.Status = S2FinalFault
		result.HasPermissions = true
		result.Permissions = s1res.Permissions
		result.Attributes = s1res.Attributes
		return result
	}

	result.Status = Success
	result.HasPA = true
	result.PA = s2res.PA
	result.HasPermissions = true
	result.Permissions = s1res.Permissions
	result.Attributes = s1res.Attributes
	result.Snapshots = append(result.Snapshots, RegisterSnapshot{
		Label:     "complete",
		TTBR0:     req.Registers.TTBR0EL1,
		TTBR1:     req.Registers.TTBR1EL1,
		VTTBR:     req.Registers.VTTBREL2,
		UsesTTBR1: usesTTBR1,
		HasIPA:    true,
		IPA:       s1res.IPA,
	})
	return result
}

func flatten(nextID *int, ev walkevent.Event, purpose string) TraceEvent {
	te := TraceEvent{
		EventID:         *nextID,
		Stage:           ev.Stage,
		Level:           ev.Level,
		Index:           ev.Index,
		Purpose:         purpose,
		DescriptorPA:    ev.DescriptorPA,
		DescriptorValue: ev.DescriptorValue,
		Result:          ev.DescriptorKind.String(),
		Output:          ev.OutputAddress,
	}
	*nextID++
	return te
}
