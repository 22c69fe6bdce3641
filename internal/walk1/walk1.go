// Package walk1 implements the stage-1 walker: VA -> IPA. At every level it
// performs a nested stage-2 sub-walk to translate the current table's own
// IPA to a PA before fetching the stage-1 descriptor, because stage-1 table
// base addresses are themselves IPAs. The nested walk is a plain
// synchronous call returning its events by value.
package walk1

import (
	"fmt"

	"github.com/hemindesai04/page-table-walker/internal/access"
	"github.com/hemindesai04/page-table-walker/internal/addrmodel"
	"github.com/hemindesai04/page-table-walker/internal/descriptor"
	"github.com/hemindesai04/page-table-walker/internal/faultpkg"
	"github.com/hemindesai04/page-table-walker/internal/perm"
	"github.com/hemindesai04/page-table-walker/internal/tables"
	"github.com/hemindesai04/page-table-walker/internal/walk2"
	"github.com/hemindesai04/page-table-walker/internal/walkevent"
)

// Stage2Config is the fixed stage-2 configuration the nested sub-walks use
// to translate every stage-1 table IPA to a PA.
type Stage2Config struct {
	VTTBRBasePA   uint64
	StartingLevel int
	Tables        *tables.Store
}

// Input gathers everything one stage-1 walk needs.
type Input struct {
	VA            uint64
	AccessType    access.Type
	Privilege     access.Privilege
	TTBRBaseIPA   uint64
	StartingLevel int
	Tables        *tables.Store
	Granule       addrmodel.Config
	Stage2        Stage2Config
}

// StepRecord is one stage-1 level's contribution to the trace: the nested
// stage-2 events that preceded it (its "prologue"), and the stage-1 event
// itself. When the nested stage-2 sub-walk faults before a stage-1
// descriptor could be fetched for this level, Own is a sentinel Invalid
// event (zero descriptor PA/value) rather than a real descriptor fetch.
// The level's own lookup never happened, but the trace still records that
// this level was entered and did not resolve.
type StepRecord struct {
	Level int
	// TableIPA is the IPA of the stage-1 table consulted at this level,
	// i.e. the input to the nested stage-2 sub-walk that produced Prologue.
	TableIPA uint64
	Prologue []walkevent.Event
	Own      walkevent.Event
	HasOwn   bool
	// TableStage2Faulted is true when Own is the sentinel Invalid event
	// emitted because the nested stage-2 sub-walk above faulted, as opposed
	// to a real stage-1 descriptor that itself happened to decode Invalid.
	TableStage2Faulted bool
}

// Attributes are the final leaf descriptor's non-permission attributes,
// with UXN/PXN already combined with the accumulated table limits.
type Attributes struct {
	AF        bool
	SH        uint8
	AttrIndex uint8
	NG        bool
	NS        bool
	UXN       bool
	PXN       bool
}

// Result is the outcome of one stage-1 walk.
type Result struct {
	IPA        uint64
	Steps      []StepRecord
	Fault      *faultpkg.Fault
	Attributes Attributes
	// FaultFromStage2 is true when Fault originated in a nested stage-2
	// sub-walk rather than in the stage-1 descriptor classification itself;
	// the orchestrator uses it to choose between the S1_FAULT and S2_FAULT
	// statuses.
	FaultFromStage2 bool
	Permissions     perm.Stage1
}

// Walk translates va to an IPA, descending the stage-1 table rooted at
// in.TTBRBaseIPA and sub-walking stage 2 for each table's own IPA.
func Walk(in Input) Result {
	var (
		steps    []StepRecord
		uxnLimit bool
		pxnLimit bool
		apLimit  uint8
		tableIPA = in.TTBRBaseIPA
	)

	for level := in.StartingLevel; level <= 3; level++ {
		index := in.Granule.Index(in.VA, level)

		s2res := walk2.Walk(walk2.Input{
			IPA:           tableIPA,
			AccessType:    in.AccessType,
			VTTBRBasePA:   in.Stage2.VTTBRBasePA,
			StartingLevel: in.Stage2.StartingLevel,
			Tables:        in.Stage2.Tables,
			Granule:       in.Granule,
		})
		if s2res.Fault != nil {
			sentinel := walkevent.Event{
				Stage:          1,
				Level:          level,
				Index:          index,
				DescriptorKind: descriptor.Invalid,
			}
			steps = append(steps, StepRecord{
				Level: level, TableIPA: tableIPA, Prologue: s2res.Events,
				Own: sentinel, HasOwn: true, TableStage2Faulted: true,
			})
			return Result{Steps: steps, Fault: s2res.Fault, FaultFromStage2: true}
		}

		tablePA := s2res.PA
		descPA := in.Granule.DescriptorAddress(tablePA, index)
		raw := in.Tables.Get(descPA)
		d, kind := descriptor.New(raw, level, in.Granule)

		own := walkevent.Event{
			Stage:           1,
			Level:           level,
			Index:           index,
			DescriptorPA:    descPA,
			DescriptorValue: raw,
			DescriptorKind:  kind,
			OutputAddress:   walkevent.OutputAddressFor(d, kind),
		}
		steps = append(steps, StepRecord{Level: level, TableIPA: tableIPA, Prologue: s2res.Events, Own: own, HasOwn: true})

		switch kind {
		case descriptor.Invalid:
			return Result{
				Steps: steps,
				Fault: &faultpkg.Fault{
					Kind:            faultpkg.Translation,
					Stage:           1,
					Level:           level,
					FaultingAddress: in.VA,
					HasFarEL1:       true,
					FarEL1:          in.VA,
					Message:         "invalid stage-1 descriptor",
				},
			}

		case descriptor.Table:
			tableIPA = d.NextTableAddress()
			uxnLimit = uxnLimit || d.UXNTable()
			pxnLimit = pxnLimit || d.PXNTable()
			if t := d.APTable(); t > apLimit {
				apLimit = t
			}
			continue

		case descriptor.Block, descriptor.Page:
			finalUXN := d.UXN() || uxnLimit
			finalPXN := d.PXN() || pxnLimit
			// apLimit is tracked but the leaf AP remains authoritative;
			// APTable combining is deliberately not applied.
			_ = apLimit
			permissions := perm.DeriveStage1(d.AP(), finalUXN, finalPXN)

			if !permissions.Allows(in.AccessType, in.Privilege) {
				return Result{
					Steps: steps,
					Fault: &faultpkg.Fault{
						Kind:            faultpkg.Permission,
						Stage:           1,
						Level:           level,
						FaultingAddress: in.VA,
						HasAccessType:   true,
						AccessType:      in.AccessType,
						HasFarEL1:       true,
						FarEL1:          in.VA,
						Message: fmt.Sprintf(
							"%s denied at %s: AP=%02b UXN=%t PXN=%t",
							in.AccessType, in.Privilege, d.AP(), finalUXN, finalPXN,
						),
					},
				}
			}

			ipa := d.OutputAddress() | in.Granule.BlockOffset(in.VA, level)
			attrs := Attributes{
				AF:        d.AF(),
				SH:        d.SH(),
				AttrIndex: d.AttrIndex(),
				NG:        d.NG(),
				NS:        d.NS(),
				UXN:       finalUXN,
				PXN:       finalPXN,
			}
			return Result{Steps: steps, IPA: ipa, Permissions: permissions, Attributes: attrs}
		}
	}

	// Unreachable with well-formed tables: level 3 always classifies to
	// Invalid or Page, both of which return above.
	return Result{
		Steps: steps,
		Fault: &faultpkg.Fault{
			Kind:            faultpkg.Translation,
			Stage:           1,
			Level:           3,
			FaultingAddress: in.VA,
			HasFarEL1:       true,
			FarEL1:          in.VA,
			Message:         "stage-1 walk exhausted levels without a leaf",
		},
	}
}
