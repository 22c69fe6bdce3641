// Package walk2 implements the stage-2 walker: IPA -> PA over a table store
// rooted at a physical address. It is a flat walk with no nested sub-walks;
// it is called both by the stage-1 walker, to translate each stage-1
// table's own IPA, and by the orchestrator, to translate the final IPA once
// stage 1 succeeds.
package walk2

import (
	"github.com/hemindesai04/page-table-walker/internal/access"
	"github.com/hemindesai04/page-table-walker/internal/addrmodel"
	"github.com/hemindesai04/page-table-walker/internal/descriptor"
	"github.com/hemindesai04/page-table-walker/internal/faultpkg"
	"github.com/hemindesai04/page-table-walker/internal/tables"
	"github.com/hemindesai04/page-table-walker/internal/walkevent"
)

// Input gathers everything one stage-2 walk needs. It carries no mutable
// state; Walk is a pure function of its Input.
type Input struct {
	IPA           uint64
	AccessType    access.Type
	VTTBRBasePA   uint64
	StartingLevel int
	Tables        *tables.Store
	Granule       addrmodel.Config
}

// Result is the outcome of one stage-2 walk: either PA is valid and Fault is
// nil, or Fault is set and PA is meaningless. Events is always populated up
// to and including the event for the faulting (or final) level.
type Result struct {
	PA     uint64
	Events []walkevent.Event
	Fault  *faultpkg.Fault
}

// Walk translates ipa to a physical address by descending the stage-2 table
// rooted at in.VTTBRBasePA, starting at in.StartingLevel.
func Walk(in Input) Result {
	var events []walkevent.Event
	currentPA := in.VTTBRBasePA

	for level := in.StartingLevel; level <= 3; level++ {
		index := in.Granule.Index(in.IPA, level)
		descPA := in.Granule.DescriptorAddress(currentPA, index)
		raw := in.Tables.Get(descPA)

		d, kind := descriptor.New(raw, level, in.Granule)
		event := walkevent.Event{
			Stage:           2,
			Level:           level,
			Index:           index,
			DescriptorPA:    descPA,
			DescriptorValue: raw,
			DescriptorKind:  kind,
			OutputAddress:   walkevent.OutputAddressFor(d, kind),
		}
		events = append(events, event)

		switch kind {
		case descriptor.Invalid:
			far := in.IPA
			return Result{
				Events: events,
				Fault: &faultpkg.Fault{
					Kind:            faultpkg.Translation,
					Stage:           2,
					Level:           level,
					FaultingAddress: in.IPA,
					HasFarEL2:       true,
					FarEL2:          far,
					Message:         "invalid stage-2 descriptor",
				},
			}

		case descriptor.Table:
			currentPA = d.NextTableAddress()
			continue

		case descriptor.Block:
			pa := d.OutputAddress() | in.Granule.BlockOffset(in.IPA, level)
			return Result{PA: pa, Events: events}

		case descriptor.Page:
			pa := d.OutputAddress() | in.Granule.PageOffset(in.IPA)
			return Result{PA: pa, Events: events}
		}
	}

	// Unreachable with well-formed tables: level 3 completed without
	// resolving to a leaf or an Invalid classification.
	return Result{
		Events: events,
		Fault: &faultpkg.Fault{
			Kind:            faultpkg.Translation,
			Stage:           2,
			Level:           3,
			FaultingAddress: in.IPA,
			HasFarEL2:       true,
			FarEL2:          in.IPA,
			Message:         "stage-2 walk exhausted levels without a leaf",
		},
	}
}
