// Package walkevent defines the single record produced for every descriptor
// fetch a walk performs. A raw Event has no ID and no purpose text yet:
// both are assigned by the orchestrator when it flattens stage-1 and
// stage-2 events into the global, hardware-observable order.
package walkevent

import "github.com/hemindesai04/page-table-walker/internal/descriptor"

// Event is one descriptor fetch, pre-flattening: it knows its own stage,
// level, and the descriptor it read, but not its place in the global trace.
type Event struct {
	Stage           int
	Level           int
	Index           uint64
	DescriptorPA    uint64
	DescriptorValue uint64
	DescriptorKind  descriptor.Kind

	// OutputAddress is the address this descriptor resolves to: the next
	// table's base for a TABLE descriptor, the output base for BLOCK/PAGE,
	// or 0 for an Invalid descriptor.
	OutputAddress uint64
}

// OutputAddressFor computes the OutputAddress field for a classified
// descriptor.
func OutputAddressFor(d descriptor.Descriptor, kind descriptor.Kind) uint64 {
	switch kind {
	case descriptor.Table:
		return d.NextTableAddress()
	case descriptor.Block, descriptor.Page:
		return d.OutputAddress()
	default:
		return 0
	}
}
