// Package descriptor classifies and decodes a single 64-bit translation
// table descriptor word. Classification depends only on value[1:0] and the
// level the word was fetched at; field extraction is a set of bit slices.
package descriptor

import (
	"fmt"

	"github.com/hemindesai04/page-table-walker/internal/addrmodel"
)

// Kind is the classification of a descriptor word, derived rather than
// stored.
type Kind int

const (
	Invalid Kind = iota
	Table
	Block
	Page
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "INVALID"
	case Table:
		return "TABLE"
	case Block:
		return "BLOCK"
	case Page:
		return "PAGE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Classify derives a descriptor's Kind from its low two bits and the level
// it was fetched at:
//
//	...0          -> Invalid
//	01            -> Block (legal only at levels 1, 2; Invalid otherwise)
//	11, level < 3 -> Table
//	11, level = 3 -> Page
func Classify(level int, value uint64) Kind {
	switch value & 0b11 {
	case 0b01:
		if level == 1 || level == 2 {
			return Block
		}
		return Invalid
	case 0b11:
		if level < 3 {
			return Table
		}
		return Page
	default:
		return Invalid
	}
}

// baseAddressField is the 48-bit physical address field of a descriptor.
// Address extraction clears the level's offset bits out of this field, so
// table pointers come out page-aligned and block bases come out aligned to
// the block size.
const baseAddressField = 0x0000_FFFF_FFFF_FFFF

// Descriptor wraps a raw 64-bit word together with the level and granule it
// was fetched under, and exposes the attribute and address fields. All
// extraction is pure bit-slicing; nothing here touches memory.
type Descriptor struct {
	Value   uint64
	Level   int
	Granule addrmodel.Config
}

// New builds a Descriptor and classifies it in one step.
func New(value uint64, level int, granule addrmodel.Config) (Descriptor, Kind) {
	d := Descriptor{Value: value, Level: level, Granule: granule}
	return d, Classify(level, value)
}

// IsValid reports bit 0 of the raw word.
func (d Descriptor) IsValid() bool {
	return d.Value&1 != 0
}

func (d Descriptor) addressMask(level int) uint64 {
	offsetMask := uint64(1)<<uint(d.Granule.LevelShift[level]) - 1
	return baseAddressField &^ offsetMask
}

// NextTableAddress returns the next-level table's base address for a TABLE
// descriptor. The table is page-aligned under the configured granule, so the
// mask is the level-3 (page) mask regardless of the level this descriptor
// was fetched at.
func (d Descriptor) NextTableAddress() uint64 {
	return d.Value & d.addressMask(3)
}

// OutputAddress returns the output address base of a BLOCK or PAGE
// descriptor. The mask is level-dependent for BLOCK (bits 47:30 at L1 and
// 47:21 at L2 under the 4 KB granule); other granules and PAGE generalize
// via the same LevelShift-derived mask.
func (d Descriptor) OutputAddress() uint64 {
	return d.Value & d.addressMask(d.Level)
}

// AF is the Access Flag, bit 10. Surfaced on the leaf attributes; the
// walkers do not raise an Access Flag fault when AF=0.
func (d Descriptor) AF() bool { return d.bit(10) }

// SH is the shareability field, bits 9:8.
func (d Descriptor) SH() uint8 { return uint8(d.Value>>8) & 0b11 }

// AP is the access permission field, bits 7:6, on a leaf descriptor.
func (d Descriptor) AP() uint8 { return uint8(d.Value>>6) & 0b11 }

// NS is the Non-secure bit, bit 5, on a leaf descriptor. Secure/non-secure
// world transitions are not modeled, so nothing consults it; exposed for
// completeness of the leaf attribute set.
func (d Descriptor) NS() bool { return d.bit(5) }

// AttrIndex is the memory attribute index, bits 4:2, indexing MAIR.
func (d Descriptor) AttrIndex() uint8 { return uint8(d.Value>>2) & 0b111 }

// NG is the not-Global bit, bit 11.
func (d Descriptor) NG() bool { return d.bit(11) }

// UXN is the Unprivileged Execute Never bit, bit 54, on a leaf descriptor.
func (d Descriptor) UXN() bool { return d.bit(54) }

// PXN is the Privileged Execute Never bit, bit 53, on a leaf descriptor.
func (d Descriptor) PXN() bool { return d.bit(53) }

// APTable is the AP limit carried by a TABLE descriptor, bits 62:61.
func (d Descriptor) APTable() uint8 { return uint8(d.Value>>61) & 0b11 }

// UXNTable is the UXN limit carried by a TABLE descriptor, bit 60.
func (d Descriptor) UXNTable() bool { return d.bit(60) }

// PXNTable is the PXN limit carried by a TABLE descriptor, bit 59.
func (d Descriptor) PXNTable() bool { return d.bit(59) }

// NSTable is the NS limit carried by a TABLE descriptor, bit 63.
func (d Descriptor) NSTable() bool { return d.bit(63) }

func (d Descriptor) bit(n uint) bool {
	return (d.Value>>n)&1 != 0
}

// S2AP is the stage-2 access permission field, bits 7:6 (the S2AP[1:0]
// location coincides with the stage-1 AP field).
func (d Descriptor) S2AP() uint8 { return d.AP() }

// XN is the stage-2 execute-never bit, bit 54 (coincides with UXN's
// location; stage 2 has a single XN bit rather than separate UXN/PXN).
func (d Descriptor) XN() bool { return d.bit(54) }
