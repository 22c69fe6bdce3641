// Package addrmodel slices virtual and intermediate-physical addresses into
// per-level table indices and page/block offsets, for each of the three
// granule sizes the architecture supports. It has no notion of descriptors,
// tables, or faults — it is pure bit arithmetic over a granule configuration.
package addrmodel

import "fmt"

// Granule identifies the translation granule in KB.
type Granule int

const (
	Granule4KB  Granule = 4
	Granule16KB Granule = 16
	Granule64KB Granule = 64
)

func (g Granule) String() string {
	return fmt.Sprintf("%dKB", int(g))
}

// Config holds the per-granule constants from the level-shift table. Levels
// run 0..3; a granule whose minimum level is above 0 (64 KB) leaves the
// skipped levels' shift entries unused.
type Config struct {
	Granule Granule

	// OffsetBits is the number of low bits that form the in-page offset.
	OffsetBits int

	// IndexBits is the number of index bits per table level, except level 0
	// under the 16 KB granule, which is a single bit (see Index).
	IndexBits int

	// EntriesPerTable is 1<<IndexBits, except for the 16 KB granule's level 0.
	EntriesPerTable int

	// LevelShift[L] is the bit position at which level L's index begins. It
	// doubles as the block/page offset width at level L: a leaf at level L
	// covers exactly 1<<LevelShift[L] bytes.
	LevelShift [4]int

	// MinLevel is the shallowest level a walk may start at for this granule.
	// Levels below MinLevel do not exist and Index returns 0 for them.
	MinLevel int
}

var configs = map[Granule]Config{
	Granule4KB: {
		Granule:         Granule4KB,
		OffsetBits:      12,
		IndexBits:       9,
		EntriesPerTable: 512,
		LevelShift:      [4]int{39, 30, 21, 12},
		MinLevel:        0,
	},
	Granule16KB: {
		Granule:         Granule16KB,
		OffsetBits:      14,
		IndexBits:       11,
		EntriesPerTable: 2048,
		LevelShift:      [4]int{47, 36, 25, 14},
		MinLevel:        0,
	},
	Granule64KB: {
		Granule:         Granule64KB,
		OffsetBits:      16,
		IndexBits:       13,
		EntriesPerTable: 8192,
		LevelShift:      [4]int{0, 42, 29, 16},
		MinLevel:        1,
	},
}

// ConfigFor returns the Config for a granule size in KB, and whether it is
// one of the three granules this core supports.
func ConfigFor(granuleKB int) (Config, bool) {
	c, ok := configs[Granule(granuleKB)]
	return c, ok
}

// indexBits returns the number of index bits consumed by level, honoring the
// 16 KB granule's single-bit level 0.
func (c Config) indexBits(level int) int {
	if c.Granule == Granule16KB && level == 0 {
		return 1
	}
	return c.IndexBits
}

// Index extracts the table index for level from addr. Levels below
// c.MinLevel do not participate in the walk and always index 0.
func (c Config) Index(addr uint64, level int) uint64 {
	if level < c.MinLevel {
		return 0
	}
	bits := c.indexBits(level)
	mask := uint64(1)<<uint(bits) - 1
	return (addr >> uint(c.LevelShift[level])) & mask
}

// PageOffset extracts the in-page (level-3 leaf) offset from addr.
func (c Config) PageOffset(addr uint64) uint64 {
	mask := uint64(1)<<uint(c.OffsetBits) - 1
	return addr & mask
}

// BlockOffset extracts the in-block offset for a leaf at level. Level 3 is
// equivalent to PageOffset since LevelShift[3] == OffsetBits for every
// granule; levels 1 and 2 return the 1 GB / 2 MB offsets of the 4 KB
// granule, generalized to the other granules via LevelShift.
func (c Config) BlockOffset(addr uint64, level int) uint64 {
	mask := uint64(1)<<uint(c.LevelShift[level]) - 1
	return addr & mask
}

// DescriptorAddress computes the address of the descriptor at index within
// the table based at tableBase. Descriptors are always 8 bytes wide here;
// the 128-bit descriptor format is accepted as a configuration flag but
// never materialized.
func (c Config) DescriptorAddress(tableBase, index uint64) uint64 {
	return tableBase + index*8
}

// MaxVABits returns the largest VA/IPA size (in bits) that a walk starting at
// level can address, i.e. LevelShift[level] plus the index width of level.
// StartingLevel uses this to pick the deepest (highest-numbered) level that
// still covers the configured address size.
func (c Config) MaxVABits(level int) int {
	return c.LevelShift[level] + c.indexBits(level)
}

// StartingLevel picks the deepest (highest-numbered) table level whose
// MaxVABits still covers vaBits, i.e. the level that lets the walk skip as many levels as
// possible. For the 4 KB granule this reproduces the TCR starting-level
// rule exactly: VA bits >= 40 -> L0, 31-39 -> L1, <= 30 -> L2.
func (c Config) StartingLevel(vaBits int) int {
	for level := 3; level >= c.MinLevel; level-- {
		if c.MaxVABits(level) >= vaBits {
			return level
		}
	}
	return c.MinLevel
}

// UsesTTBR1 reports whether va falls in the TTBR1 region: its upper
// 64-vaBits bits are all set. A VA whose upper bits are neither all zero
// nor all one is a configuration error, not a translation fault; callers
// are expected to have validated that separately.
func UsesTTBR1(va uint64, vaBits int) bool {
	if vaBits >= 64 {
		return false
	}
	top := va >> uint(vaBits)
	want := uint64(1)<<uint(64-vaBits) - 1
	return top == want
}

// ValidUpperBits reports whether the upper 64-vaBits bits of va are uniform
// (all zero or all one), the invariant every well-formed VA must satisfy.
func ValidUpperBits(va uint64, vaBits int) bool {
	if vaBits >= 64 {
		return true
	}
	top := va >> uint(vaBits)
	allOnes := uint64(1)<<uint(64-vaBits) - 1
	return top == 0 || top == allOnes
}
