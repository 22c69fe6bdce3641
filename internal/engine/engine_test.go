package engine

import (
	"fmt"
	"testing"

	"github.com/hemindesai04/page-table-walker/internal/access"
	"github.com/hemindesai04/page-table-walker/internal/addrmodel"
	"github.com/hemindesai04/page-table-walker/internal/faultpkg"
	"github.com/hemindesai04/page-table-walker/internal/tables"
)

// identityStage2 builds a stage-2 table store that maps every ipa in ipas
// to itself (PA == IPA) via a full walk from startLevel down to level 3,
// sharing table nodes wherever two ipas' index paths coincide, the way a
// real hardware-built identity map would. descriptors below the leaf are
// plain TABLE descriptors; the leaf at level 3 is always a PAGE.
func identityStage2(granule addrmodel.Config, vttbr uint64, startLevel int, ipas ...uint64) map[uint64]uint64 {
	out := map[uint64]uint64{}
	nodeFor := map[string]uint64{}
	nextTable := uint64(0x9000_0000)

	for _, ipa := range ipas {
		cur := vttbr
		path := ""
		for level := startLevel; level <= 3; level++ {
			idx := granule.Index(ipa, level)
			descPA := granule.DescriptorAddress(cur, idx)
			path = fmt.Sprintf("%s/%d:%d", path, level, idx)
			if level == 3 {
				out[descPA] = (ipa &^ 0xFFF) | 0b11
				continue
			}
			child, ok := nodeFor[path]
			if !ok {
				child = nextTable
				nextTable += 0x1000
				nodeFor[path] = child
			}
			out[descPA] = child | 0b11
			cur = child
		}
	}
	return out
}

// stage1Chain builds a stage-1 table store implementing a pure TABLE chain
// from tableIPAs[0] (the TTBR-rooted table, consulted at level startLevel)
// down to a leaf at level 3, whose raw word is leafValue.
func stage1Chain(granule addrmodel.Config, va uint64, startLevel int, tableIPAs []uint64, leafValue uint64) map[uint64]uint64 {
	out := map[uint64]uint64{}
	for i, level := 0, startLevel; level < 3; i, level = i+1, level+1 {
		idx := granule.Index(va, level)
		descPA := granule.DescriptorAddress(tableIPAs[i], idx)
		out[descPA] = tableIPAs[i+1] | 0b11
	}
	idx3 := granule.Index(va, 3)
	out[granule.DescriptorAddress(tableIPAs[len(tableIPAs)-1], idx3)] = leafValue
	return out
}

func baseRequest(granule addrmodel.Config, va uint64, ttbr0, vttbr uint64, s1, s2 map[uint64]uint64, at access.Type, priv access.Privilege) Request {
	return Request{
		VA:         va,
		AccessType: at,
		Privilege:  priv,
		Registers: Registers{
			TTBR0EL1: ttbr0,
			VTTBREL2: vttbr,
			TCREL1:   TxSZ{T0SZ: 64 - granule.MaxVABits(granule.StartingLevel(48)), T1SZ: 16},
			VTCREL2:  VTCR{T0SZ: 16, SL0: 0}, // stage-2 walks start at L0
		},
		Arch: Arch{
			GranuleKB: int(granule.Granule),
			VABits:    48,
			IPABits:   48,
			PABits:    48,
		},
		Stage1Tables: tables.NewStore(s1),
		Stage2Tables: tables.NewStore(s2),
	}
}

// TestWalkHappyPath4KB drives a full four-level stage-1 walk (table, table,
// table, page) over an identity-mapped stage-2, starting at level 0.
func TestWalkHappyPath4KB(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_4020_1030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	tableIPAs := []uint64{ttbr0, 0x4001000, 0x4002000, 0x4003000}
	const pageIPA = uint64(0x0000_0000_5000_0000)

	leaf := (pageIPA &^ 0xFFF) | 0b11 | (0b01 << 6) // PAGE, AP=01 (EL0+EL1 rw)
	s1 := stage1Chain(granule, va, 0, tableIPAs, leaf)
	s2 := identityStage2(granule, vttbr, 0, append(append([]uint64{}, tableIPAs...), pageIPA)...)

	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Read, access.EL0)
	res := Walk(req)

	if res.Status != Success {
		t.Fatalf("status = %s, want SUCCESS (fault=%v)", res.Status, res.Fault)
	}
	wantIPA := pageIPA | granule.PageOffset(va)
	if !res.HasIPA || res.IPA != wantIPA {
		t.Errorf("IPA = 0x%X, want 0x%X", res.IPA, wantIPA)
	}
	if !res.HasPA || res.PA != wantIPA {
		t.Errorf("PA = 0x%X, want 0x%X (identity stage-2)", res.PA, wantIPA)
	}
	// 4 stage-1 levels, each preceded by a 4-level nested stage-2 walk
	// (4*5 = 20), plus the final 4-level stage-2 walk on the leaf IPA.
	if len(res.Events) != 24 {
		t.Errorf("total_memory_accesses = %d, want 24", len(res.Events))
	}
	if !res.HasPermissions || !res.Permissions.EL0R || !res.Permissions.EL0W || !res.Permissions.EL1R || !res.Permissions.EL1W {
		t.Errorf("AP=01 should grant EL0/EL1 read+write, got %+v", res.Permissions)
	}
	assertEventIDsContiguous(t, res.Events)
}

// TestWalkS1TranslationFaultAtL2 zeroes the L2 stage-1 descriptor and
// checks the resulting translation fault and truncated trace.
func TestWalkS1TranslationFaultAtL2(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_4020_1030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	tableIPAs := []uint64{ttbr0, 0x4001000, 0x4002000, 0x4003000}

	s1 := stage1Chain(granule, va, 0, tableIPAs, 0x0000_0000_5000_0013)
	l2Idx := granule.Index(va, 2)
	s1[granule.DescriptorAddress(tableIPAs[2], l2Idx)] = 0 // INVALID at L2
	s2 := identityStage2(granule, vttbr, 0, tableIPAs...)

	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Read, access.EL0)
	res := Walk(req)

	if res.Status != S1Fault {
		t.Fatalf("status = %s, want S1_FAULT", res.Status)
	}
	if res.Fault == nil || res.Fault.Kind != faultpkg.Translation || res.Fault.Stage != 1 || res.Fault.Level != 2 {
		t.Fatalf("fault = %+v, want {TRANSLATION, stage=1, level=2}", res.Fault)
	}
	if !res.Fault.HasFarEL1 || res.Fault.FarEL1 != va {
		t.Errorf("far_el1 = 0x%X, want VA 0x%X", res.Fault.FarEL1, va)
	}
	if res.HasIPA {
		t.Errorf("IPA should not be reported on an S1 fault")
	}
	last := res.Events[len(res.Events)-1]
	if last.Result != "INVALID" || last.Stage != 1 || last.Level != 2 {
		t.Errorf("last event = %+v, want the invalid L2 stage-1 event", last)
	}
	assertEventIDsContiguous(t, res.Events)
}

// TestWalkS2FaultTranslatingS1Table covers the case where the stage-2
// sub-walk resolving a stage-1 table's own IPA faults before the stage-1
// descriptor at that level is ever fetched.
func TestWalkS2FaultTranslatingS1Table(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_4020_1030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	tableIPAs := []uint64{ttbr0, 0x4001000, 0x4002000, 0x4003000}
	l1TableIPA := tableIPAs[1]

	s1 := stage1Chain(granule, va, 0, tableIPAs, 0x0000_0000_5000_0013)
	s2 := identityStage2(granule, vttbr, 0, tableIPAs...)
	// Corrupt the stage-2 leaf that resolves the L1 table's own IPA.
	l3Idx := granule.Index(l1TableIPA, 3)
	var cur uint64 = vttbr
	for level := 0; level < 3; level++ {
		idx := granule.Index(l1TableIPA, level)
		cur = s2[granule.DescriptorAddress(cur, idx)] &^ 0xFFF
	}
	s2[granule.DescriptorAddress(cur, l3Idx)] = 0

	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Read, access.EL0)
	res := Walk(req)

	if res.Status != S2Fault {
		t.Fatalf("status = %s, want S2_FAULT", res.Status)
	}
	if res.Fault == nil || res.Fault.Kind != faultpkg.Translation || res.Fault.Stage != 2 || res.Fault.Level != 3 {
		t.Fatalf("fault = %+v, want {TRANSLATION, stage=2, level=3}", res.Fault)
	}
	if !res.Fault.HasFarEL2 || res.Fault.FarEL2 != l1TableIPA {
		t.Errorf("far_el2 = 0x%X, want the L1 table's IPA 0x%X", res.Fault.FarEL2, l1TableIPA)
	}
	// The L0 stage-1 event, the L1 prologue (ending in the faulting stage-2
	// event), and a sentinel L1 stage-1 event marked INVALID should appear;
	// no L2/L3 stage-1 events, since the L1 descriptor was never fetched.
	var s1Events []TraceEvent
	for _, ev := range res.Events {
		if ev.Stage == 1 {
			s1Events = append(s1Events, ev)
		}
	}
	if len(s1Events) != 2 || s1Events[0].Level != 0 || s1Events[1].Level != 1 {
		t.Fatalf("stage-1 events = %+v, want levels [0, 1]", s1Events)
	}
	if s1Events[1].Result != "INVALID" {
		t.Errorf("L1 stage-1 event result = %s, want INVALID", s1Events[1].Result)
	}
	assertEventIDsContiguous(t, res.Events)
}

// TestWalkS2FinalFault covers the case where stage-1 fully resolves the VA
// to an IPA (with valid permissions) but the final stage-2 walk translating
// that IPA to a PA faults. Permissions computed during the successful
// stage-1 walk must still be reported, since stage-1 genuinely succeeded.
func TestWalkS2FinalFault(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_4020_1030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	tableIPAs := []uint64{ttbr0, 0x4001000, 0x4002000, 0x4003000}
	const pageIPA = uint64(0x0000_0000_5000_0000)

	leaf := (pageIPA &^ 0xFFF) | 0b11 | (0b01 << 6) // PAGE, AP=01 (EL0+EL1 rw)
	s1 := stage1Chain(granule, va, 0, tableIPAs, leaf)
	// Only the stage-1 tables are identity-mapped in stage-2; the final
	// leaf IPA is left unmapped, so the stage-2 walk translating it faults.
	s2 := identityStage2(granule, vttbr, 0, tableIPAs...)

	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Read, access.EL0)
	res := Walk(req)

	if res.Status != S2FinalFault {
		t.Fatalf("status = %s, want S2_FINAL_FAULT (fault=%v)", res.Status, res.Fault)
	}
	if res.Fault == nil || res.Fault.Kind != faultpkg.Translation || res.Fault.Stage != 2 {
		t.Fatalf("fault = %+v, want {TRANSLATION, stage=2}", res.Fault)
	}
	wantIPA := pageIPA | granule.PageOffset(va)
	if !res.HasIPA || res.IPA != wantIPA {
		t.Errorf("IPA = 0x%X, want 0x%X", res.IPA, wantIPA)
	}
	if res.HasPA {
		t.Errorf("PA should not be reported when the final stage-2 walk faults")
	}
	if !res.HasPermissions || !res.Permissions.EL0R || !res.Permissions.EL0W || !res.Permissions.EL1R || !res.Permissions.EL1W {
		t.Errorf("stage-1 already succeeded; AP=01 permissions should still be reported, got %+v", res.Permissions)
	}
	assertEventIDsContiguous(t, res.Events)
}

// TestWalkPermissionFaultEL0Write checks that an EL0 write to an AP=10
// (EL1 read-only) page permission-faults at the leaf level.
func TestWalkPermissionFaultEL0Write(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_4020_1030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	tableIPAs := []uint64{ttbr0, 0x4001000, 0x4002000, 0x4003000}
	const pageIPA = uint64(0x0000_0000_5000_0000)

	leaf := (pageIPA &^ 0xFFF) | 0b11 | (0b10 << 6) // PAGE, AP=10: EL1 ro, EL0 none
	s1 := stage1Chain(granule, va, 0, tableIPAs, leaf)
	s2 := identityStage2(granule, vttbr, 0, append(append([]uint64{}, tableIPAs...), pageIPA)...)

	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Write, access.EL0)
	res := Walk(req)

	if res.Status != S1Fault {
		t.Fatalf("status = %s, want S1_FAULT", res.Status)
	}
	if res.Fault == nil || res.Fault.Kind != faultpkg.Permission || res.Fault.Stage != 1 || res.Fault.Level != 3 {
		t.Fatalf("fault = %+v, want {PERMISSION, stage=1, level=3}", res.Fault)
	}
	if !res.Fault.HasAccessType || res.Fault.AccessType != access.Write {
		t.Errorf("fault access_type = %v, want WRITE", res.Fault.AccessType)
	}
	if res.HasIPA {
		t.Errorf("IPA should not be reported on a permission fault")
	}
}

// TestWalkBlockDescriptorAtL2 maps a 2 MB block at level 2, reached by
// starting the walk directly at L2 (VA bits <= 30 under the TCR
// starting-level rule).
func TestWalkBlockDescriptorAtL2(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_0015_5030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	const blockOutput = uint64(0x0000_0000_8000_0000)

	l2Idx := granule.Index(va, 2)
	s1 := map[uint64]uint64{
		granule.DescriptorAddress(ttbr0, l2Idx): blockOutput | 0b01 | (0b01 << 6), // BLOCK, AP=01
	}
	finalIPA := blockOutput | granule.BlockOffset(va, 2)
	s2 := identityStage2(granule, vttbr, 0, ttbr0, finalIPA)

	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Read, access.EL0)
	req.Registers.TCREL1.T0SZ = 34 // VA bits = 30 -> StartingLevel = 2

	res := Walk(req)
	if res.Status != Success {
		t.Fatalf("status = %s, want SUCCESS (fault=%v)", res.Status, res.Fault)
	}
	wantIPA := blockOutput | granule.BlockOffset(va, 2)
	if res.IPA != wantIPA {
		t.Errorf("IPA = 0x%X, want 0x%X (block base | L2 block offset)", res.IPA, wantIPA)
	}
}

// TestWalkTTBR1Selection checks that a VA whose upper bits are all set is
// routed through TTBR1_EL1.
func TestWalkTTBR1Selection(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va     = uint64(0xFFFF_FF80_0000_1000)
		ttbr1  = uint64(0x0000_0000_7000_0000)
		vttbr  = uint64(0x0000_0001_0000_0000)
		vaBits = 48
	)
	tableIPAs := []uint64{ttbr1, 0x7001000, 0x7002000, 0x7003000}
	const finalIPA = uint64(0x0000_0000_6000_0000)
	leaf := finalIPA | 0b11 | (0b01 << 6) // PAGE, AP=01

	s1 := stage1Chain(granule, va, 0, tableIPAs, leaf)
	s2 := identityStage2(granule, vttbr, 0, append(append([]uint64{}, tableIPAs...), finalIPA)...)

	req := Request{
		VA:         va,
		AccessType: access.Read,
		Privilege:  access.EL0,
		Registers: Registers{
			TTBR1EL1: ttbr1,
			VTTBREL2: vttbr,
			TCREL1:   TxSZ{T0SZ: 16, T1SZ: 16},
			VTCREL2:  VTCR{T0SZ: 16, SL0: 0},
		},
		Arch:         Arch{GranuleKB: 4, VABits: vaBits, IPABits: 48, PABits: 48},
		Stage1Tables: tables.NewStore(s1),
		Stage2Tables: tables.NewStore(s2),
	}

	res := Walk(req)
	if !res.Snapshots[0].UsesTTBR1 {
		t.Fatalf("uses_ttbr1 should be true for a VA with all-one upper bits")
	}
	l0Idx := granule.Index(va, 0)
	wantDescPA := ttbr1 + l0Idx*8
	var found bool
	for _, ev := range res.Events {
		if ev.Stage == 1 && ev.Level == 0 {
			found = true
			if ev.DescriptorPA != wantDescPA {
				t.Errorf("L0 stage-1 descriptor PA = 0x%X, want TTBR1 + 8*l0_index = 0x%X", ev.DescriptorPA, wantDescPA)
			}
		}
	}
	if !found {
		t.Fatalf("no stage-1 L0 event found in trace")
	}
}

// TestWalkEventIDMonotonicity checks that IDs strictly increase and form
// 1..N without gaps.
func TestWalkEventIDMonotonicity(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_4020_1030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	tableIPAs := []uint64{ttbr0, 0x4001000, 0x4002000, 0x4003000}
	const pageIPA = uint64(0x0000_0000_5000_0000)
	leaf := (pageIPA &^ 0xFFF) | 0b11 | (0b01 << 6)
	s1 := stage1Chain(granule, va, 0, tableIPAs, leaf)
	s2 := identityStage2(granule, vttbr, 0, append(append([]uint64{}, tableIPAs...), pageIPA)...)
	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Read, access.EL0)

	res := Walk(req)
	assertEventIDsContiguous(t, res.Events)
	if len(res.Events) > 24 {
		t.Errorf("event count %d exceeds the 4KB/48-bit upper bound of 24", len(res.Events))
	}
}

// TestWalkDeterminism checks that the same Request produces identical
// results across repeated calls; Walk itself carries no timestamp.
func TestWalkDeterminism(t *testing.T) {
	granule, _ := addrmodel.ConfigFor(4)
	const (
		va    = uint64(0x0000_0000_4020_1030)
		ttbr0 = uint64(0x0000_0000_4000_0000)
		vttbr = uint64(0x0000_0001_0000_0000)
	)
	tableIPAs := []uint64{ttbr0, 0x4001000, 0x4002000, 0x4003000}
	const pageIPA = uint64(0x0000_0000_5000_0000)
	leaf := (pageIPA &^ 0xFFF) | 0b11 | (0b01 << 6)
	s1 := stage1Chain(granule, va, 0, tableIPAs, leaf)
	s2 := identityStage2(granule, vttbr, 0, append(append([]uint64{}, tableIPAs...), pageIPA)...)
	req := baseRequest(granule, va, ttbr0, vttbr, s1, s2, access.Read, access.EL0)

	first := Walk(req)
	second := Walk(req)
	if first.Status != second.Status || first.IPA != second.IPA || first.PA != second.PA {
		t.Fatalf("Walk is not deterministic: %+v vs %+v", first, second)
	}
	if len(first.Events) != len(second.Events) {
		t.Fatalf("event count differs across identical calls: %d vs %d", len(first.Events), len(second.Events))
	}
	for i := range first.Events {
		if first.Events[i] != second.Events[i] {
			t.Fatalf("event %d differs across identical calls: %+v vs %+v", i, first.Events[i], second.Events[i])
		}
	}
}

func assertEventIDsContiguous(t *testing.T, events []TraceEvent) {
	t.Helper()
	for i, ev := range events {
		if ev.EventID != i+1 {
			t.Fatalf("event %d has EventID %d, want %d (IDs must be 1..N without gaps)", i, ev.EventID, i+1)
		}
	}
}
