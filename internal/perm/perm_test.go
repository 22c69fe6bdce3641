package perm

import (
	"testing"

	"github.com/hemindesai04/page-table-walker/internal/access"
)

func TestDeriveStage1APTable(t *testing.T) {
	tests := []struct {
		ap                     uint8
		el1r, el1w, el0r, el0w bool
	}{
		{0b00, true, true, false, false},
		{0b01, true, true, true, true},
		{0b10, true, false, false, false},
		{0b11, true, false, true, false},
	}
	for _, tt := range tests {
		p := DeriveStage1(tt.ap, false, false)
		if p.EL1R != tt.el1r || p.EL1W != tt.el1w || p.EL0R != tt.el0r || p.EL0W != tt.el0w {
			t.Errorf("AP=%02b: got %+v", tt.ap, p)
		}
	}
}

func TestDeriveStage1ExecuteNever(t *testing.T) {
	p := DeriveStage1(0b01, true, false)
	if p.EL0X {
		t.Errorf("UXN set: EL0X should be false")
	}
	if !p.EL1X {
		t.Errorf("PXN clear: EL1X should be true")
	}

	p2 := DeriveStage1(0b01, false, true)
	if !p2.EL0X {
		t.Errorf("UXN clear: EL0X should be true")
	}
	if p2.EL1X {
		t.Errorf("PXN set: EL1X should be false")
	}
}

func TestStage1AllowsGatesOnPrivilege(t *testing.T) {
	p := DeriveStage1(0b10, false, false) // EL1 ro, EL0 none
	if p.Allows(access.Read, access.EL0) {
		t.Errorf("EL0 should not be permitted to read with AP=10")
	}
	if !p.Allows(access.Read, access.EL1) {
		t.Errorf("EL1 should be permitted to read with AP=10")
	}
	if p.Allows(access.Write, access.EL1) {
		t.Errorf("AP=10 is read-only; EL1 write should be denied")
	}
}

func TestDeriveStage2(t *testing.T) {
	tests := []struct {
		s2ap    uint8
		xn      bool
		r, w, x bool
	}{
		{0b00, false, false, false, true},
		{0b01, false, true, false, true},
		{0b10, false, false, true, true},
		{0b11, true, true, true, false},
	}
	for _, tt := range tests {
		got := DeriveStage2(tt.s2ap, tt.xn)
		if got.R != tt.r || got.W != tt.w || got.X != tt.x {
			t.Errorf("DeriveStage2(%02b, xn=%t) = %+v, want R=%t W=%t X=%t",
				tt.s2ap, tt.xn, got, tt.r, tt.w, tt.x)
		}
	}
}
