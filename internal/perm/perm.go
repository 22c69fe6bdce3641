// Package perm derives the combined stage-1 and stage-2 permission sets
// from descriptor attribute bits.
package perm

import "github.com/hemindesai04/page-table-walker/internal/access"

// Stage1 is the six-boolean {R,W,X} x {EL0,EL1} permission set derived from
// a leaf's AP bits plus the accumulated UXN/PXN limits.
type Stage1 struct {
	EL0R, EL0W, EL0X bool
	EL1R, EL1W, EL1X bool
}

// DeriveStage1 builds a Stage1 permission set from the leaf AP field and the
// final (descriptor-bit OR'd with table-limit) UXN/PXN values, per the
// AP[7:6] encoding: 00 EL1-rw, 01 both-rw, 10 EL1-ro, 11 both-ro.
func DeriveStage1(ap uint8, finalUXN, finalPXN bool) Stage1 {
	var p Stage1
	switch ap & 0b11 {
	case 0b00: // EL1 rw, EL0 none
		p.EL1R, p.EL1W = true, true
	case 0b01: // EL1 rw, EL0 rw
		p.EL1R, p.EL1W = true, true
		p.EL0R, p.EL0W = true, true
	case 0b10: // EL1 ro, EL0 none
		p.EL1R = true
	case 0b11: // EL1 ro, EL0 ro
		p.EL1R = true
		p.EL0R = true
	}
	p.EL1X = !finalPXN
	p.EL0X = !finalUXN
	return p
}

// Allows reports whether p permits the requested access at the given
// privilege level.
func (p Stage1) Allows(at access.Type, priv access.Privilege) bool {
	el0 := priv == access.EL0
	switch at {
	case access.Read:
		if el0 {
			return p.EL0R
		}
		return p.EL1R
	case access.Write:
		if el0 {
			return p.EL0W
		}
		return p.EL1W
	case access.Execute:
		if el0 {
			return p.EL0X
		}
		return p.EL1X
	default:
		return false
	}
}

// Stage2 is the three-boolean {R,W,X} permission set derived from a
// stage-2 leaf's S2AP/XN bits. The walker never consults this on the final
// IPA->PA walk; it is computed and exposed for informational purposes only.
type Stage2 struct {
	R, W, X bool
}

// DeriveStage2 builds a Stage2 permission set from S2AP[1:0] and XN:
// R = s2ap in {01,11}, W = s2ap in {10,11}, X = !xn.
func DeriveStage2(s2ap uint8, xn bool) Stage2 {
	return Stage2{
		R: s2ap == 0b01 || s2ap == 0b11,
		W: s2ap == 0b10 || s2ap == 0b11,
		X: !xn,
	}
}
