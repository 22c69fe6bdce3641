// Package report builds the JSON result document from an engine.Result. It
// is a pure function of (Result, name, description, the request's VA,
// access type and privilege, timestamp); keeping the
// timestamp out of the engine is what lets two runs of the same scenario be
// compared byte for byte, timestamp aside.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hemindesai04/page-table-walker/internal/access"
	"github.com/hemindesai04/page-table-walker/internal/engine"
)

// Document is the top-level JSON result shape the visualizer consumes.
type Document struct {
	ScenarioName string    `json:"scenario_name"`
	Description  string    `json:"description"`
	Timestamp    string    `json:"timestamp"`
	Input        Input     `json:"input"`
	Result       Outcome   `json:"result"`
	WalkTrace    WalkTrace `json:"walk_trace"`
	Fault        *Fault    `json:"fault,omitempty"`
	FinalPerms   *Perms    `json:"final_permissions,omitempty"`
	FinalAttrs   *Attrs    `json:"final_attributes,omitempty"`
}

// Input mirrors the memory_access block of the request that produced this
// report.
type Input struct {
	VirtualAddress string `json:"virtual_address"`
	AccessType     string `json:"access_type"`
	PrivilegeLevel string `json:"privilege_level"`
}

// Outcome is the result.* sub-document.
type Outcome struct {
	Status              string  `json:"status"`
	FinalPA             *string `json:"final_pa,omitempty"`
	IPA                 *string `json:"ipa,omitempty"`
	TotalMemoryAccesses int     `json:"total_memory_accesses"`
}

// WalkTrace is the walk_trace.* sub-document.
type WalkTrace struct {
	Events            []Event            `json:"events"`
	RegisterSnapshots []RegisterSnapshot `json:"register_snapshots"`
}

// Event is one trace event, with addresses and descriptor values formatted
// 0x%016X and indices 0x%03X.
type Event struct {
	EventID         int    `json:"event_id"`
	EventType       string `json:"event_type"`
	Stage           int    `json:"stage"`
	Level           int    `json:"level"`
	Index           string `json:"index"`
	Purpose         string `json:"purpose"`
	Address         string `json:"address"`
	DescriptorValue string `json:"descriptor_value"`
	Result          string `json:"result"`
	Output          string `json:"output"`
}

// RegisterSnapshot is one named register snapshot.
type RegisterSnapshot struct {
	Label     string  `json:"label"`
	TTBR0EL1  string  `json:"TTBR0_EL1"`
	TTBR1EL1  string  `json:"TTBR1_EL1"`
	VTTBREL2  string  `json:"VTTBR_EL2"`
	UsesTTBR1 bool    `json:"uses_ttbr1"`
	IPA       *string `json:"ipa,omitempty"`
}

// Fault is the wire form of a fault record.
type Fault struct {
	Kind            string  `json:"kind"`
	Stage           int     `json:"stage"`
	Level           int     `json:"level"`
	FaultingAddress string  `json:"faulting_address"`
	AccessType      *string `json:"access_type,omitempty"`
	Message         string  `json:"message"`
	FarEL1          *string `json:"far_el1,omitempty"`
	FarEL2          *string `json:"far_el2,omitempty"`
}

// Perms is the six-boolean final permission set.
type Perms struct {
	EL0R bool `json:"el0_r"`
	EL0W bool `json:"el0_w"`
	EL0X bool `json:"el0_x"`
	EL1R bool `json:"el1_r"`
	EL1W bool `json:"el1_w"`
	EL1X bool `json:"el1_x"`
}

// Attrs is the final leaf descriptor's non-permission attributes.
type Attrs struct {
	AF        bool   `json:"af"`
	SH        int    `json:"sh"`
	AttrIndex int    `json:"attr_index"`
	NG        bool   `json:"ng"`
	NS        bool   `json:"ns"`
	UXN       bool   `json:"uxn"`
	PXN       bool   `json:"pxn"`
}

func hex64(v uint64) string { return fmt.Sprintf("0x%016X", v) }

func hex12(v uint64) string { return fmt.Sprintf("0x%03X", v) }

func hex64Ptr(v uint64) *string {
	s := hex64(v)
	return &s
}

// Build assembles a Document from a completed engine.Result.
func Build(res *engine.Result, scenarioName, description string, va uint64, at access.Type, priv access.Privilege, ts time.Time) Document {
	doc := Document{
		ScenarioName: scenarioName,
		Description:  description,
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
		Input: Input{
			VirtualAddress: hex64(va),
			AccessType:     at.String(),
			PrivilegeLevel: priv.String(),
		},
		Result: Outcome{
			Status:              res.Status.String(),
			TotalMemoryAccesses: len(res.Events),
		},
	}

	if res.HasIPA {
		doc.Result.IPA = hex64Ptr(res.IPA)
	}
	if res.HasPA {
		doc.Result.FinalPA = hex64Ptr(res.PA)
	}

	for _, ev := range res.Events {
		doc.WalkTrace.Events = append(doc.WalkTrace.Events, Event{
			EventID:         ev.EventID,
			EventType:       "T",
			Stage:           ev.Stage,
			Level:           ev.Level,
			Index:           hex12(ev.Index),
			Purpose:         ev.Purpose,
			Address:         hex64(ev.DescriptorPA),
			DescriptorValue: hex64(ev.DescriptorValue),
			Result:          ev.Result,
			Output:          hex64(ev.Output),
		})
	}
	if doc.WalkTrace.Events == nil {
		doc.WalkTrace.Events = []Event{}
	}

	for _, snap := range res.Snapshots {
		rs := RegisterSnapshot{
			Label:     snap.Label,
			TTBR0EL1:  hex64(snap.TTBR0),
			TTBR1EL1:  hex64(snap.TTBR1),
			VTTBREL2:  hex64(snap.VTTBR),
			UsesTTBR1: snap.UsesTTBR1,
		}
		if snap.HasIPA {
			rs.IPA = hex64Ptr(snap.IPA)
		}
		doc.WalkTrace.RegisterSnapshots = append(doc.WalkTrace.RegisterSnapshots, rs)
	}

	if res.Fault != nil {
		f := &Fault{
			Kind:            res.Fault.Kind.String(),
			Stage:           res.Fault.Stage,
			Level:           res.Fault.Level,
			FaultingAddress: hex64(res.Fault.FaultingAddress),
			Message:         res.Fault.Message,
		}
		if res.Fault.HasAccessType {
			s := res.Fault.AccessType.String()
			f.AccessType = &s
		}
		if res.Fault.HasFarEL1 {
			f.FarEL1 = hex64Ptr(res.Fault.FarEL1)
		}
		if res.Fault.HasFarEL2 {
			f.FarEL2 = hex64Ptr(res.Fault.FarEL2)
		}
		doc.Fault = f
	}

	if res.HasPermissions {
		doc.FinalPerms = &Perms{
			EL0R: res.Permissions.EL0R, EL0W: res.Permissions.EL0W, EL0X: res.Permissions.EL0X,
			EL1R: res.Permissions.EL1R, EL1W: res.Permissions.EL1W, EL1X: res.Permissions.EL1X,
		}
		doc.FinalAttrs = &Attrs{
			AF:        res.Attributes.AF,
			SH:        int(res.Attributes.SH),
			AttrIndex: int(res.Attributes.AttrIndex),
			NG:        res.Attributes.NG,
			NS:        res.Attributes.NS,
			UXN:       res.Attributes.UXN,
			PXN:       res.Attributes.PXN,
		}
	}

	return doc
}

// MarshalIndent serializes doc the way the CLI writes result files.
func MarshalIndent(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
