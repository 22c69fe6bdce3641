// Package scenario ingests a JSON (or YAML) scenario document, validates
// every configuration rule before the walkers ever run, and produces the
// engine.Request plus table stores the orchestrator needs.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hemindesai04/page-table-walker/internal/access"
	"github.com/hemindesai04/page-table-walker/internal/addrmodel"
	"github.com/hemindesai04/page-table-walker/internal/engine"
	"github.com/hemindesai04/page-table-walker/internal/tables"
)

// ConfigError reports a scenario that failed validation before any walk
// ran: an unsupported granule, an out-of-range TxSZ/SL0, or malformed hex.
// These are parser-side rejections, never walk faults.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("scenario config error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("scenario config error: %s=%q: %s", e.Field, e.Value, e.Reason)
}

func configErr(field, value, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// Scenario is the validated, in-memory form of a scenario document, ready
// to hand to engine.Walk.
type Scenario struct {
	Name        string
	Description string
	Request     engine.Request
}

type rawEntry struct {
	Value   string `json:"value" yaml:"value"`
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

type rawScenario struct {
	ScenarioName string `json:"scenario_name" yaml:"scenario_name"`
	Description  string `json:"description" yaml:"description"`

	Architecture struct {
		GranuleSizeKB   int  `json:"granule_size_kb" yaml:"granule_size_kb"`
		VABits          int  `json:"va_bits" yaml:"va_bits"`
		PABits          int  `json:"pa_bits" yaml:"pa_bits"`
		IPABits         int  `json:"ipa_bits" yaml:"ipa_bits"`
		FeatD128Enabled bool `json:"feat_d128_enabled" yaml:"feat_d128_enabled"`
	} `json:"architecture" yaml:"architecture"`

	Registers struct {
		TTBR0EL1 string `json:"TTBR0_EL1" yaml:"TTBR0_EL1"`
		TTBR1EL1 string `json:"TTBR1_EL1" yaml:"TTBR1_EL1"`
		VTTBREL2 string `json:"VTTBR_EL2" yaml:"VTTBR_EL2"`
		TCREL1   struct {
			T0SZ int `json:"T0SZ" yaml:"T0SZ"`
			T1SZ int `json:"T1SZ" yaml:"T1SZ"`
		} `json:"TCR_EL1" yaml:"TCR_EL1"`
		VTCREL2 struct {
			T0SZ int `json:"T0SZ" yaml:"T0SZ"`
			SL0  int `json:"SL0" yaml:"SL0"`
		} `json:"VTCR_EL2" yaml:"VTCR_EL2"`
	} `json:"registers" yaml:"registers"`

	MemoryAccess struct {
		VirtualAddress string `json:"virtual_address" yaml:"virtual_address"`
		AccessType     string `json:"access_type" yaml:"access_type"`
		PrivilegeLevel string `json:"privilege_level" yaml:"privilege_level"`
	} `json:"memory_access" yaml:"memory_access"`

	TranslationTables struct {
		Stage1 map[string]rawEntry `json:"stage1" yaml:"stage1"`
		Stage2 map[string]rawEntry `json:"stage2" yaml:"stage2"`
	} `json:"translation_tables" yaml:"translation_tables"`
}

// Load reads and validates a scenario file. JSON is the canonical format;
// a ".yaml"/".yml" extension is decoded with gopkg.in/yaml.v3 instead, as
// an ingestion convenience. The validated Scenario is identical either way.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var raw rawScenario
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse scenario %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse scenario %s: %w", path, err)
		}
	}

	return fromRaw(raw)
}

func fromRaw(raw rawScenario) (*Scenario, error) {
	if _, ok := addrmodel.ConfigFor(raw.Architecture.GranuleSizeKB); !ok {
		return nil, configErr("architecture.granule_size_kb",
			strconv.Itoa(raw.Architecture.GranuleSizeKB), "must be 4, 16, or 64")
	}

	if raw.Architecture.VABits <= 0 || raw.Architecture.VABits > 64 {
		return nil, configErr("architecture.va_bits", strconv.Itoa(raw.Architecture.VABits), "out of range")
	}
	if raw.Architecture.IPABits <= 0 || raw.Architecture.IPABits > 64 {
		return nil, configErr("architecture.ipa_bits", strconv.Itoa(raw.Architecture.IPABits), "out of range")
	}
	if raw.Architecture.PABits <= 0 || raw.Architecture.PABits > 64 {
		return nil, configErr("architecture.pa_bits", strconv.Itoa(raw.Architecture.PABits), "out of range")
	}

	if err := validateTxSZ("registers.TCR_EL1.T0SZ", raw.Registers.TCREL1.T0SZ); err != nil {
		return nil, err
	}
	if err := validateTxSZ("registers.TCR_EL1.T1SZ", raw.Registers.TCREL1.T1SZ); err != nil {
		return nil, err
	}
	if err := validateTxSZ("registers.VTCR_EL2.T0SZ", raw.Registers.VTCREL2.T0SZ); err != nil {
		return nil, err
	}
	if raw.Registers.VTCREL2.SL0 < 0 || raw.Registers.VTCREL2.SL0 > 2 {
		return nil, configErr("registers.VTCR_EL2.SL0", strconv.Itoa(raw.Registers.VTCREL2.SL0), "must be 0, 1, or 2")
	}

	ttbr0, err := parseHex("registers.TTBR0_EL1", raw.Registers.TTBR0EL1)
	if err != nil {
		return nil, err
	}
	ttbr1, err := parseHex("registers.TTBR1_EL1", raw.Registers.TTBR1EL1)
	if err != nil {
		return nil, err
	}
	vttbr, err := parseHex("registers.VTTBR_EL2", raw.Registers.VTTBREL2)
	if err != nil {
		return nil, err
	}

	va, err := parseHex("memory_access.virtual_address", raw.MemoryAccess.VirtualAddress)
	if err != nil {
		return nil, err
	}
	if !addrmodel.ValidUpperBits(va, raw.Architecture.VABits) {
		return nil, configErr("memory_access.virtual_address", raw.MemoryAccess.VirtualAddress,
			"upper bits are neither all zero (TTBR0) nor all one (TTBR1)")
	}

	accessType, err := access.ParseType(raw.MemoryAccess.AccessType)
	if err != nil {
		return nil, configErr("memory_access.access_type", raw.MemoryAccess.AccessType, err.Error())
	}
	privilege, err := access.ParsePrivilege(raw.MemoryAccess.PrivilegeLevel)
	if err != nil {
		return nil, configErr("memory_access.privilege_level", raw.MemoryAccess.PrivilegeLevel, err.Error())
	}

	stage1, err := buildStore("translation_tables.stage1", raw.TranslationTables.Stage1)
	if err != nil {
		return nil, err
	}
	stage2, err := buildStore("translation_tables.stage2", raw.TranslationTables.Stage2)
	if err != nil {
		return nil, err
	}

	return &Scenario{
		Name:        raw.ScenarioName,
		Description: raw.Description,
		Request: engine.Request{
			VA:         va,
			AccessType: accessType,
			Privilege:  privilege,
			Registers: engine.Registers{
				TTBR0EL1: ttbr0,
				TTBR1EL1: ttbr1,
				VTTBREL2: vttbr,
				TCREL1: engine.TxSZ{
					T0SZ: raw.Registers.TCREL1.T0SZ,
					T1SZ: raw.Registers.TCREL1.T1SZ,
				},
				VTCREL2: engine.VTCR{
					T0SZ: raw.Registers.VTCREL2.T0SZ,
					SL0:  raw.Registers.VTCREL2.SL0,
				},
			},
			Arch: engine.Arch{
				GranuleKB:       raw.Architecture.GranuleSizeKB,
				VABits:          raw.Architecture.VABits,
				IPABits:         raw.Architecture.IPABits,
				PABits:          raw.Architecture.PABits,
				FeatD128Enabled: raw.Architecture.FeatD128Enabled,
			},
			Stage1Tables: stage1,
			Stage2Tables: stage2,
		},
	}, nil
}

func validateTxSZ(field string, v int) error {
	if v < 0 || v > 39 {
		return configErr(field, strconv.Itoa(v), "must be in 0..39")
	}
	return nil
}

func buildStore(field string, entries map[string]rawEntry) (*tables.Store, error) {
	out := make(map[uint64]uint64, len(entries))
	for paHex, entry := range entries {
		pa, err := parseHex(field+"["+paHex+"]", paHex)
		if err != nil {
			return nil, err
		}
		value, err := parseHex(field+"["+paHex+"].value", entry.Value)
		if err != nil {
			return nil, err
		}
		out[pa] = value
	}
	return tables.NewStore(out), nil
}

func parseHex(field, s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if trimmed == "" {
		return 0, configErr(field, s, "missing hex value")
	}
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, configErr(field, s, "malformed hex: "+err.Error())
	}
	return v, nil
}
