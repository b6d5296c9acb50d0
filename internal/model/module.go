// internal/model/module.go
package model

import (
	"fmt"
	"strings"
)

// ModuleType is the semantic label of an installed gauge module
type ModuleType string

const (
	ModuleHotCathode             ModuleType = "HotCathode"
	ModuleColdCathode            ModuleType = "ColdCathode"
	ModulePirani                 ModuleType = "Pirani"
	ModuleConvectionPirani       ModuleType = "ConvectionPirani"
	ModuleDualThermocouple       ModuleType = "DualThermocouple"
	ModuleDualManometer          ModuleType = "DualManometer"
	ModuleSinglePirani           ModuleType = "SinglePirani"
	ModuleSingleConvectionPirani ModuleType = "SingleConvectionPirani"
	ModuleSingleThermocouple     ModuleType = "SingleThermocouple"
	ModuleSingleManometer        ModuleType = "SingleManometer"
	ModuleNone                   ModuleType = "NoModule"
	ModuleWrong                  ModuleType = "WrongModuleConnected"
)

var moduleCodes = map[string]ModuleType{
	"Hc": ModuleHotCathode,
	"Cc": ModuleColdCathode,
	"Pr": ModulePirani,
	"Cv": ModuleConvectionPirani,
	"Tc": ModuleDualThermocouple,
	"Cm": ModuleDualManometer,
	"P1": ModuleSinglePirani,
	"C1": ModuleSingleConvectionPirani,
	"T1": ModuleSingleThermocouple,
	"M1": ModuleSingleManometer,
	"Nc": ModuleNone,
	"Wc": ModuleWrong,
}

// ColdCathodeCode is the module code of a cold-cathode gauge
const ColdCathodeCode = "Cc"

// WrongModuleMarker prefixes the module string when the controller rejects a module
const WrongModuleMarker = "W"

// ModuleSlot is one of the three module ports of the controller
type ModuleSlot struct {
	Name     string     `json:"name"`
	Code     string     `json:"code"`
	Type     ModuleType `json:"type"`
	Channels []Channel  `json:"channels"`
}

// ModuleConfig is the decoded form of the GAUGES register
type ModuleConfig struct {
	Raw string     `json:"raw"`
	CC  ModuleSlot `json:"cc"`
	A   ModuleSlot `json:"a"`
	B   ModuleSlot `json:"b"`
}

var slotLayout = []struct {
	name     string
	channels []Channel
}{
	{"CC", []Channel{ChannelP1}},
	{"A", []Channel{ChannelP2, ChannelP3}},
	{"B", []Channel{ChannelP4, ChannelP5}},
}

// DecodeModules parses the six character module string
func DecodeModules(raw string) (*ModuleConfig, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, WrongModuleMarker) || len(raw) < 6 {
		return nil, &GaugeError{Kind: ErrorKindWrongModuleConfiguration, Command: "GAUGES", Raw: raw}
	}

	config := &ModuleConfig{Raw: raw}
	slots := []*ModuleSlot{&config.CC, &config.A, &config.B}
	for i, layout := range slotLayout {
		code := raw[2*i : 2*i+2]
		moduleType, ok := moduleCodes[code]
		if !ok {
			return nil, &GaugeError{
				Kind:    ErrorKindWrongModuleConfiguration,
				Command: "GAUGES",
				Raw:     raw,
				Err:     fmt.Errorf("unknown module code %q in slot %s", code, layout.name),
			}
		}
		*slots[i] = ModuleSlot{Name: layout.name, Code: code, Type: moduleType, Channels: layout.channels}
	}
	return config, nil
}

// String renders the installed modules the way the controller panel names them
func (m *ModuleConfig) String() string {
	return fmt.Sprintf("P1=CC:%s; P2=A:%s; P4=B:%s", m.CC.Type, m.A.Type, m.B.Type)
}

// Slots returns the slots in port order
func (m *ModuleConfig) Slots() []ModuleSlot {
	return []ModuleSlot{m.CC, m.A, m.B}
}

// IsPiraniCode reports whether a module code names a Pirani style gauge
func IsPiraniCode(code string) bool {
	return code == "Pr" || code == "Cv"
}

// PiraniChannels returns the channels served by Pirani modules.
// It works on partial or malformed strings so the state machine can still classify channels.
func PiraniChannels(raw string) []Channel {
	var channels []Channel
	for i, layout := range slotLayout {
		if len(raw) < 2*i+2 {
			break
		}
		if IsPiraniCode(raw[2*i : 2*i+2]) {
			channels = append(channels, layout.channels...)
		}
	}
	return channels
}

// SlotCode returns the two character code of slot 0 (CC), 1 (A) or 2 (B), or "" when absent
func SlotCode(raw string, slot int) string {
	if slot < 0 || len(raw) < 2*slot+2 {
		return ""
	}
	return raw[2*slot : 2*slot+2]
}
