package radar

import (
	"regexp"
	"strings"

	"github.com/nerrad567/carewatch-core/internal/entity"
)

// Status display text and tag colours.
var (
	statusText = map[entity.DeviceStatus]string{
		entity.StatusOnline:      "Online",
		entity.StatusOffline:     "Offline",
		entity.StatusMaintenance: "Maintenance",
	}
	statusTone = map[entity.DeviceStatus]string{
		entity.StatusOnline:      "#22c55e",
		entity.StatusOffline:     "#94a3b8",
		entity.StatusMaintenance: "#fbbf24",
	}
)

// StatusText returns the label for a raw status. Unknown values read as
// offline.
func StatusText(status string) string {
	return statusText[entity.NormalizeStatus(status)]
}

// StatusTone returns the tag colour for a raw status.
func StatusTone(status string) string {
	return statusTone[entity.NormalizeStatus(status)]
}

// Monitor types.
const (
	MonitorVitals  = "Vital signs"
	MonitorPosture = "Posture"
	MonitorECG     = "ECG"
	MonitorUnknown = "Unknown type"
)

// modelTypes maps model types to what the device monitors. Order matters
// for substring matching against free-form model strings.
var modelTypes = []struct {
	key     string
	monitor string
}{
	{"TI6843-VITAL", MonitorVitals},
	{"TI6843-POSTURE", MonitorPosture},
	{"TI6843-ECG", MonitorECG},
	{"R60ABD1", MonitorVitals},
}

// MonitorType returns what a device monitors: its explicit type, else the
// mapping of its model type, else the first known model type contained
// in its model string.
func MonitorType(d entity.Device) string {
	if d.Type != "" {
		return d.Type
	}
	for _, m := range modelTypes {
		if d.ModelType == m.key {
			return m.monitor
		}
	}
	if model := strings.ToUpper(d.Model); model != "" {
		for _, m := range modelTypes {
			if strings.Contains(model, m.key) {
				return m.monitor
			}
		}
	}
	return MonitorUnknown
}

// ModelText returns the model, else the model type, else "-".
func ModelText(d entity.Device) string {
	switch {
	case d.Model != "":
		return d.Model
	case d.ModelType != "":
		return d.ModelType
	default:
		return "-"
	}
}

// Device families.
const (
	TypeR60ABD1 = "R60ABD1"
	TypeR77ABH1 = "R77ABH1"
	TypeTI6843  = "TI6843"
	TypeECG     = "ECG"
	TypeUnknown = "UNKNOWN"
)

// DeviceType infers the device family from an ID, name or model string.
func DeviceType(s string) string {
	s = strings.ToUpper(s)
	switch {
	case strings.Contains(s, "R60"):
		return TypeR60ABD1
	case strings.Contains(s, "R77"):
		return TypeR77ABH1
	case strings.Contains(s, "TI6843"), strings.Contains(s, "TI-6843"):
		return TypeTI6843
	case strings.Contains(s, "ECG"):
		return TypeECG
	default:
		return TypeUnknown
	}
}

// Serial defaults.
const (
	DefaultPort     = "COM3"
	DefaultBaudRate = 115200
)

var comPort = regexp.MustCompile(`(?i)COM\d+`)

// baudRates per family. Every known family currently runs at the default.
var baudRates = map[string]int{
	TypeR60ABD1: 115200,
	TypeR77ABH1: 115200,
	TypeTI6843:  115200,
	TypeECG:     115200,
}

// PortConfig is the serial connection of a locally attached radar.
type PortConfig struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baudRate"`
}

// InferPortConfig extracts a COMn port from an ID or name and picks the
// baud rate for its family.
func InferPortConfig(s string) PortConfig {
	cfg := PortConfig{Port: DefaultPort, BaudRate: DefaultBaudRate}
	if m := comPort.FindString(s); m != "" {
		cfg.Port = strings.ToUpper(m)
	}
	if baud, ok := baudRates[DeviceType(s)]; ok {
		cfg.BaudRate = baud
	}
	return cfg
}
