package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the CareWatch MQTT hierarchy.
//
// Radar gateways publish per-device telemetry:
//
//	carewatch/radar/vital/{deviceId}
//	carewatch/radar/posture/{deviceId}
//
// Fall alerts arrive on a single topic, and core publishes its own state
// under carewatch/core and carewatch/system.
const (
	TopicPrefixRadar  = "carewatch/radar"
	TopicPrefixAlerts = "carewatch/alerts"
	TopicPrefixCore   = "carewatch/core"
	TopicPrefixSystem = "carewatch/system"
)

// Topics provides builders for CareWatch MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Vital("R60-0012") // "carewatch/radar/vital/R60-0012"
type Topics struct{}

// Vital returns the vital-sign telemetry topic for a device.
func (Topics) Vital(deviceID string) string {
	return fmt.Sprintf("%s/vital/%s", TopicPrefixRadar, deviceID)
}

// Posture returns the posture/point-cloud telemetry topic for a device.
func (Topics) Posture(deviceID string) string {
	return fmt.Sprintf("%s/posture/%s", TopicPrefixRadar, deviceID)
}

// AllVitals matches vital telemetry from every device.
func (Topics) AllVitals() string {
	return TopicPrefixRadar + "/vital/+"
}

// AllPostures matches posture telemetry from every device.
func (Topics) AllPostures() string {
	return TopicPrefixRadar + "/posture/+"
}

// FallAlerts is where gateways announce detected falls.
func (Topics) FallAlerts() string {
	return TopicPrefixAlerts + "/fall"
}

// AlertStats is the retained alert summary published after each hydration.
func (Topics) AlertStats() string {
	return TopicPrefixCore + "/alerts/stats"
}

// SystemStatus carries core's online/offline status (and its LWT).
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceFromTopic extracts the device ID from a vital or posture topic.
func DeviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixRadar+"/")
	if !ok {
		return "", false
	}
	kind, deviceID, ok := strings.Cut(rest, "/")
	if !ok || deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	if kind != "vital" && kind != "posture" {
		return "", false
	}
	return deviceID, true
}

// ValidateFilter checks an MQTT subscription filter: + and # must fill a
// whole level, and # may only be the last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty filter", ErrInvalidTopic)
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: # must be the last level in %q", ErrInvalidTopic, filter)
		case level != "+" && level != "#" && strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard inside level %q", ErrInvalidTopic, level)
		}
	}
	return nil
}
