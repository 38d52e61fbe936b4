// Package radar shapes radar device data for display and relay.
//
// It has two halves:
//
//   - Device presentation: status labels and tones, monitor type and model
//     text, device family inference from an ID or model string, serial port
//     defaults and relative "last seen" formatting.
//   - Live telemetry: parsing vital, posture and fall-alert payloads as they
//     arrive over MQTT, and deriving the posture display summary.
//
// Everything here is pure. Callers own transport and storage.
package radar
