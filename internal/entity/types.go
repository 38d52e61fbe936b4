package entity

import (
	"fmt"
	"strings"

	"github.com/nerrad567/carewatch-core/internal/backend"
)

// Kind names one cached collection.
type Kind string

// Collection kinds.
const (
	KindPersons  Kind = "persons"
	KindDevices  Kind = "devices"
	KindMappings Kind = "mappings"
)

// Kinds lists every collection kind in refresh order.
var Kinds = []Kind{KindPersons, KindDevices, KindMappings}

// ParseKind accepts the plural kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindPersons, KindDevices, KindMappings:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// DeviceStatus is the upper-cased device status.
type DeviceStatus string

// Known device statuses. Anything else normalises to StatusOffline.
const (
	StatusOnline      DeviceStatus = "ONLINE"
	StatusOffline     DeviceStatus = "OFFLINE"
	StatusMaintenance DeviceStatus = "MAINTENANCE"
)

// IsKnown reports whether s is one of the known statuses.
func (s DeviceStatus) IsKnown() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusMaintenance:
		return true
	}
	return false
}

// Gender values. Anything other than "F" is treated as "M".
const (
	GenderFemale = "F"
	GenderMale   = "M"
)

// Placeholder labels for records missing a display field.
const (
	UnknownPersonName    = "Unknown person"
	UnnamedDeviceName    = "Unnamed device"
	UnassignedDepartment = "Unassigned"
)

// PersonDevice is the compact device reference attached to a person.
type PersonDevice struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	ModelType  string `json:"modelType,omitempty"`
}

// Person is a monitored resident.
type Person struct {
	PersonID       string         `json:"personId"`
	PersonName     string         `json:"personName"`
	Department     string         `json:"department"`
	Gender         string         `json:"gender"`
	Age            int            `json:"age"`
	Devices        []PersonDevice `json:"devices"`
	Tags           []string       `json:"tags"`
	LatestOverview any            `json:"latestOverview,omitempty"`
	LastAlertAt    string         `json:"lastAlertAt,omitempty"`
	SystemUserID   string         `json:"systemUserId,omitempty"`
	CreatedAt      string         `json:"createdAt,omitempty"`
	UpdatedAt      string         `json:"updatedAt,omitempty"`

	// Raw is the backend record the person was normalised from.
	Raw backend.Record `json:"raw,omitempty"`
}

// Device is a radar sensor.
type Device struct {
	DeviceID     string       `json:"deviceId"`
	DeviceName   string       `json:"deviceName"`
	ModelType    string       `json:"modelType,omitempty"`
	Model        string       `json:"model,omitempty"`
	Location     string       `json:"location,omitempty"`
	Type         string       `json:"type,omitempty"`
	Status       DeviceStatus `json:"status"`
	LastDataTime string       `json:"lastDataTime,omitempty"`
	CreatedAt    string       `json:"createdAt,omitempty"`
	UpdatedAt    string       `json:"updatedAt,omitempty"`

	Raw backend.Record `json:"raw,omitempty"`
}

// Mapping binds a device to a person.
type Mapping struct {
	ID          string  `json:"id"`
	PersonID    string  `json:"personId"`
	DeviceID    string  `json:"deviceId"`
	Active      bool    `json:"active"`
	MappingName string  `json:"mappingName,omitempty"`
	PersonName  string  `json:"personName"`
	DeviceName  string  `json:"deviceName"`
	Person      *Person `json:"person,omitempty"`
	Device      *Device `json:"device,omitempty"`

	Raw backend.Record `json:"raw,omitempty"`
}
