package entity

import (
	"strings"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
)

// Field resolution is always snake_case, then camelCase, then the generic
// alias, then a placeholder.

// NormalizeStatus upper-cases a status value. Non-strings and unknown
// values become StatusOffline.
func NormalizeStatus(v any) DeviceStatus {
	s, ok := v.(string)
	if !ok {
		return StatusOffline
	}
	status := DeviceStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !status.IsKnown() {
		return StatusOffline
	}
	return status
}

// normalizer carries the clock used for synthesized IDs.
type normalizer struct {
	now func() time.Time
}

func (n normalizer) id(prefix string) string {
	return syntheticIDAt(prefix, n.now())
}

func str(r backend.Record, keys ...string) string {
	s, _ := backend.String(r, keys...)
	return s
}

func strOr(r backend.Record, fallback string, keys ...string) string {
	if s, ok := backend.String(r, keys...); ok {
		return s
	}
	return fallback
}

// NormalizePerson converts a backend person record.
func NormalizePerson(r backend.Record) Person {
	return normalizer{now: time.Now}.person(r, "")
}

// NormalizeDevice converts a backend device record.
//
// Example: {"device_id": "D1", "device_name": "Bed Sensor", "status": "online"}
// yields DeviceID "D1", DeviceName "Bed Sensor", Status ONLINE.
func NormalizeDevice(r backend.Record) Device {
	return normalizer{now: time.Now}.device(r, "")
}

// NormalizeMapping converts a backend person-device mapping record.
func NormalizeMapping(r backend.Record) Mapping {
	return normalizer{now: time.Now}.mapping(r)
}

// NormalizePersonDevice converts a device entry nested in a person record.
func NormalizePersonDevice(r backend.Record) PersonDevice {
	return PersonDevice{
		DeviceID:   strOr(r, "UNKNOWN_DEVICE", "device_id", "deviceId", "id"),
		DeviceName: strOr(r, UnnamedDeviceName, "device_name", "deviceName", "name"),
		ModelType:  str(r, "model_type", "modelType"),
	}
}

// person normalises r. A non-empty id overrides whatever r carries; it is
// used for compact persons nested in mappings.
func (n normalizer) person(r backend.Record, id string) Person {
	if r == nil {
		r = backend.Record{}
	}
	if id == "" {
		id = strOr(r, "", "person_id", "personId", "id")
	}
	if id == "" {
		id = n.id("person")
	}

	gender := GenderMale
	if strings.EqualFold(str(r, "gender"), GenderFemale) {
		gender = GenderFemale
	}

	age, _ := backend.Int(r, "age")

	devices := make([]PersonDevice, 0)
	for _, item := range backend.UnwrapList(backend.List(r, "devices")) {
		devices = append(devices, NormalizePersonDevice(item))
	}

	tags := backend.Strings(r, "tags")
	if tags == nil {
		tags = []string{}
	}

	overview, _ := backend.Lookup(r, "latest_overview", "latestOverview")

	return Person{
		PersonID:       id,
		PersonName:     strOr(r, UnknownPersonName, "person_name", "personName", "name"),
		Department:     strOr(r, UnassignedDepartment, "department"),
		Gender:         gender,
		Age:            age,
		Devices:        devices,
		Tags:           tags,
		LatestOverview: overview,
		LastAlertAt:    str(r, "last_alert_at", "lastAlertAt"),
		SystemUserID:   str(r, "system_user_id", "systemUserId"),
		CreatedAt:      str(r, "created_at", "createdAt"),
		UpdatedAt:      str(r, "updated_at", "updatedAt"),
		Raw:            r,
	}
}

func (n normalizer) device(r backend.Record, id string) Device {
	if r == nil {
		r = backend.Record{}
	}
	if id == "" {
		id = strOr(r, "", "device_id", "deviceId", "id")
	}
	if id == "" {
		id = n.id("device")
	}

	return Device{
		DeviceID:     id,
		DeviceName:   strOr(r, UnnamedDeviceName, "device_name", "deviceName", "name"),
		ModelType:    str(r, "model_type", "modelType"),
		Model:        str(r, "model"),
		Location:     str(r, "location"),
		Type:         str(r, "type"),
		Status:       NormalizeStatus(r["status"]),
		LastDataTime: str(r, "last_data_time", "lastDataTime"),
		CreatedAt:    str(r, "created_at", "createdAt"),
		UpdatedAt:    str(r, "updated_at", "updatedAt"),
		Raw:          r,
	}
}

func (n normalizer) mapping(r backend.Record) Mapping {
	if r == nil {
		r = backend.Record{}
	}
	personRec := backend.Object(r, "person")
	deviceRec := backend.Object(r, "device")

	personID := str(r, "person_id", "personId")
	if personID == "" {
		personID = str(personRec, "person_id", "personId", "id")
	}
	if personID == "" {
		personID = n.id("person")
	}

	deviceID := str(r, "device_id", "deviceId")
	if deviceID == "" {
		deviceID = str(deviceRec, "device_id", "deviceId", "id")
	}
	if deviceID == "" {
		deviceID = n.id("device")
	}

	// Flat mapping rows carry the names beside the IDs.
	if personRec == nil {
		personRec = backend.Record{}
		if name, ok := backend.String(r, "person_name", "personName"); ok {
			personRec["person_name"] = name
		}
	}
	if deviceRec == nil {
		deviceRec = backend.Record{}
		if name, ok := backend.String(r, "device_name", "deviceName"); ok {
			deviceRec["device_name"] = name
		}
	}

	person := n.person(personRec, personID)
	person.Devices = []PersonDevice{}
	device := n.device(deviceRec, deviceID)

	active, ok := backend.Bool(r, "is_active", "isActive", "active")
	if !ok {
		active = true
	}

	return Mapping{
		ID:          strOr(r, personID+"-"+deviceID, "id"),
		PersonID:    personID,
		DeviceID:    deviceID,
		Active:      active,
		MappingName: str(r, "mapping_name", "mappingName"),
		PersonName:  person.PersonName,
		DeviceName:  device.DeviceName,
		Person:      &person,
		Device:      &device,
		Raw:         r,
	}
}
