package backend

// REST paths on the monitoring backend.
const (
	PathPersons = "/api/persons"

	PathDevices           = "/api/radar/devices"
	PathDevicesAll        = "/api/radar/devices/list"
	PathDeviceStatusBatch = "/api/radar/devices/status/batch"

	PathMappings       = "/api/person-device-mappings"
	PathMappingsActive = "/api/person-device-mappings/active"

	PathFallAlerts     = "/api/fall-alerts"
	PathDeviceOverview = "/api/radar/device-status/overview"
	PathDetections     = "/api/radar/detection/statuses-with-person"

	// pathVitalSamples takes the person ID.
	pathVitalSamples = "/api/radar/ti6843/vital/person/%s/samples"
)
