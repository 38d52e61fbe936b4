package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementVital   = "radar_vital"
	MeasurementPosture = "radar_posture"
	MeasurementFall    = "radar_fall"
)

// radarTags builds the tag set shared by every radar measurement.
// An unmapped device has no person tag.
func radarTags(deviceID, personID string) map[string]string {
	tags := map[string]string{"device_id": deviceID}
	if personID != "" {
		tags["person_id"] = personID
	}
	return tags
}

// WriteVital records one vital-sign frame.
//
// Only present readings are written; an empty values map is dropped.
//
// Example:
//
//	client.WriteVital("R60-01", "p-7", map[string]float64{"heart_rate": 72, "breath_rate": 16}, ts)
func (c *Client) WriteVital(deviceID, personID string, values map[string]float64, ts time.Time) {
	if len(values) == 0 {
		return
	}

	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	c.write(write.NewPoint(MeasurementVital, radarTags(deviceID, personID), fields, ts))
}

// WritePosture records point-cloud and keypoint counts for a posture
// frame. quality is the 0-100 display quality; dataType is tagged so
// frames can be grouped by what they carried.
func (c *Client) WritePosture(deviceID, personID string, pointClouds, keypoints, quality int, dataType string, ts time.Time) {
	tags := radarTags(deviceID, personID)
	if dataType != "" {
		tags["data_type"] = dataType
	}
	c.write(write.NewPoint(MeasurementPosture, tags, map[string]any{
		"point_clouds": pointClouds,
		"keypoints":    keypoints,
		"quality":      quality,
	}, ts))
}

// WriteFall records a fall alert event.
func (c *Client) WriteFall(deviceID, personID, severity string, ts time.Time) {
	tags := radarTags(deviceID, personID)
	if severity != "" {
		tags["severity"] = severity
	}
	c.write(write.NewPoint(MeasurementFall, tags, map[string]any{"count": 1}, ts))
}
