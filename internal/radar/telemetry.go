package radar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
)

// ErrInvalidPayload is returned when a telemetry payload is not a JSON object.
var ErrInvalidPayload = errors.New("radar: invalid telemetry payload")

// WebSocket channels live telemetry is relayed on.
const (
	ChannelVital      = "radar.vital"
	ChannelPosture    = "radar.posture"
	ChannelFallAlert  = "alert.fall"
	ChannelAlertStats = "alert.stats"
)

func decodeObject(payload []byte) (backend.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var r backend.Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if r == nil {
		return nil, ErrInvalidPayload
	}
	return r, nil
}

func str(r backend.Record, keys ...string) string {
	s, _ := backend.String(r, keys...)
	return s
}

func optFloat(r backend.Record, keys ...string) *float64 {
	f, ok := backend.Float(r, keys...)
	if !ok {
		return nil
	}
	return &f
}

// timestamp reads the payload time, falling back to now.
func timestamp(r backend.Record, now time.Time) time.Time {
	if s := str(r, "timestamp", "time", "ts"); s != "" {
		if t, ok := parseTime(s); ok {
			return t
		}
	}
	if ms, ok := backend.Int(r, "timestamp_ms", "timestampMs"); ok && ms > 0 {
		return time.UnixMilli(int64(ms))
	}
	return now
}

// VitalRealtime is one real-time vital-sign packet. R60ABD1 and TI6843
// vital devices share the shape.
type VitalRealtime struct {
	DeviceID       string    `json:"deviceId"`
	PersonID       string    `json:"personId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	HeartRate      *float64  `json:"heartRate,omitempty"`
	Respiration    *float64  `json:"respiration,omitempty"`
	BodyMovement   *float64  `json:"bodyMovement,omitempty"`
	Presence       any       `json:"presence,omitempty"`
	PresenceStatus string    `json:"presenceStatus,omitempty"`
	MotionStatus   string    `json:"motionStatus,omitempty"`
	SleepStatus    string    `json:"sleepStatus,omitempty"`
}

// ParseVital decodes a vital packet. deviceID, usually taken from the
// topic, fills in a missing device_id.
func ParseVital(deviceID string, payload []byte, now time.Time) (VitalRealtime, error) {
	r, err := decodeObject(payload)
	if err != nil {
		return VitalRealtime{}, err
	}

	presence, _ := backend.Lookup(r, "presence")
	v := VitalRealtime{
		DeviceID:       str(r, "device_id", "deviceId"),
		PersonID:       str(r, "person_id", "personId"),
		Timestamp:      timestamp(r, now),
		HeartRate:      optFloat(r, "heart_rate", "heartRate"),
		Respiration:    optFloat(r, "respiration", "breath_rate", "breathRate"),
		BodyMovement:   optFloat(r, "body_movement", "bodyMovement"),
		Presence:       presence,
		PresenceStatus: str(r, "presence_status", "presenceStatus"),
		MotionStatus:   str(r, "motion_status", "motionStatus", "motion"),
		SleepStatus:    str(r, "sleep_status", "sleepStatus", "sleep"),
	}
	if v.DeviceID == "" {
		v.DeviceID = deviceID
	}
	return v, nil
}

// Values returns the numeric readings present in the packet, keyed by
// field name, for time-series storage.
func (v VitalRealtime) Values() map[string]float64 {
	out := make(map[string]float64, 3)
	if v.HeartRate != nil {
		out["heart_rate"] = *v.HeartRate
	}
	if v.Respiration != nil {
		out["respiration"] = *v.Respiration
	}
	if v.BodyMovement != nil {
		out["body_movement"] = *v.BodyMovement
	}
	return out
}

// PosturePayload is a raw posture frame: point clouds per target and
// skeleton keypoints.
type PosturePayload struct {
	DeviceID      string        `json:"deviceId"`
	PersonID      string        `json:"personId,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	PostureStatus string        `json:"postureStatus,omitempty"`
	PostureState  string        `json:"postureState,omitempty"`
	PointClouds   [][][]float64 `json:"pointclouds,omitempty"`
	Keypoints     [][]float64   `json:"keypoints,omitempty"`
	Confidence    *float64      `json:"confidence,omitempty"`
	Room          string        `json:"room,omitempty"`
}

// ParsePosture decodes a posture frame.
func ParsePosture(deviceID string, payload []byte, now time.Time) (PosturePayload, error) {
	r, err := decodeObject(payload)
	if err != nil {
		return PosturePayload{}, err
	}

	p := PosturePayload{
		DeviceID:      str(r, "device_id", "deviceId"),
		PersonID:      str(r, "person_id", "personId"),
		Timestamp:     timestamp(r, now),
		PostureStatus: str(r, "posture_status", "postureStatus"),
		PostureState:  str(r, "posture_state", "postureState"),
		Confidence:    optFloat(r, "confidence"),
		Room:          str(r, "room"),
	}
	if p.DeviceID == "" {
		p.DeviceID = deviceID
	}

	if clouds, ok := backend.Lookup(r, "pointclouds", "point_clouds", "pointClouds"); ok {
		for _, cloud := range asList(clouds) {
			points := make([][]float64, 0)
			for _, pt := range asList(cloud) {
				points = append(points, asFloats(pt))
			}
			p.PointClouds = append(p.PointClouds, points)
		}
	}
	if kps, ok := backend.Lookup(r, "keypoints", "key_points"); ok {
		for _, kp := range asList(kps) {
			p.Keypoints = append(p.Keypoints, asFloats(kp))
		}
	}
	return p, nil
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func asFloats(v any) []float64 {
	list := asList(v)
	out := make([]float64, 0, len(list))
	for _, item := range list {
		var f float64
		switch n := item.(type) {
		case json.Number:
			parsed, err := n.Float64()
			if err != nil {
				continue
			}
			f = parsed
		case float64:
			f = n
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Posture data types reported in PostureDisplay.DataType.
const (
	DataTypeFull       = "pointcloud+keypoints"
	DataTypePointCloud = "pointcloud"
	DataTypeKeypoints  = "keypoints"
	DataTypeEmpty      = "empty"
)

// PostureDisplay is a posture frame with display summary fields.
type PostureDisplay struct {
	PosturePayload
	HasValidPointClouds  bool   `json:"hasValidPointClouds"`
	HasValidKeypoints    bool   `json:"hasValidKeypoints"`
	TotalPointCloudCount int    `json:"totalPointCloudCount"`
	KeypointCount        int    `json:"keypointCount"`
	DataQuality          int    `json:"dataQuality"`
	DataType             string `json:"dataType"`
}

// FormatPostureForDisplay summarises a posture frame. A point or keypoint
// is valid when it has at least x, y and z.
//
// DataQuality is 0-100: the reported confidence when present (fractions
// are scaled), otherwise 100 with both point clouds and keypoints, 50
// with one of them and 0 with neither.
func FormatPostureForDisplay(p PosturePayload) PostureDisplay {
	d := PostureDisplay{PosturePayload: p}

	for _, cloud := range p.PointClouds {
		for _, pt := range cloud {
			if len(pt) >= 3 {
				d.TotalPointCloudCount++
			}
		}
	}
	for _, kp := range p.Keypoints {
		if len(kp) >= 3 {
			d.KeypointCount++
		}
	}
	d.HasValidPointClouds = d.TotalPointCloudCount > 0
	d.HasValidKeypoints = d.KeypointCount > 0

	switch {
	case d.HasValidPointClouds && d.HasValidKeypoints:
		d.DataType = DataTypeFull
		d.DataQuality = 100
	case d.HasValidPointClouds:
		d.DataType = DataTypePointCloud
		d.DataQuality = 50
	case d.HasValidKeypoints:
		d.DataType = DataTypeKeypoints
		d.DataQuality = 50
	default:
		d.DataType = DataTypeEmpty
	}

	if p.Confidence != nil && *p.Confidence >= 0 {
		c := *p.Confidence
		if c <= 1 {
			c *= 100
		}
		d.DataQuality = int(math.Round(math.Min(c, 100)))
	}
	return d
}

// FallAlert is a fall-detection event pushed by the alert service.
type FallAlert struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"deviceId"`
	PersonID       string    `json:"personId,omitempty"`
	PersonName     string    `json:"personName,omitempty"`
	Location       string    `json:"location,omitempty"`
	Status         string    `json:"status"`
	Severity       string    `json:"severity"`
	FallDetectedAt time.Time `json:"fallDetectedAt"`
}

// ParseFallAlert decodes a fall alert. A payload wrapped as
// {"type": "fall_alert", "data": {...}} is unwrapped. Status defaults to
// NEW and severity to HIGH.
func ParseFallAlert(payload []byte, now time.Time) (FallAlert, error) {
	r, err := decodeObject(payload)
	if err != nil {
		return FallAlert{}, err
	}
	if inner := backend.Object(r, "data"); inner != nil {
		r = inner
	}

	a := FallAlert{
		ID:         str(r, "id", "alert_id", "alertId"),
		DeviceID:   str(r, "device_id", "deviceId"),
		PersonID:   str(r, "person_id", "personId"),
		PersonName: str(r, "person_name", "personName"),
		Location:   str(r, "location"),
		Status:     strings.ToUpper(str(r, "status")),
		Severity:   strings.ToUpper(str(r, "severity")),
	}
	if a.Status == "" {
		a.Status = "NEW"
	}
	if a.Severity == "" {
		a.Severity = "HIGH"
	}
	a.FallDetectedAt = now
	if s := str(r, "fall_detected_at", "fallDetectedAt", "timestamp"); s != "" {
		if t, ok := parseTime(s); ok {
			a.FallDetectedAt = t
		}
	}
	if a.DeviceID == "" {
		return FallAlert{}, fmt.Errorf("%w: fall alert without device id", ErrInvalidPayload)
	}
	return a, nil
}
