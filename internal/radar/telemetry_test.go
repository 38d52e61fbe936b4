package radar

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func TestParseVital(t *testing.T) {
	v, err := ParseVital("R60-1", []byte(`{"person_id": 7, "heartRate": 68, "respiration": 15.5, "presence": 1, "timestamp": "2026-10-19T11:59:58Z"}`), testNow)
	if err != nil {
		t.Fatalf("ParseVital() error = %v", err)
	}
	if v.DeviceID != "R60-1" || v.PersonID != "7" {
		t.Errorf("ids = %q/%q", v.DeviceID, v.PersonID)
	}
	if !v.Timestamp.Equal(testNow.Add(-2 * time.Second)) {
		t.Errorf("Timestamp = %v", v.Timestamp)
	}

	values := v.Values()
	if len(values) != 2 || values["heart_rate"] != 68 || values["respiration"] != 15.5 {
		t.Errorf("Values() = %v", values)
	}
	if v.BodyMovement != nil {
		t.Error("absent body movement must stay nil")
	}
}

func TestParseVital_DefaultsTimestamp(t *testing.T) {
	v, err := ParseVital("D1", []byte(`{"device_id": "D2"}`), testNow)
	if err != nil {
		t.Fatalf("ParseVital() error = %v", err)
	}
	if v.DeviceID != "D2" || !v.Timestamp.Equal(testNow) {
		t.Errorf("got %+v", v)
	}
}

func TestParse_InvalidPayload(t *testing.T) {
	for _, payload := range []string{``, `null`, `[1,2]`, `{"broken"`} {
		if _, err := ParseVital("D1", []byte(payload), testNow); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParseVital(%q) error = %v", payload, err)
		}
		if _, err := ParsePosture("D1", []byte(payload), testNow); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParsePosture(%q) error = %v", payload, err)
		}
	}
}

func TestFormatPostureForDisplay(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		quality  int
		dataType string
		points   int
		keys     int
	}{
		{
			name:     "full frame",
			payload:  `{"pointclouds": [[[0,1,2],[1,1,1]],[[2,2,2,0.5]]], "keypoints": [[0,0,0],[1,1]]}`,
			quality:  100,
			dataType: DataTypeFull,
			points:   3,
			keys:     1,
		},
		{
			name:     "point clouds only",
			payload:  `{"pointclouds": [[[0,1,2]]], "keypoints": [[1,2]]}`,
			quality:  50,
			dataType: DataTypePointCloud,
			points:   1,
		},
		{
			name:     "confidence fraction",
			payload:  `{"keypoints": [[0,0,0]], "confidence": 0.874}`,
			quality:  87,
			dataType: DataTypeKeypoints,
			keys:     1,
		},
		{
			name:     "confidence percent capped",
			payload:  `{"confidence": 140}`,
			quality:  100,
			dataType: DataTypeEmpty,
		},
		{
			name:     "empty",
			payload:  `{"postureStatus": "standing"}`,
			dataType: DataTypeEmpty,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePosture("T1", []byte(tt.payload), testNow)
			if err != nil {
				t.Fatalf("ParsePosture() error = %v", err)
			}
			d := FormatPostureForDisplay(p)
			if d.DataQuality != tt.quality || d.DataType != tt.dataType {
				t.Errorf("quality=%d type=%q, want %d %q", d.DataQuality, d.DataType, tt.quality, tt.dataType)
			}
			if d.TotalPointCloudCount != tt.points || d.KeypointCount != tt.keys {
				t.Errorf("points=%d keys=%d, want %d %d", d.TotalPointCloudCount, d.KeypointCount, tt.points, tt.keys)
			}
			if d.HasValidPointClouds != (tt.points > 0) || d.HasValidKeypoints != (tt.keys > 0) {
				t.Errorf("validity flags = %v/%v", d.HasValidPointClouds, d.HasValidKeypoints)
			}
			if d.DeviceID != "T1" {
				t.Errorf("DeviceID = %q", d.DeviceID)
			}
		})
	}
}

func TestParseFallAlert(t *testing.T) {
	a, err := ParseFallAlert([]byte(`{"type": "fall_alert", "data": {"id": 31, "deviceId": "R60-1", "severity": "critical", "fallDetectedAt": "2026-10-19T11:58:00Z"}}`), testNow)
	if err != nil {
		t.Fatalf("ParseFallAlert() error = %v", err)
	}
	if a.ID != "31" || a.DeviceID != "R60-1" || a.Severity != "CRITICAL" || a.Status != "NEW" {
		t.Errorf("alert = %+v", a)
	}
	if !a.FallDetectedAt.Equal(testNow.Add(-2 * time.Minute)) {
		t.Errorf("FallDetectedAt = %v", a.FallDetectedAt)
	}

	flat, err := ParseFallAlert([]byte(`{"device_id": "D9", "status": "pending"}`), testNow)
	if err != nil {
		t.Fatalf("ParseFallAlert() error = %v", err)
	}
	if flat.Status != "PENDING" || flat.Severity != "HIGH" || !flat.FallDetectedAt.Equal(testNow) {
		t.Errorf("flat alert = %+v", flat)
	}

	if _, err := ParseFallAlert([]byte(`{"id": 1}`), testNow); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("missing device id error = %v", err)
	}
}
