package care

import (
	"strings"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
	"github.com/nerrad567/carewatch-core/internal/problem"
)

// All is the filter sentinel meaning "do not filter on this dimension".
const All = "ALL"

// PersonScopeCurrent limits alerts to the person in scope.
const PersonScopeCurrent = "CURRENT"

// Alert statuses and severities the statistics look at.
const (
	AlertStatusActive   = "ACTIVE"
	AlertStatusResolved = "RESOLVED"
	SeverityCritical    = "CRITICAL"
	SeverityHigh        = "HIGH"
)

// AlertFilter is the current alert query. Each dimension is either a
// concrete value or All.
type AlertFilter struct {
	Category    string `json:"category"`
	Status      string `json:"status"`
	PersonScope string `json:"personScope"`
}

// DefaultAlertFilter returns the initial filter: any category, active
// alerts, scoped to the current person.
func DefaultAlertFilter() AlertFilter {
	return AlertFilter{Category: All, Status: AlertStatusActive, PersonScope: PersonScopeCurrent}
}

// AlertFilterPatch changes some dimensions of an AlertFilter. Nil fields
// are left as they are.
type AlertFilterPatch struct {
	Category    *string `json:"category,omitempty"`
	Status      *string `json:"status,omitempty"`
	PersonScope *string `json:"personScope,omitempty"`
}

// Apply returns f with p merged in. Values are upper-cased; an empty
// value means All.
func (f AlertFilter) Apply(p AlertFilterPatch) AlertFilter {
	if p.Category != nil {
		f.Category = filterValue(*p.Category)
	}
	if p.Status != nil {
		f.Status = filterValue(*p.Status)
	}
	if p.PersonScope != nil {
		f.PersonScope = filterValue(*p.PersonScope)
	}
	return f
}

func filterValue(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return All
	}
	return s
}

// query builds the backend query. personID is already resolved.
func (f AlertFilter) query(personID string) backend.AlertQuery {
	var q backend.AlertQuery
	if f.Category != All {
		q.Category = f.Category
	}
	if f.Status != All {
		q.Status = f.Status
	}
	q.PersonID = personID
	return q
}

// Alert is a fall alert as shown on the dashboard.
type Alert struct {
	ID         string         `json:"id"`
	DeviceID   string         `json:"deviceId"`
	PersonID   string         `json:"personId,omitempty"`
	PersonName string         `json:"personName,omitempty"`
	Location   string         `json:"location,omitempty"`
	Category   string         `json:"category,omitempty"`
	Status     string         `json:"status"`
	Severity   string         `json:"severity"`
	DetectedAt string         `json:"detectedAt,omitempty"`
	ResolvedAt string         `json:"resolvedAt,omitempty"`
	Raw        backend.Record `json:"raw,omitempty"`
}

func str(r backend.Record, keys ...string) string {
	s, _ := backend.String(r, keys...)
	return s
}

func upper(r backend.Record, keys ...string) string {
	return strings.ToUpper(str(r, keys...))
}

// NormalizeAlert converts a backend fall-alert record.
func NormalizeAlert(r backend.Record) Alert {
	return Alert{
		ID:         str(r, "id", "alert_id", "alertId"),
		DeviceID:   str(r, "device_id", "deviceId"),
		PersonID:   str(r, "person_id", "personId"),
		PersonName: str(r, "person_name", "personName"),
		Location:   str(r, "location"),
		Category:   upper(r, "category", "alert_category", "alertCategory"),
		Status:     upper(r, "status"),
		Severity:   upper(r, "severity"),
		DetectedAt: str(r, "fall_detected_at", "fallDetectedAt", "created_at", "createdAt"),
		ResolvedAt: str(r, "resolved_at", "resolvedAt"),
		Raw:        r,
	}
}

// AlertStats summarises the alerts currently in scope.
type AlertStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Critical int `json:"critical"`
}

// ComputeAlertStats counts alerts. Critical covers CRITICAL and HIGH.
func ComputeAlertStats(alerts []Alert) AlertStats {
	stats := AlertStats{Total: len(alerts)}
	for _, a := range alerts {
		if a.Status == AlertStatusActive {
			stats.Active++
		}
		if a.Severity == SeverityCritical || a.Severity == SeverityHigh {
			stats.Critical++
		}
	}
	return stats
}

// DetectionSummary is the latest detection state of one device, joined
// with its person.
type DetectionSummary struct {
	DeviceID   string         `json:"deviceId"`
	DeviceName string         `json:"deviceName,omitempty"`
	PersonID   string         `json:"personId,omitempty"`
	PersonName string         `json:"personName,omitempty"`
	Status     string         `json:"status"`
	DetectedAt string         `json:"detectedAt,omitempty"`
	Raw        backend.Record `json:"raw,omitempty"`
}

// NormalizeDetection converts a backend detection status record.
func NormalizeDetection(r backend.Record) DetectionSummary {
	return DetectionSummary{
		DeviceID:   str(r, "device_id", "deviceId"),
		DeviceName: str(r, "device_name", "deviceName"),
		PersonID:   str(r, "person_id", "personId"),
		PersonName: str(r, "person_name", "personName"),
		Status:     upper(r, "detection_status", "detectionStatus", "status"),
		DetectedAt: str(r, "last_detected_at", "lastDetectedAt", "updated_at", "updatedAt"),
		Raw:        r,
	}
}

// DeviceOverview is the fleet status summary.
type DeviceOverview struct {
	Total       int            `json:"total"`
	Online      int            `json:"online"`
	Offline     int            `json:"offline"`
	Maintenance int            `json:"maintenance"`
	Raw         backend.Record `json:"raw,omitempty"`
}

// NormalizeOverview converts the backend overview object.
func NormalizeOverview(r backend.Record) DeviceOverview {
	count := func(keys ...string) int {
		n, _ := backend.Int(r, keys...)
		return n
	}
	return DeviceOverview{
		Total:       count("total", "total_count", "totalCount", "total_devices", "totalDevices"),
		Online:      count("online", "online_count", "onlineCount"),
		Offline:     count("offline", "offline_count", "offlineCount"),
		Maintenance: count("maintenance", "maintenance_count", "maintenanceCount"),
		Raw:         r,
	}
}

// VitalPoint is one vital-sign sample.
type VitalPoint struct {
	Timestamp  string         `json:"timestamp"`
	HeartRate  float64        `json:"heartRate"`
	BreathRate float64        `json:"breathRate"`
	Raw        backend.Record `json:"raw,omitempty"`
}

// NormalizeVitalPoint converts a backend vital sample record.
func NormalizeVitalPoint(r backend.Record) VitalPoint {
	heart, _ := backend.Float(r, "heart_rate", "heartRate")
	breath, _ := backend.Float(r, "breath_rate", "breathRate", "respiration", "respiration_rate", "respirationRate")
	return VitalPoint{
		Timestamp:  str(r, "timestamp", "sample_time", "sampleTime", "created_at", "createdAt"),
		HeartRate:  heart,
		BreathRate: breath,
		Raw:        r,
	}
}

func normalizeAll[T any](records []backend.Record, normalize func(backend.Record) T) []T {
	out := make([]T, len(records))
	for i, r := range records {
		out[i] = normalize(r)
	}
	return out
}

// View is a consistent copy of the scope state.
type View struct {
	SelectedPersonID string                      `json:"selectedPersonId,omitempty"`
	Alerts           []Alert                     `json:"alerts"`
	AlertFilter      AlertFilter                 `json:"alertFilter"`
	AlertStats       AlertStats                  `json:"alertStats"`
	DeviceOverview   *DeviceOverview             `json:"deviceOverview"`
	Detections       []DetectionSummary          `json:"detections"`
	History          []VitalPoint                `json:"history"`
	Syncing          bool                        `json:"syncing"`
	LastSyncedAt     *time.Time                  `json:"lastSyncedAt,omitempty"`
	Problems         map[string]*problem.Problem `json:"problems,omitempty"`
}
