package backend

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// AlertQuery filters the fall-alert list. Empty fields are omitted from
// the request.
type AlertQuery struct {
	Category string
	Status   string
	PersonID string
}

func (q AlertQuery) values() url.Values {
	v := url.Values{}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.PersonID != "" {
		v.Set("personId", q.PersonID)
	}
	return v
}

// ListAlerts returns fall alerts matching q.
func (c *Client) ListAlerts(ctx context.Context, q AlertQuery) ([]Record, error) {
	return c.getList(ctx, PathFallAlerts, q.values())
}

// DeviceOverview returns the device status overview object.
func (c *Client) DeviceOverview(ctx context.Context) (Record, error) {
	return c.getObject(ctx, PathDeviceOverview, nil)
}

// DetectionSummaries returns per-device detection status joined with person.
func (c *Client) DetectionSummaries(ctx context.Context) ([]Record, error) {
	return c.getList(ctx, PathDetections, nil)
}

// HistoryQuery pages through vital samples. Zero fields are omitted.
type HistoryQuery struct {
	Page  int
	Size  int
	Start time.Time
	End   time.Time
}

func (q HistoryQuery) values() url.Values {
	v := Page{Page: q.Page, Size: q.Size}.values()
	if !q.Start.IsZero() {
		v.Set("start", q.Start.UTC().Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		v.Set("end", q.End.UTC().Format(time.RFC3339))
	}
	return v
}

// VitalSamples returns vital-sign samples recorded for a person.
func (c *Client) VitalSamples(ctx context.Context, personID string, q HistoryQuery) ([]Record, error) {
	escaped, err := escapeID(personID)
	if err != nil {
		return nil, err
	}
	return c.getList(ctx, fmt.Sprintf(pathVitalSamples, escaped), q.values())
}
