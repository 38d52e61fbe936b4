package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
)

// recordedRequest captures what the fake backend saw.
type recordedRequest struct {
	Method    string
	Path      string
	RawQuery  string
	Body      map[string]any
	RequestID string
	Auth      string
}

// fakeBackend serves canned JSON per "METHOD path" and records requests.
type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeBackend(t *testing.T, routes map[string]fakeResponse) (*Client, *fakeBackend) {
	t.Helper()

	fb := &fakeBackend{routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method:    r.Method,
			Path:      r.URL.EscapedPath(),
			RawQuery:  r.URL.RawQuery,
			RequestID: r.Header.Get(RequestIDHeader),
			Auth:      r.Header.Get("Authorization"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 { //nolint:errcheck // Test server
			_ = json.Unmarshal(data, &rec.Body) //nolint:errcheck // Body is optional
		}
		fb.mu.Lock()
		fb.requests = append(fb.requests, rec)
		fb.mu.Unlock()

		resp, ok := fb.routes[r.Method+" "+r.URL.EscapedPath()]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"Not Found"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = io.WriteString(w, resp.body)
	}))
	t.Cleanup(srv.Close)

	client, err := New(config.BackendConfig{BaseURL: srv.URL + "/", Token: "secret", Timeout: 5})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, fb
}

func (fb *fakeBackend) last(t *testing.T) recordedRequest {
	t.Helper()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return fb.requests[len(fb.requests)-1]
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "localhost:8080", "ftp://x", "http://"} {
		if _, err := New(config.BackendConfig{BaseURL: base}); !errors.Is(err, ErrInvalidBaseURL) {
			t.Errorf("New(%q) error = %v, want ErrInvalidBaseURL", base, err)
		}
	}
}

func TestListPersons_EnvelopeAndHeaders(t *testing.T) {
	client, fb := newFakeBackend(t, map[string]fakeResponse{
		"GET " + PathPersons: {200, `{"records":[{"person_id":1001,"person_name":"Ann"},"junk"],"total":1}`},
	})

	persons, err := client.ListPersons(context.Background())
	if err != nil {
		t.Fatalf("ListPersons() error = %v", err)
	}
	if len(persons) != 1 {
		t.Fatalf("got %d persons, want 1", len(persons))
	}
	if id, _ := String(persons[0], "person_id"); id != "1001" {
		t.Errorf("person_id = %q, want 1001", id)
	}

	req := fb.last(t)
	if req.Auth != "Bearer secret" {
		t.Errorf("Authorization = %q", req.Auth)
	}
	if _, err := uuid.Parse(req.RequestID); err != nil {
		t.Errorf("request id %q is not a UUID", req.RequestID)
	}
}

func TestListDevices_Paged(t *testing.T) {
	client, fb := newFakeBackend(t, map[string]fakeResponse{
		"GET " + PathDevices: {200, `{"data":{"records":[{"device_id":"D1"}]}}`},
	})

	devices, err := client.ListDevices(context.Background(), Page{Page: 2, Size: 20})
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices", len(devices))
	}
	if q := fb.last(t).RawQuery; q != "page=2&size=20" {
		t.Errorf("query = %q", q)
	}
}

func TestListAlerts_OmitsEmptyFilters(t *testing.T) {
	client, fb := newFakeBackend(t, map[string]fakeResponse{
		"GET " + PathFallAlerts: {200, `[]`},
	})

	if _, err := client.ListAlerts(context.Background(), AlertQuery{Status: "RESOLVED"}); err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if q := fb.last(t).RawQuery; q != "status=RESOLVED" {
		t.Errorf("query = %q, want status=RESOLVED only", q)
	}

	if _, err := client.ListAlerts(context.Background(), AlertQuery{Category: "FALL", PersonID: "p 1"}); err != nil {
		t.Fatalf("ListAlerts() error = %v", err)
	}
	if q := fb.last(t).RawQuery; q != "category=FALL&personId=p+1" {
		t.Errorf("query = %q", q)
	}
}

func TestHTTPError(t *testing.T) {
	client, _ := newFakeBackend(t, map[string]fakeResponse{
		"GET " + PathMappingsActive: {500, `{"message":"db down","code":"E500"}`},
		"GET " + PathDetections:     {502, `<html>bad gateway</html>`},
	})

	_, err := client.ListActiveMappings(context.Background())
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if he.Status != 500 || he.HTTPStatus() != 500 {
		t.Errorf("Status = %d", he.Status)
	}
	body, ok := he.ResponseBody().(map[string]any)
	if !ok || body["message"] != "db down" {
		t.Errorf("Body = %#v", he.Body)
	}

	_, err = client.DetectionSummaries(context.Background())
	if !errors.As(err, &he) || he.Body != "<html>bad gateway</html>" {
		t.Errorf("non-JSON error body = %#v", he.Body)
	}

	_, err = client.GetDevice(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
}

func TestHTTPError_NilReceiver(t *testing.T) {
	var he *HTTPError
	if he.Error() != "" || he.HTTPStatus() != 0 || he.ResponseBody() != nil {
		t.Error("nil *HTTPError methods should return zero values")
	}
	var err error = he
	if IsNotFound(err) {
		t.Error("IsNotFound(typed nil) = true")
	}
}

func TestDecodeError(t *testing.T) {
	client, _ := newFakeBackend(t, map[string]fakeResponse{
		"GET " + PathPersons: {200, `{not json`},
	})

	if _, err := client.ListPersons(context.Background()); !errors.Is(err, ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestDeviceWrites(t *testing.T) {
	client, fb := newFakeBackend(t, map[string]fakeResponse{
		"POST " + PathDevices:               {201, `{"code":200,"data":{"device_id":"D9"}}`},
		"PUT " + PathDevices + "/D9":        {200, `{"device_id":"D9","device_name":"Bed"}`},
		"PUT " + PathDevices + "/D9/status": {200, ``},
		"PUT " + PathDeviceStatusBatch:      {200, `{}`},
		"DELETE " + PathDevices + "/D9":     {204, ``},
	})
	ctx := context.Background()

	created, err := client.CreateDevice(ctx, Record{"deviceName": "Bed"})
	if err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if created["device_id"] != "D9" {
		t.Errorf("created = %v, want unwrapped data", created)
	}

	if _, err := client.UpdateDevice(ctx, "D9", Record{"deviceName": "Bed"}); err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}

	if err := client.UpdateDeviceStatus(ctx, "D9", "MAINTENANCE"); err != nil {
		t.Fatalf("UpdateDeviceStatus() error = %v", err)
	}
	if got := fb.last(t).Body["status"]; got != "MAINTENANCE" {
		t.Errorf("status body = %v", got)
	}

	if err := client.BatchUpdateDeviceStatus(ctx, []string{"D9", "D10"}, "ONLINE"); err != nil {
		t.Fatalf("BatchUpdateDeviceStatus() error = %v", err)
	}
	if ids, _ := fb.last(t).Body["deviceIds"].([]any); len(ids) != 2 {
		t.Errorf("deviceIds = %v", fb.last(t).Body["deviceIds"])
	}

	if err := client.DeleteDevice(ctx, "D9"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}

	if err := client.DeleteDevice(ctx, " "); !errors.Is(err, ErrMissingID) {
		t.Errorf("DeleteDevice(blank) = %v, want ErrMissingID", err)
	}
	if err := client.BatchUpdateDeviceStatus(ctx, nil, "ONLINE"); !errors.Is(err, ErrMissingID) {
		t.Errorf("BatchUpdateDeviceStatus(nil) = %v, want ErrMissingID", err)
	}
}

func TestMappingWrites(t *testing.T) {
	client, fb := newFakeBackend(t, map[string]fakeResponse{
		"POST " + PathMappings:          {200, `{"id":7,"person_id":"P1","device_id":"D1"}`},
		"DELETE " + PathMappings + "/7": {200, `{"success":true}`},
	})
	ctx := context.Background()

	m, err := client.CreateMapping(ctx, MappingRequest{PersonID: "P1", DeviceID: "D1"})
	if err != nil {
		t.Fatalf("CreateMapping() error = %v", err)
	}
	if id, _ := String(m, "id"); id != "7" {
		t.Errorf("mapping id = %q", id)
	}
	if body := fb.last(t).Body; body["personId"] != "P1" || body["deviceId"] != "D1" {
		t.Errorf("request body = %v", body)
	}

	if err := client.DeleteMapping(ctx, "7"); err != nil {
		t.Fatalf("DeleteMapping() error = %v", err)
	}
	if _, err := client.CreateMapping(ctx, MappingRequest{PersonID: "P1"}); !errors.Is(err, ErrMissingID) {
		t.Errorf("CreateMapping(no device) = %v", err)
	}
}

func TestVitalSamples(t *testing.T) {
	client, fb := newFakeBackend(t, map[string]fakeResponse{
		"GET /api/radar/ti6843/vital/person/P%2F1/samples": {200, `{"content":[{"heartRate":70},{"heartRate":72}]}`},
	})

	samples, err := client.VitalSamples(context.Background(), "P/1", HistoryQuery{Size: 40})
	if err != nil {
		t.Fatalf("VitalSamples() error = %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("got %d samples, want 2", len(samples))
	}
	if q := fb.last(t).RawQuery; q != "size=40" {
		t.Errorf("query = %q", q)
	}
}

func TestDeviceOverview(t *testing.T) {
	client, _ := newFakeBackend(t, map[string]fakeResponse{
		"GET " + PathDeviceOverview: {200, `{"total":3,"online":2,"offline":1}`},
	})

	overview, err := client.DeviceOverview(context.Background())
	if err != nil {
		t.Fatalf("DeviceOverview() error = %v", err)
	}
	if n, _ := Int(overview, "online"); n != 2 {
		t.Errorf("online = %d", n)
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := New(config.BackendConfig{BaseURL: base})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.ListPersons(context.Background())
	var he *HTTPError
	if err == nil || errors.As(err, &he) {
		t.Errorf("error = %v, want transport error", err)
	}
}
