package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"leafscan/internal/archive"
	"leafscan/internal/irrigation"
	"leafscan/internal/logger"
	"leafscan/internal/pipeline"
	"leafscan/internal/telemetry"
	"leafscan/internal/voting"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDiagnoser struct {
	ready  bool
	result voting.Result
	err    error
	calls  int
	got    []byte
}

func (f *fakeDiagnoser) Ready() bool { return f.ready }

func (f *fakeDiagnoser) Diagnose(ctx context.Context, data []byte, format string) (voting.Result, error) {
	f.calls++
	f.got = data
	return f.result, f.err
}

type fixture struct {
	server    *Server
	store     *telemetry.MemoryStore
	pump      *irrigation.Controller
	diagnoser *fakeDiagnoser
	imageDir  string
}

func newFixture(t *testing.T, d *fakeDiagnoser) *fixture {
	t.Helper()

	pump, err := irrigation.NewController(logger.Discard(), irrigation.Thresholds{Dry: 50, Wet: 70})
	if err != nil {
		t.Fatal(err)
	}
	imageDir := filepath.Join(t.TempDir(), "images")
	arc, err := archive.New(logger.Discard(), imageDir, nil)
	if err != nil {
		t.Fatal(err)
	}
	store := telemetry.NewMemoryStore()

	srv := New(logger.Discard(), Options{
		Addr:             ":0",
		CORSOrigins:      []string{"*"},
		MaxUploadBytes:   1 << 20,
		TankHeightCm:     100,
		DashboardPlantID: 1,
		StaticDir:        imageDir,
	}, Dependencies{
		Diagnoser: d,
		Pump:      pump,
		Store:     store,
		Archive:   arc,
		Catalogue: telemetry.NewCatalogue([]telemetry.Recommendation{
			{Disease: "Bercak Daun", Recommendation: "Pangkas daun terinfeksi"},
		}),
	})

	return &fixture{server: srv, store: store, pump: pump, diagnoser: d, imageDir: imageDir}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.serve(t, req)
}

func (f *fixture) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func uploadRequest(t *testing.T, path, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &fakeDiagnoser{ready: false})

	rec, body := f.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || body["inference_ready"] != false {
		t.Errorf("healthz = %d %v", rec.Code, body)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestSoilDataPumpDecisions(t *testing.T) {
	f := newFixture(t, &fakeDiagnoser{})

	tests := []struct {
		moisture string
		pump     string
	}{
		{"30", "ON"},
		{"60", "OFF"},
		{"90", "OFF"},
	}
	for _, tt := range tests {
		rec, body := f.do(t, http.MethodPost, "/iot/soil-data", `{"tanaman_id":1,"moisture":`+tt.moisture+`}`)
		if rec.Code != http.StatusOK || body["status"] != "success" || body["pump"] != tt.pump {
			t.Errorf("moisture %s: %d %v, want pump %s", tt.moisture, rec.Code, body, tt.pump)
		}
	}

	logs, _ := f.store.RecentSoilLogs(context.Background(), 1, 20)
	if len(logs) != 3 || !logs[0].PumpOn || logs[0].Trigger != "AUTO" {
		t.Errorf("stored logs = %+v", logs)
	}
}

func TestSoilDataValidation(t *testing.T) {
	f := newFixture(t, &fakeDiagnoser{})

	for _, body := range []string{`{"tanaman_id":1}`, `{"moisture":20}`, `not json`} {
		if rec, _ := f.do(t, http.MethodPost, "/iot/soil-data", body); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("body %s: status %d, want 422", body, rec.Code)
		}
	}

	// Zero moisture is a real reading.
	if rec, body := f.do(t, http.MethodPost, "/iot/soil-data", `{"tanaman_id":1,"moisture":0}`); rec.Code != http.StatusOK || body["pump"] != "ON" {
		t.Errorf("zero moisture: %d %v", rec.Code, body)
	}
}

func TestManualControlFlow(t *testing.T) {
	f := newFixture(t, &fakeDiagnoser{})

	_, body := f.do(t, http.MethodPost, "/web/manual-control", `{"action":"ON"}`)
	if body["mode"] != "MANUAL_ON" {
		t.Fatalf("manual on = %v", body)
	}

	_, body = f.do(t, http.MethodPost, "/iot/soil-data", `{"tanaman_id":1,"moisture":60}`)
	if body["pump"] != "ON" {
		t.Errorf("override not applied: %v", body)
	}

	f.do(t, http.MethodPost, "/iot/soil-data", `{"tanaman_id":1,"moisture":75}`)
	if f.pump.Manual() {
		t.Error("wet reading did not clear the override")
	}

	_, body = f.do(t, http.MethodPost, "/web/manual-control", `{"action":"off"}`)
	if body["mode"] != "AUTO" {
		t.Errorf("manual off = %v", body)
	}
}

func TestWaterLevelAndDashboard(t *testing.T) {
	f := newFixture(t, &fakeDiagnoser{})

	_, body := f.do(t, http.MethodGet, "/web/dashboard-metrics", "")
	if body["soil_moisture"] != 0.0 || body["pump_status"] != false || body["tank_percent"] != 0.0 {
		t.Errorf("empty dashboard = %v", body)
	}

	rec, body := f.do(t, http.MethodPost, "/iot/water-level", `{"distance_cm":20}`)
	if rec.Code != http.StatusOK || body["status"] != "recorded" || body["level_percent"] != 80.0 {
		t.Errorf("water level = %d %v", rec.Code, body)
	}
	f.do(t, http.MethodPost, "/iot/water-level", `{"distance_cm":150}`)
	f.do(t, http.MethodPost, "/iot/soil-data", `{"tanaman_id":1,"moisture":42.5}`)
	f.do(t, http.MethodPost, "/iot/soil-data", `{"tanaman_id":2,"moisture":99}`)

	_, body = f.do(t, http.MethodGet, "/web/dashboard-metrics", "")
	if body["soil_moisture"] != 42.5 || body["pump_status"] != true || body["tank_percent"] != 0.0 {
		t.Errorf("dashboard = %v", body)
	}
}

func TestChartData(t *testing.T) {
	f := newFixture(t, &fakeDiagnoser{})

	for _, m := range []string{"10", "20", "30"} {
		f.do(t, http.MethodPost, "/iot/soil-data", `{"tanaman_id":4,"moisture":`+m+`}`)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/web/chart-data/4?limit=2", nil))

	var logs []telemetry.SoilLog
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 2 || logs[0].Moisture != 20 || logs[1].Moisture != 30 {
		t.Errorf("chart data = %+v", logs)
	}

	if rec, _ := f.do(t, http.MethodGet, "/web/chart-data/abc", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad plant id status = %d", rec.Code)
	}
}

func TestDetectDisease(t *testing.T) {
	d := &fakeDiagnoser{
		ready: true,
		result: voting.Result{
			Dominant:    "Bercak Daun",
			DominantKey: "bercak_daun",
			Confidence:  87.5,
			Breakdown:   voting.Breakdown{{Label: "bercak_daun", Percent: 75}, {Label: "sehat", Percent: 25}},
		},
	}
	f := newFixture(t, d)

	rec, body := f.serve(t, uploadRequest(t, "/iot/detect-disease?tanaman_id=3", "leaf.JPG", []byte("jpeg bytes")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %v", rec.Code, body)
	}
	if body["message"] != "Deteksi Selesai" || body["hasil"] != "Bercak Daun" ||
		body["confidence"] != 87.5 || body["rekomendasi"] != "Pangkas daun terinfeksi" {
		t.Errorf("response = %v", body)
	}
	if string(d.got) != "jpeg bytes" {
		t.Errorf("diagnoser saw %q", d.got)
	}

	records, _ := f.store.Diagnoses(context.Background(), 3)
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.UserID != 1 || r.RecommendationID == nil || *r.RecommendationID != 1 || !strings.HasSuffix(r.Image, "_tanaman3.jpg") {
		t.Errorf("record = %+v", r)
	}
	if _, err := os.Stat(filepath.Join(f.imageDir, r.Image)); err != nil {
		t.Errorf("upload not archived: %v", err)
	}

	static := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(static, httptest.NewRequest(http.MethodGet, "/static/images/"+r.Image, nil))
	if static.Code != http.StatusOK || static.Body.String() != "jpeg bytes" {
		t.Errorf("static file = %d %q", static.Code, static.Body.String())
	}
}

func TestDetectDiseaseDefaultAdvice(t *testing.T) {
	d := &fakeDiagnoser{ready: true, result: voting.Result{Dominant: voting.NotDetected, DominantKey: voting.NotDetected, Breakdown: voting.Breakdown{}}}
	f := newFixture(t, d)

	_, body := f.serve(t, uploadRequest(t, "/iot/detect-disease?tanaman_id=1", "leaf.png", []byte("x")))
	if body["hasil"] != "Not Detected" || body["confidence"] != 0.0 || body["rekomendasi"] != telemetry.DefaultAdvice {
		t.Errorf("response = %v", body)
	}

	records, _ := f.store.Diagnoses(context.Background(), 1)
	if len(records) != 1 || records[0].RecommendationID != nil {
		t.Errorf("records = %+v, want one record without a recommendation", records)
	}
}

func TestDetectDiseaseErrors(t *testing.T) {
	tests := []struct {
		name   string
		d      *fakeDiagnoser
		path   string
		status int
	}{
		{"not ready", &fakeDiagnoser{ready: false}, "/iot/detect-disease?tanaman_id=1", http.StatusServiceUnavailable},
		{"unreadable", &fakeDiagnoser{ready: true, err: pipeline.ErrImageUnreadable}, "/iot/detect-disease?tanaman_id=1", http.StatusUnprocessableEntity},
		{"busy", &fakeDiagnoser{ready: true, err: fmt.Errorf("standardize: %w", pipeline.ErrBusy)}, "/iot/detect-disease?tanaman_id=1", http.StatusServiceUnavailable},
		{"failure", &fakeDiagnoser{ready: true, err: context.DeadlineExceeded}, "/iot/detect-disease?tanaman_id=1", http.StatusInternalServerError},
		{"missing plant", &fakeDiagnoser{ready: true}, "/iot/detect-disease", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		f := newFixture(t, tt.d)
		rec, body := f.serve(t, uploadRequest(t, tt.path, "leaf.jpg", []byte("x")))
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d (%v), want %d", tt.name, rec.Code, body, tt.status)
		}
	}

	f := newFixture(t, &fakeDiagnoser{ready: false})
	_, body := f.serve(t, uploadRequest(t, "/iot/detect-disease?tanaman_id=1", "leaf.jpg", []byte("x")))
	if body["error"] != "inference unavailable" {
		t.Errorf("unavailable body = %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, &fakeDiagnoser{})

	req := httptest.NewRequest(http.MethodOptions, "/iot/soil-data", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rec.Code)
	}
	h := rec.Header()
	if h.Get("Access-Control-Allow-Origin") != "http://dashboard.local" ||
		h.Get("Access-Control-Allow-Credentials") != "true" ||
		!strings.Contains(h.Get("Access-Control-Allow-Headers"), "Content-Type") ||
		!strings.Contains(h.Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("preflight headers = %v", h)
	}
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	handler := gin.New()
	handler.Use(corsPolicy([]string{"http://farm.local/"}))
	handler.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://farm.local", true},
		{"http://evil.local", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("%s: allow origin = %q", tt.origin, got)
		}
		if !tt.allowed && (got != "" || rec.Code != http.StatusForbidden) {
			t.Errorf("%s: status %d allow origin %q, want 403 and none", tt.origin, rec.Code, got)
		}
	}
}
