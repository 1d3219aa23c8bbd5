package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"equipment-inspection-diagnostics-system/api/internal/models"
	"equipment-inspection-diagnostics-system/api/internal/repos"
	"equipment-inspection-diagnostics-system/shared/logx"
)

type fakeEquipmentStore struct {
	items   map[uuid.UUID]models.VerificationEquipment
	history map[uuid.UUID][]models.VerificationHistory
	scans   map[uuid.UUID][]byte
	outbox  []models.OutboxEvent
}

func newFakeStore() *fakeEquipmentStore {
	return &fakeEquipmentStore{
		items:   make(map[uuid.UUID]models.VerificationEquipment),
		history: make(map[uuid.UUID][]models.VerificationHistory),
		scans:   make(map[uuid.UUID][]byte),
	}
}

func (f *fakeEquipmentStore) Create(_ context.Context, eq models.VerificationEquipment, performer string, ev models.OutboxEvent) (models.VerificationEquipment, error) {
	now := time.Now().UTC()
	eq.CreatedAt, eq.UpdatedAt = now, now
	f.items[eq.EquipmentID] = eq
	f.history[eq.EquipmentID] = append([]models.VerificationHistory{{
		HistoryID:   uuid.New(),
		EquipmentID: eq.EquipmentID,
		Action:      repos.HistoryActionCreated,
		Performer:   performer,
		OccurredAt:  now,
	}}, f.history[eq.EquipmentID]...)
	f.outbox = append(f.outbox, ev)
	return eq, nil
}

func (f *fakeEquipmentStore) Update(_ context.Context, eq models.VerificationEquipment, performer string, _ []byte, ev models.OutboxEvent) (models.VerificationEquipment, error) {
	existing, ok := f.items[eq.EquipmentID]
	if !ok || !existing.IsActive {
		return models.VerificationEquipment{}, repos.ErrEquipmentNotFound
	}
	eq.IsActive = true
	eq.CreatedAt = existing.CreatedAt
	eq.UpdatedAt = time.Now().UTC()
	f.items[eq.EquipmentID] = eq
	f.outbox = append(f.outbox, ev)
	return eq, nil
}

func (f *fakeEquipmentStore) Deactivate(_ context.Context, id uuid.UUID, _ string, ev models.OutboxEvent) error {
	eq, ok := f.items[id]
	if !ok || !eq.IsActive {
		return repos.ErrEquipmentNotFound
	}
	eq.IsActive = false
	f.items[id] = eq
	f.outbox = append(f.outbox, ev)
	return nil
}

func (f *fakeEquipmentStore) GetByID(_ context.Context, id uuid.UUID) (models.VerificationEquipment, error) {
	eq, ok := f.items[id]
	if !ok {
		return models.VerificationEquipment{}, repos.ErrEquipmentNotFound
	}
	return eq, nil
}

func (f *fakeEquipmentStore) List(_ context.Context, activeOnly bool) ([]models.VerificationEquipment, error) {
	var out []models.VerificationEquipment
	for _, eq := range f.items {
		if activeOnly && !eq.IsActive {
			continue
		}
		out = append(out, eq)
	}
	return out, nil
}

func (f *fakeEquipmentStore) ListHistory(_ context.Context, id uuid.UUID, _ int) ([]models.VerificationHistory, error) {
	return f.history[id], nil
}

func (f *fakeEquipmentStore) CountByType(_ context.Context) ([]repos.TypeCount, error) {
	counts := make(map[string]int)
	for _, eq := range f.items {
		if eq.IsActive {
			counts[eq.EquipmentType]++
		}
	}
	var out []repos.TypeCount
	for t, n := range counts {
		out = append(out, repos.TypeCount{EquipmentType: t, Count: n})
	}
	return out, nil
}

func (f *fakeEquipmentStore) CountHistoryActions(_ context.Context, _ time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	for _, entries := range f.history {
		for _, e := range entries {
			counts[e.Action]++
		}
	}
	return counts, nil
}

func (f *fakeEquipmentStore) SaveScan(_ context.Context, id uuid.UUID, fileName, contentType string, data []byte, _ string) error {
	eq, ok := f.items[id]
	if !ok {
		return repos.ErrEquipmentNotFound
	}
	f.scans[id] = data
	size := int64(len(data))
	eq.ScanFileName = &fileName
	eq.ScanContentType = &contentType
	eq.ScanSizeBytes = &size
	f.items[id] = eq
	return nil
}

func (f *fakeEquipmentStore) GetScan(_ context.Context, id uuid.UUID) (string, string, []byte, error) {
	data, ok := f.scans[id]
	if !ok {
		return "", "", nil, repos.ErrEquipmentNotFound
	}
	eq := f.items[id]
	name, ctype := "", ""
	if eq.ScanFileName != nil {
		name = *eq.ScanFileName
	}
	if eq.ScanContentType != nil {
		ctype = *eq.ScanContentType
	}
	return name, ctype, data, nil
}

func testHandler(store EquipmentStore) (*VerificationHandler, *http.ServeMux) {
	h := &VerificationHandler{
		Store:  store,
		Logger: logx.New("test", "test", "", "error"),
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func seedEquipment(f *fakeEquipmentStore, name string, daysUntil int) uuid.UUID {
	id := uuid.New()
	next := time.Now().UTC().AddDate(0, 0, daysUntil)
	verified := next.AddDate(-1, 0, 0)
	f.items[id] = models.VerificationEquipment{
		EquipmentID:          id,
		Name:                 name,
		EquipmentType:        "manometer",
		SerialNumber:         "SN-" + name,
		VerificationDate:     &verified,
		NextVerificationDate: &next,
		IsActive:             true,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}
	return id
}

func TestListClassifiesExpiry(t *testing.T) {
	f := newFakeStore()
	seedEquipment(f, "expired", -3)
	seedEquipment(f, "soon", 5)
	seedEquipment(f, "ok", 90)
	_, mux := testHandler(f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment?is_active=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out []equipmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	byName := make(map[string]equipmentResponse)
	for _, e := range out {
		byName[e.Name] = e
	}
	if !byName["expired"].IsExpired || byName["expired"].Status != "expired" {
		t.Fatalf("expected expired bucket, got %+v", byName["expired"])
	}
	if byName["soon"].Status != "warning_7" {
		t.Fatalf("expected warning_7, got %q", byName["soon"].Status)
	}
	if byName["ok"].Status != "ok" || byName["ok"].IsExpired {
		t.Fatalf("expected ok bucket, got %+v", byName["ok"])
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("scan_file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(fileData); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestCreateEquipmentWithScan(t *testing.T) {
	f := newFakeStore()
	_, mux := testHandler(f)

	body, ctype := multipartBody(t, map[string]string{
		"name":                   "Pressure gauge",
		"equipment_type":         "manometer",
		"serial_number":          "MG-100",
		"verification_date":      "2026-01-10",
		"next_verification_date": "2027-01-10",
	}, "cert.pdf", []byte("%PDF-1.4 test"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification-equipment", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out equipmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != "Pressure gauge" || out.SerialNumber != "MG-100" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if out.ScanFileName == nil || *out.ScanFileName != "cert.pdf" {
		t.Fatalf("expected scan metadata, got %+v", out.ScanFileName)
	}
	if len(f.outbox) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(f.outbox))
	}
	if len(f.scans) != 1 {
		t.Fatalf("expected stored scan bytes")
	}
}

func TestCreateRequiresName(t *testing.T) {
	f := newFakeStore()
	_, mux := testHandler(f)

	body, ctype := multipartBody(t, map[string]string{"serial_number": "X"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification-equipment", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(f.items) != 0 {
		t.Fatalf("rejected create must not store anything")
	}
	if !strings.Contains(rec.Body.String(), "INVALID_ARGUMENT") {
		t.Fatalf("expected INVALID_ARGUMENT envelope: %s", rec.Body.String())
	}
}

func TestDeleteDeactivates(t *testing.T) {
	f := newFakeStore()
	id := seedEquipment(f, "gauge", 10)
	_, mux := testHandler(f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/verification-equipment/"+id.String(), nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if f.items[id].IsActive {
		t.Fatalf("expected soft deactivation")
	}

	// Second delete: already inactive, treated as absent.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/verification-equipment/"+id.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", rec.Code)
	}
}

func TestHistoryUnknownIDIsEmptyList(t *testing.T) {
	f := newFakeStore()
	_, mux := testHandler(f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment/"+uuid.NewString()+"/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("expected empty array, got %s", got)
	}
}

func TestExportCSVShape(t *testing.T) {
	f := newFakeStore()
	seedEquipment(f, `Gauge "A"`, -1)
	seedEquipment(f, "Gauge B", 15)
	_, mux := testHandler(f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment/export/csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	raw := rec.Body.Bytes()
	if !bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatalf("expected UTF-8 BOM prefix")
	}
	lines := strings.Split(strings.TrimSpace(string(raw[3:])), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	for i, line := range lines {
		if got := countCSVFields(line); got != 6 {
			t.Fatalf("line %d: expected 6 fields, got %d: %s", i, got, line)
		}
	}
	if !strings.Contains(string(raw), `"Gauge ""A"""`) {
		t.Fatalf("expected escaped quotes in name field: %s", raw)
	}
}

// countCSVFields counts top-level commas outside quoted regions.
func countCSVFields(line string) int {
	fields := 1
	inQuotes := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				fields++
			}
		}
	}
	return fields
}

func TestScanServedInline(t *testing.T) {
	f := newFakeStore()
	id := seedEquipment(f, "gauge", 10)
	name, ctype := "cert.pdf", "application/pdf"
	f.scans[id] = []byte("%PDF-1.4")
	eq := f.items[id]
	eq.ScanFileName, eq.ScanContentType = &name, &ctype
	f.items[id] = eq
	_, mux := testHandler(f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment/"+id.String()+"/scan?inline=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "inline;") {
		t.Fatalf("expected inline disposition, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected pdf content type, got %q", got)
	}
}

func TestStatisticsComputation(t *testing.T) {
	f := newFakeStore()
	seedEquipment(f, "a", -1)
	seedEquipment(f, "b", 5)
	seedEquipment(f, "c", 90)
	_, mux := testHandler(f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment/statistics/usage?days=14", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats usageStatistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Days != 14 || stats.Total != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Buckets["expired"] != 1 || stats.Buckets["warning_7"] != 1 || stats.Buckets["ok"] != 1 {
		t.Fatalf("unexpected buckets: %+v", stats.Buckets)
	}
	if stats.ByType["manometer"] != 3 {
		t.Fatalf("unexpected by_type: %+v", stats.ByType)
	}
}

type fakeAlertsReader struct {
	alerts []models.VerificationAlert
}

func (f *fakeAlertsReader) ListRecent(ctx context.Context, since time.Time, limit int) ([]models.VerificationAlert, error) {
	var out []models.VerificationAlert
	for _, a := range f.alerts {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertsReader) CountByBucket(ctx context.Context, since time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	for _, a := range f.alerts {
		if !a.CreatedAt.Before(since) {
			counts[a.Bucket]++
		}
	}
	return counts, nil
}

func TestAlertsSummary(t *testing.T) {
	now := time.Now().UTC()
	h, mux := testHandler(newFakeStore())
	h.Alerts = &fakeAlertsReader{alerts: []models.VerificationAlert{
		{AlertID: uuid.New(), EquipmentID: uuid.New(), Bucket: "expired", DaysLeft: -2, AlertDate: now, CreatedAt: now},
		{AlertID: uuid.New(), EquipmentID: uuid.New(), Bucket: "warning_7", DaysLeft: 3, AlertDate: now, CreatedAt: now},
		{AlertID: uuid.New(), EquipmentID: uuid.New(), Bucket: "expired", DaysLeft: -10, AlertDate: now, CreatedAt: now.AddDate(0, 0, -30)},
	}}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment/alerts/summary?days=7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp alertsSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Days != 7 {
		t.Fatalf("expected days 7, got %d", resp.Days)
	}
	if resp.AlertCounts["expired"] != 1 || resp.AlertCounts["warning_7"] != 1 {
		t.Fatalf("stale alert must fall outside the window: %+v", resp.AlertCounts)
	}
	if len(resp.Recent) != 2 {
		t.Fatalf("expected 2 recent alerts, got %d", len(resp.Recent))
	}
}

func TestAlertsSummaryWithoutAlertsStore(t *testing.T) {
	_, mux := testHandler(newFakeStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment/alerts/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp alertsSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Recent) != 0 || len(resp.AlertCounts) != 0 {
		t.Fatalf("expected empty summary, got %+v", resp)
	}
}

func TestStatisticsRejectsBadDays(t *testing.T) {
	f := newFakeStore()
	_, mux := testHandler(f)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verification-equipment/statistics/usage?days=-5", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
