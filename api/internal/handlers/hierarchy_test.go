package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"equipment-inspection-diagnostics-system/api/internal/forms"
	"equipment-inspection-diagnostics-system/api/internal/hierarchy"
	"equipment-inspection-diagnostics-system/shared/logx"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ []byte, _ []byte, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func testTreeStore(t *testing.T) *hierarchy.Store {
	t.Helper()
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	s, err := hierarchy.NewStore(hierarchy.Node{
		ID:   "root",
		Name: "Assets",
		Type: hierarchy.NodeRoot,
		Children: []hierarchy.Node{
			{
				ID:   "company",
				Name: "Operating Company",
				Type: hierarchy.NodeCompany,
				Children: []hierarchy.Node{
					{
						ID:                 "sep",
						Name:               "Separator",
						Type:               hierarchy.NodeEquipment,
						EquipmentType:      "pressure_vessel",
						Status:             hierarchy.StatusCritical,
						NextInspectionDate: &yesterday,
						Attributes:         hierarchy.Attributes{"a": "1", "b": "2"},
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func testHierarchyMux(t *testing.T) (*http.ServeMux, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	h := NewHierarchyHandler(testTreeStore(t), pub, logx.New("test", "test", "", "error"))
	mux := http.NewServeMux()
	h.Register(mux)
	return mux, pub
}

func postJSON(mux *http.ServeMux, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestTreeEndpoint(t *testing.T) {
	mux, _ := testHierarchyMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hierarchy/tree", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tree hierarchy.Node
	if err := json.Unmarshal(rec.Body.Bytes(), &tree); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tree.ID != "root" || len(tree.Children) != 1 {
		t.Fatalf("unexpected tree: %+v", tree)
	}
}

func TestToggleEndpointInvolution(t *testing.T) {
	mux, _ := testHierarchyMux(t)

	rec := postJSON(mux, "/api/v1/hierarchy/nav/toggle", `{"node_id":"company"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"expanded":true`) {
		t.Fatalf("expected expanded true: %s", rec.Body.String())
	}

	rec = postJSON(mux, "/api/v1/hierarchy/nav/toggle", `{"node_id":"company"}`)
	if !strings.Contains(rec.Body.String(), `"expanded":false`) {
		t.Fatalf("expected expanded false after second toggle: %s", rec.Body.String())
	}
}

func TestSelectEndpointAutoExpandsAndClassifies(t *testing.T) {
	mux, _ := testHierarchyMux(t)

	rec := postJSON(mux, "/api/v1/hierarchy/nav/select", `{"node_id":"company"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/hierarchy/nav", nil))
	var rows []navRowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Root expanded by default, company auto-expanded by selection.
	if len(rows) != 3 {
		t.Fatalf("expected 3 visible rows, got %d", len(rows))
	}

	rec = postJSON(mux, "/api/v1/hierarchy/nav/select", `{"node_id":"sep"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var detail nodeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Countdown == nil {
		t.Fatalf("expected countdown on equipment node")
	}
	if detail.Countdown.DaysLeft != -1 || detail.Countdown.OverdueDays != 1 {
		t.Fatalf("expected overdue by 1 day, got %+v", detail.Countdown)
	}
}

func TestSelectUnknownNodeEndpoint(t *testing.T) {
	mux, _ := testHierarchyMux(t)
	rec := postJSON(mux, "/api/v1/hierarchy/nav/select", `{"node_id":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSavePassportEndpoint(t *testing.T) {
	mux, pub := testHierarchyMux(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/hierarchy/nodes/sep/passport",
		strings.NewReader(`{"attributes":{"a":"1","b":"3","c":"4"}}`))
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Changes []string     `json:"changes"`
		Node    nodeResponse `json:"node"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %v", out.Changes)
	}
	if len(out.Node.History) != 1 || out.Node.History[0].Type != hierarchy.EventAttributeChange {
		t.Fatalf("expected synthesized history entry, got %+v", out.Node.History)
	}

	// Publish is async fire-and-forget.
	deadline := time.Now().Add(time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.topics)
		pub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 published event, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSavePassportNoChangesNoEvent(t *testing.T) {
	mux, pub := testHierarchyMux(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/hierarchy/nodes/sep/passport",
		strings.NewReader(`{"attributes":{"a":1,"b":"2"}}`))
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Changes []string     `json:"changes"`
		Node    nodeResponse `json:"node"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Changes) != 0 {
		t.Fatalf("loose equality must see no changes: %v", out.Changes)
	}
	if len(out.Node.History) != 0 {
		t.Fatalf("identical save must not write history: %+v", out.Node.History)
	}
	time.Sleep(20 * time.Millisecond)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.topics) != 0 {
		t.Fatalf("no-change save must not publish")
	}
}

func TestSavePassportOnContainer(t *testing.T) {
	mux, _ := testHierarchyMux(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/hierarchy/nodes/company/passport",
		strings.NewReader(`{"attributes":{"a":"1"}}`))
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAddHistoryValidation(t *testing.T) {
	mux, _ := testHierarchyMux(t)

	rec := postJSON(mux, "/api/v1/hierarchy/nodes/sep/history", `{"title":"Repair","description":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty description, got %d", rec.Code)
	}

	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/v1/hierarchy/nodes/sep/history", nil))
	if got := strings.TrimSpace(getRec.Body.String()); got != "[]" {
		t.Fatalf("rejected event must not change history: %s", got)
	}

	rec = postJSON(mux, "/api/v1/hierarchy/nodes/sep/history",
		`{"title":"Valve replaced","description":"Relief valve replaced after seat leakage","type":"repair"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var ev hierarchy.MaintenanceEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Performer != hierarchy.DefaultPerformer {
		t.Fatalf("expected default performer, got %q", ev.Performer)
	}
}

func TestAddDocumentEndpoint(t *testing.T) {
	mux, _ := testHierarchyMux(t)

	rec := postJSON(mux, "/api/v1/hierarchy/nodes/sep/documents",
		`{"name":"EPB report 2026","category":"epb_report","size":"3.2 MB","extension":"pdf"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc hierarchy.AttachedDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ID == "" || doc.UploadedBy.Name == "" {
		t.Fatalf("expected generated id and uploader, got %+v", doc)
	}
}

func TestFormsEndpoints(t *testing.T) {
	reg, err := forms.NewRegistry(forms.SeedSchemas()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	h := &FormsHandler{Registry: reg}
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/forms/pipeline", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"drawing_thickness"`) {
		t.Fatalf("expected thickness field in schema: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/forms/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
