package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"equipment-inspection-diagnostics-system/api/internal/hierarchy"
	"equipment-inspection-diagnostics-system/shared/authx"
	"equipment-inspection-diagnostics-system/shared/classify"
	"equipment-inspection-diagnostics-system/shared/events"
	"equipment-inspection-diagnostics-system/shared/httpx"
	"equipment-inspection-diagnostics-system/shared/logx"
)

// EventPublisher is the slice of the Kafka producer the hierarchy handlers
// use; publishes are fire-and-forget.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// HierarchyHandler serves the equipment tree, its navigation state and the
// digital passport operations. The portal renders one shared tree view, so
// a single nav state guarded by the handler mutex is the whole session
// model.
type HierarchyHandler struct {
	Store     *hierarchy.Store
	Publisher EventPublisher
	Logger    logx.Logger

	mu  sync.Mutex
	nav *hierarchy.NavState
}

func NewHierarchyHandler(store *hierarchy.Store, publisher EventPublisher, logger logx.Logger, seedExpanded ...string) *HierarchyHandler {
	return &HierarchyHandler{
		Store:     store,
		Publisher: publisher,
		Logger:    logger,
		nav:       hierarchy.NewNavState(store, seedExpanded...),
	}
}

func (h *HierarchyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/hierarchy/tree", h.tree)
	mux.HandleFunc("GET /api/v1/hierarchy/nav", h.navRows)
	mux.HandleFunc("POST /api/v1/hierarchy/nav/toggle", h.toggle)
	mux.HandleFunc("POST /api/v1/hierarchy/nav/select", h.selectNode)
	mux.HandleFunc("GET /api/v1/hierarchy/nodes/{id}", h.node)
	mux.HandleFunc("PUT /api/v1/hierarchy/nodes/{id}/passport", h.savePassport)
	mux.HandleFunc("GET /api/v1/hierarchy/nodes/{id}/history", h.nodeHistory)
	mux.HandleFunc("POST /api/v1/hierarchy/nodes/{id}/history", h.addHistory)
	mux.HandleFunc("POST /api/v1/hierarchy/nodes/{id}/documents", h.addDocument)
}

func (h *HierarchyHandler) tree(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.Store.Tree())
}

type nodeResponse struct {
	hierarchy.Node
	Countdown *classify.Countdown `json:"countdown,omitempty"`
}

func (h *HierarchyHandler) nodeDetail(n hierarchy.Node) nodeResponse {
	resp := nodeResponse{Node: n}
	if n.Type == hierarchy.NodeEquipment && n.NextInspectionDate != nil {
		cd := classify.InspectionCountdown(*n.NextInspectionDate, time.Now().UTC())
		resp.Countdown = &cd
	}
	return resp
}

func (h *HierarchyHandler) node(w http.ResponseWriter, r *http.Request) {
	n, err := h.Store.Get(r.PathValue("id"))
	if errors.Is(err, hierarchy.ErrNodeNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "node not found", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "node_read_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.nodeDetail(n))
}

type navRowResponse struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     hierarchy.NodeType `json:"type"`
	Status   hierarchy.Status `json:"status,omitempty"`
	Depth    int              `json:"depth"`
	Expanded bool             `json:"expanded"`
	Selected bool             `json:"selected"`
}

func (h *HierarchyHandler) navRows(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	rows := h.nav.VisibleRows(h.Store)
	h.mu.Unlock()

	out := make([]navRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, navRowResponse{
			ID:       row.Node.ID,
			Name:     row.Node.Name,
			Type:     row.Node.Type,
			Status:   row.Node.Status,
			Depth:    row.Depth,
			Expanded: row.Expanded,
			Selected: row.Selected,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type navRequest struct {
	NodeID string `json:"node_id"`
}

func (h *HierarchyHandler) toggle(w http.ResponseWriter, r *http.Request) {
	var req navRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "node_id is required", nil)
		return
	}

	h.mu.Lock()
	h.nav.ToggleExpansion(req.NodeID)
	expanded := h.nav.IsExpanded(req.NodeID)
	h.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"node_id":  req.NodeID,
		"expanded": expanded,
	})
}

func (h *HierarchyHandler) selectNode(w http.ResponseWriter, r *http.Request) {
	var req navRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NodeID == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "node_id is required", nil)
		return
	}

	h.mu.Lock()
	err := h.nav.Select(h.Store, req.NodeID)
	h.mu.Unlock()
	if errors.Is(err, hierarchy.ErrNodeNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "node not found", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "node_select_failed", err)
		return
	}

	n, err := h.Store.Get(req.NodeID)
	if err != nil {
		h.fail(w, r, "node_read_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.nodeDetail(n))
}

type passportRequest struct {
	Attributes hierarchy.Attributes `json:"attributes"`
}

func (h *HierarchyHandler) savePassport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req passportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Attributes == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "attributes are required", nil)
		return
	}

	performer := authx.PerformerName(r.Context())
	changes, err := h.Store.SavePassport(id, req.Attributes, performer, time.Now())
	if errors.Is(err, hierarchy.ErrNodeNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "node not found", nil)
		return
	}
	if errors.Is(err, hierarchy.ErrNotEquipment) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "node does not carry a passport", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "passport_save_failed", err)
		return
	}

	if len(changes) > 0 {
		h.publish(id, "passport.updated", map[string]any{"changes": changes})
	}

	n, err := h.Store.Get(id)
	if err != nil {
		h.fail(w, r, "node_read_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"changes": changes,
		"node":    h.nodeDetail(n),
	})
}

func (h *HierarchyHandler) nodeHistory(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.Store.History(r.PathValue("id")))
}

type historyRequest struct {
	Type        hierarchy.EventType `json:"type"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Date        string              `json:"date"`
	Performer   string              `json:"performer"`
	DocumentRef string              `json:"document_ref"`
}

func (h *HierarchyHandler) addHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}

	ev := hierarchy.MaintenanceEvent{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Performer:   req.Performer,
		DocumentRef: req.DocumentRef,
	}
	if req.Date != "" {
		d, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "date must be YYYY-MM-DD", nil)
			return
		}
		ev.Date = d
	}
	if ev.Performer == "" {
		ev.Performer = authx.PerformerName(r.Context())
	}

	created, err := h.Store.AddEvent(id, ev, time.Now())
	var verr *hierarchy.ValidationError
	if errors.As(err, &verr) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", verr.Error(), map[string]any{"field": verr.Field})
		return
	}
	if errors.Is(err, hierarchy.ErrNodeNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "node not found", nil)
		return
	}
	if errors.Is(err, hierarchy.ErrNotEquipment) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "node does not carry a passport", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "history_add_failed", err)
		return
	}

	h.publish(id, "history.added", created)
	httpx.WriteJSON(w, http.StatusCreated, created)
}

type documentRequest struct {
	Name      string                     `json:"name"`
	Category  hierarchy.DocumentCategory `json:"category"`
	Size      string                     `json:"size"`
	Extension string                     `json:"extension"`
}

func (h *HierarchyHandler) addDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body", nil)
		return
	}

	doc := hierarchy.AttachedDocument{
		Name:      req.Name,
		Category:  req.Category,
		Size:      req.Size,
		Extension: req.Extension,
		UploadedBy: hierarchy.Uploader{
			Name: authx.PerformerName(r.Context()),
		},
	}

	created, err := h.Store.AddDocument(id, doc, time.Now())
	var verr *hierarchy.ValidationError
	if errors.As(err, &verr) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", verr.Error(), map[string]any{"field": verr.Field})
		return
	}
	if errors.Is(err, hierarchy.ErrNodeNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "node not found", nil)
		return
	}
	if errors.Is(err, hierarchy.ErrNotEquipment) {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "node does not carry documents", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "document_add_failed", err)
		return
	}

	h.publish(id, "document.added", created)
	httpx.WriteJSON(w, http.StatusCreated, created)
}

// publish sends the node event to Kafka in the background. A broker failure
// is logged and the request outcome is unaffected.
func (h *HierarchyHandler) publish(nodeID string, eventType string, payload any) {
	if h.Publisher == nil {
		return
	}
	env := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
		AggregateType: events.AggregateHierarchyNode,
		AggregateID:   nodeID,
		EventType:     eventType,
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			env.Payload = b
		}
	}
	body, err := json.Marshal(env)
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Publisher.Publish(ctx, events.TopicEquipmentEvents, []byte(nodeID), body, nil); err != nil {
			h.Logger.Warn(ctx, "event_publish_failed", "event publish failed",
				slog.String("topic", events.TopicEquipmentEvents),
				slog.String("node_id", nodeID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (h *HierarchyHandler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.Logger.Error(r.Context(), event, "request failed",
		slog.String("error_code", "INTERNAL_ERROR"),
		slog.String("error", err.Error()),
	)
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
}
