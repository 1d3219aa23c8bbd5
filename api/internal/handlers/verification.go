package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"equipment-inspection-diagnostics-system/api/internal/models"
	"equipment-inspection-diagnostics-system/api/internal/repos"
	"equipment-inspection-diagnostics-system/shared/authx"
	"equipment-inspection-diagnostics-system/shared/classify"
	"equipment-inspection-diagnostics-system/shared/events"
	"equipment-inspection-diagnostics-system/shared/httpx"
	"equipment-inspection-diagnostics-system/shared/logx"
	"equipment-inspection-diagnostics-system/shared/metricsx"
)

const dateLayout = "2006-01-02"

// EquipmentStore is the slice of the verification repository the handlers
// need; tests substitute an in-memory fake.
type EquipmentStore interface {
	Create(ctx context.Context, eq models.VerificationEquipment, performer string, outboxEvent models.OutboxEvent) (models.VerificationEquipment, error)
	Update(ctx context.Context, eq models.VerificationEquipment, performer string, details []byte, outboxEvent models.OutboxEvent) (models.VerificationEquipment, error)
	Deactivate(ctx context.Context, equipmentID uuid.UUID, performer string, outboxEvent models.OutboxEvent) error
	GetByID(ctx context.Context, equipmentID uuid.UUID) (models.VerificationEquipment, error)
	List(ctx context.Context, activeOnly bool) ([]models.VerificationEquipment, error)
	ListHistory(ctx context.Context, equipmentID uuid.UUID, limit int) ([]models.VerificationHistory, error)
	CountByType(ctx context.Context) ([]repos.TypeCount, error)
	CountHistoryActions(ctx context.Context, since time.Time) (map[string]int, error)
	SaveScan(ctx context.Context, equipmentID uuid.UUID, fileName, contentType string, data []byte, performer string) error
	GetScan(ctx context.Context, equipmentID uuid.UUID) (string, string, []byte, error)
}

type StatsCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// AlertsReader exposes the expiry alert rows written by the scanner.
type AlertsReader interface {
	ListRecent(ctx context.Context, since time.Time, limit int) ([]models.VerificationAlert, error)
	CountByBucket(ctx context.Context, since time.Time) (map[string]int, error)
}

type VerificationHandler struct {
	Store        EquipmentStore
	Alerts       AlertsReader
	Cache        StatsCache
	Logger       logx.Logger
	StatsTTL     time.Duration
	MaxScanBytes int64
}

func (h *VerificationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/verification-equipment", h.list)
	mux.HandleFunc("POST /api/v1/verification-equipment", h.create)
	mux.HandleFunc("PUT /api/v1/verification-equipment/{id}", h.update)
	mux.HandleFunc("DELETE /api/v1/verification-equipment/{id}", h.delete)
	mux.HandleFunc("GET /api/v1/verification-equipment/{id}/history", h.history)
	mux.HandleFunc("GET /api/v1/verification-equipment/{id}/scan", h.scan)
	mux.HandleFunc("GET /api/v1/verification-equipment/statistics/usage", h.statistics)
	mux.HandleFunc("GET /api/v1/verification-equipment/alerts/summary", h.alertsSummary)
	mux.HandleFunc("GET /api/v1/verification-equipment/export/csv", h.exportCSV)
}

type equipmentResponse struct {
	ID                   string                      `json:"id"`
	Name                 string                      `json:"name"`
	EquipmentType        string                      `json:"equipment_type"`
	SerialNumber         string                      `json:"serial_number"`
	VerificationDate     *string                     `json:"verification_date"`
	NextVerificationDate *string                     `json:"next_verification_date"`
	DaysUntilExpiry      *int                        `json:"days_until_expiry"`
	IsExpired            bool                        `json:"is_expired"`
	Status               classify.VerificationBucket `json:"status"`
	IsActive             bool                        `json:"is_active"`
	ScanFileName         *string                     `json:"scan_file_name,omitempty"`
	Notes                string                      `json:"notes,omitempty"`
	CreatedAt            time.Time                   `json:"created_at"`
	UpdatedAt            time.Time                   `json:"updated_at"`
}

func toResponse(eq models.VerificationEquipment, now time.Time) equipmentResponse {
	resp := equipmentResponse{
		ID:            eq.EquipmentID.String(),
		Name:          eq.Name,
		EquipmentType: eq.EquipmentType,
		SerialNumber:  eq.SerialNumber,
		IsActive:      eq.IsActive,
		ScanFileName:  eq.ScanFileName,
		Notes:         eq.Notes,
		CreatedAt:     eq.CreatedAt,
		UpdatedAt:     eq.UpdatedAt,
	}
	if eq.VerificationDate != nil {
		d := eq.VerificationDate.Format(dateLayout)
		resp.VerificationDate = &d
	}
	if eq.NextVerificationDate != nil {
		d := eq.NextVerificationDate.Format(dateLayout)
		resp.NextVerificationDate = &d
		days := classify.DaysUntil(*eq.NextVerificationDate, now)
		resp.DaysUntilExpiry = &days
		resp.IsExpired = days <= 0
	}
	resp.Status = classify.VerificationStatus(resp.IsExpired, resp.DaysUntilExpiry)
	return resp
}

func (h *VerificationHandler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v := r.URL.Query().Get("is_active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid is_active", nil)
			return
		}
		activeOnly = parsed
	}

	items, err := h.Store.List(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, r, "equipment_list_failed", err)
		return
	}
	now := time.Now().UTC()
	out := make([]equipmentResponse, 0, len(items))
	for _, eq := range items {
		out = append(out, toResponse(eq, now))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *VerificationHandler) create(w http.ResponseWriter, r *http.Request) {
	eq, scanName, scanType, scanData, errMsg := h.parseForm(r)
	if errMsg != "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", errMsg, nil)
		return
	}
	eq.EquipmentID = uuid.New()
	eq.IsActive = true

	performer := authx.PerformerName(r.Context())
	created, err := h.Store.Create(r.Context(), eq, performer, h.outboxEvent(eq.EquipmentID, "equipment.created", eq))
	if err != nil {
		h.fail(w, r, "equipment_create_failed", err)
		return
	}

	if len(scanData) > 0 {
		if err := h.Store.SaveScan(r.Context(), created.EquipmentID, scanName, scanType, scanData, performer); err != nil {
			h.fail(w, r, "scan_save_failed", err)
			return
		}
		created.ScanFileName = &scanName
		created.ScanContentType = &scanType
		size := int64(len(scanData))
		created.ScanSizeBytes = &size
	}

	httpx.WriteJSON(w, http.StatusCreated, toResponse(created, time.Now().UTC()))
}

func (h *VerificationHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	eq, scanName, scanType, scanData, errMsg := h.parseForm(r)
	if errMsg != "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", errMsg, nil)
		return
	}
	eq.EquipmentID = id

	performer := authx.PerformerName(r.Context())
	details, _ := json.Marshal(map[string]any{"name": eq.Name, "serial_number": eq.SerialNumber})
	updated, err := h.Store.Update(r.Context(), eq, performer, details, h.outboxEvent(id, "equipment.updated", eq))
	if errors.Is(err, repos.ErrEquipmentNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "equipment not found", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "equipment_update_failed", err)
		return
	}

	if len(scanData) > 0 {
		if err := h.Store.SaveScan(r.Context(), id, scanName, scanType, scanData, performer); err != nil {
			h.fail(w, r, "scan_save_failed", err)
			return
		}
		updated.ScanFileName = &scanName
		updated.ScanContentType = &scanType
		size := int64(len(scanData))
		updated.ScanSizeBytes = &size
	}

	httpx.WriteJSON(w, http.StatusOK, toResponse(updated, time.Now().UTC()))
}

func (h *VerificationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	performer := authx.PerformerName(r.Context())
	err := h.Store.Deactivate(r.Context(), id, performer, h.outboxEvent(id, "equipment.deactivated", nil))
	if errors.Is(err, repos.ErrEquipmentNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "equipment not found", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "equipment_delete_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// history returns the audit trail newest-first. Unknown ids degrade to an
// empty list rather than a 404.
func (h *VerificationHandler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Store.ListHistory(r.Context(), id, limit)
	if err != nil {
		h.fail(w, r, "history_list_failed", err)
		return
	}
	type historyResponse struct {
		ID         string          `json:"id"`
		Action     string          `json:"action"`
		Performer  string          `json:"performer"`
		OccurredAt time.Time       `json:"occurred_at"`
		Details    json.RawMessage `json:"details,omitempty"`
	}
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			ID:         e.HistoryID.String(),
			Action:     e.Action,
			Performer:  e.Performer,
			OccurredAt: e.OccurredAt,
			Details:    e.Details,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *VerificationHandler) scan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	fileName, contentType, data, err := h.Store.GetScan(r.Context(), id)
	if errors.Is(err, repos.ErrEquipmentNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "scan not found", nil)
		return
	}
	if err != nil {
		h.fail(w, r, "scan_read_failed", err)
		return
	}

	disposition := "attachment"
	if inline, _ := strconv.ParseBool(r.URL.Query().Get("inline")); inline {
		disposition = "inline"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition+`; filename="`+fileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type usageStatistics struct {
	Days    int            `json:"days"`
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	Buckets map[string]int `json:"buckets"`
	Actions map[string]int `json:"actions"`
}

func (h *VerificationHandler) statistics(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "days must be a positive integer", nil)
			return
		}
		days = parsed
	}

	cacheKey := "verification:stats:" + strconv.Itoa(days)
	if h.Cache != nil {
		var cached usageStatistics
		if hit, err := h.Cache.GetJSON(r.Context(), cacheKey, &cached); err == nil && hit {
			httpx.WriteJSON(w, http.StatusOK, cached)
			return
		}
	}

	stats, err := h.computeStatistics(r.Context(), days)
	if err != nil {
		h.fail(w, r, "statistics_failed", err)
		return
	}

	if h.Cache != nil {
		ttl := h.StatsTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		if err := h.Cache.SetJSON(r.Context(), cacheKey, stats, ttl); err != nil {
			h.Logger.Warn(r.Context(), "stats_cache_write_failed", "stats cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *VerificationHandler) computeStatistics(ctx context.Context, days int) (usageStatistics, error) {
	now := time.Now().UTC()
	stats := usageStatistics{
		Days:    days,
		ByType:  make(map[string]int),
		Buckets: make(map[string]int),
	}

	items, err := h.Store.List(ctx, true)
	if err != nil {
		return usageStatistics{}, err
	}
	stats.Total = len(items)
	for _, eq := range items {
		resp := toResponse(eq, now)
		stats.Buckets[string(resp.Status)]++
	}

	typeCounts, err := h.Store.CountByType(ctx)
	if err != nil {
		return usageStatistics{}, err
	}
	for _, tc := range typeCounts {
		stats.ByType[tc.EquipmentType] = tc.Count
	}

	actions, err := h.Store.CountHistoryActions(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return usageStatistics{}, err
	}
	stats.Actions = actions
	return stats, nil
}

type alertsSummaryResponse struct {
	Days           int             `json:"days"`
	CurrentBuckets map[string]int  `json:"current_buckets,omitempty"`
	AlertCounts    map[string]int  `json:"alert_counts"`
	Recent         []alertResponse `json:"recent"`
}

type alertResponse struct {
	ID          string    `json:"id"`
	EquipmentID string    `json:"equipment_id"`
	Bucket      string    `json:"bucket"`
	DaysLeft    int       `json:"days_left"`
	AlertDate   string    `json:"alert_date"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *VerificationHandler) alertsSummary(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "days must be a positive integer", nil)
			return
		}
		days = parsed
	}

	resp := alertsSummaryResponse{
		Days:        days,
		AlertCounts: make(map[string]int),
		Recent:      []alertResponse{},
	}

	// Bucket snapshot of the whole fleet, refreshed by the expiry scan.
	if h.Cache != nil {
		var current map[string]int
		if hit, err := h.Cache.GetJSON(r.Context(), "verification:buckets", &current); err == nil && hit {
			resp.CurrentBuckets = current
		}
	}

	if h.Alerts != nil {
		since := time.Now().UTC().AddDate(0, 0, -days)
		counts, err := h.Alerts.CountByBucket(r.Context(), since)
		if err != nil {
			h.fail(w, r, "alerts_summary_failed", err)
			return
		}
		resp.AlertCounts = counts

		recent, err := h.Alerts.ListRecent(r.Context(), since, 50)
		if err != nil {
			h.fail(w, r, "alerts_summary_failed", err)
			return
		}
		for _, a := range recent {
			resp.Recent = append(resp.Recent, alertResponse{
				ID:          a.AlertID.String(),
				EquipmentID: a.EquipmentID.String(),
				Bucket:      a.Bucket,
				DaysLeft:    a.DaysLeft,
				AlertDate:   a.AlertDate.Format(dateLayout),
				CreatedAt:   a.CreatedAt,
			})
		}
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *VerificationHandler) exportCSV(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v := r.URL.Query().Get("is_active"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			activeOnly = parsed
		}
	}
	items, err := h.Store.List(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, r, "csv_export_failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="verification-equipment.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := WriteEquipmentCSV(w, items, time.Now().UTC()); err != nil {
		h.Logger.Warn(r.Context(), "csv_write_failed", "csv write failed",
			slog.String("error", err.Error()),
		)
		return
	}
	metricsx.IncCSVExport()
}

func (h *VerificationHandler) parseForm(r *http.Request) (eq models.VerificationEquipment, scanName, scanType string, scanData []byte, errMsg string) {
	maxBytes := h.MaxScanBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return eq, "", "", nil, "invalid multipart form"
	}

	eq.Name = strings.TrimSpace(r.FormValue("name"))
	if eq.Name == "" {
		return eq, "", "", nil, "name is required"
	}
	eq.EquipmentType = strings.TrimSpace(r.FormValue("equipment_type"))
	eq.SerialNumber = strings.TrimSpace(r.FormValue("serial_number"))
	eq.Notes = strings.TrimSpace(r.FormValue("notes"))

	for _, field := range []struct {
		name string
		dst  **time.Time
	}{
		{"verification_date", &eq.VerificationDate},
		{"next_verification_date", &eq.NextVerificationDate},
	} {
		raw := strings.TrimSpace(r.FormValue(field.name))
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return eq, "", "", nil, field.name + " must be YYYY-MM-DD"
		}
		*field.dst = &t
	}

	file, header, err := r.FormFile("scan_file")
	if err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if readErr != nil {
			return eq, "", "", nil, "failed to read scan file"
		}
		if int64(len(data)) > maxBytes {
			return eq, "", "", nil, "scan file too large"
		}
		scanName = header.Filename
		scanType = header.Header.Get("Content-Type")
		scanData = data
	} else if !errors.Is(err, http.ErrMissingFile) {
		return eq, "", "", nil, "invalid scan file"
	}

	return eq, scanName, scanType, scanData, ""
}

func (h *VerificationHandler) outboxEvent(id uuid.UUID, eventType string, payload any) models.OutboxEvent {
	env := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
		AggregateType: events.AggregateVerificationEquipment,
		AggregateID:   id.String(),
		EventType:     eventType,
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			env.Payload = b
		}
	}
	body, _ := json.Marshal(env)
	return models.OutboxEvent{
		EventID:       env.EventID,
		AggregateType: env.AggregateType,
		AggregateID:   env.AggregateID,
		Topic:         events.TopicEquipmentEvents,
		Payload:       body,
	}
}

func (h *VerificationHandler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.Logger.Error(r.Context(), event, "request failed",
		slog.String("error_code", "INTERNAL_ERROR"),
		slog.String("error", err.Error()),
	)
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid equipment id", nil)
		return uuid.Nil, false
	}
	return id, true
}
