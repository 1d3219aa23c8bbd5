// Package client is a typed HTTP client for the verification-equipment
// API, intended for CLI tooling and service-to-service calls.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Equipment mirrors the API representation of one verification unit.
type Equipment struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	EquipmentType        string     `json:"equipment_type"`
	SerialNumber         string     `json:"serial_number"`
	VerificationDate     *string    `json:"verification_date"`
	NextVerificationDate *string    `json:"next_verification_date"`
	DaysUntilExpiry      *int       `json:"days_until_expiry"`
	IsExpired            bool       `json:"is_expired"`
	Status               string     `json:"status"`
	IsActive             bool       `json:"is_active"`
	ScanFileName         *string    `json:"scan_file_name,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type HistoryEntry struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Performer  string          `json:"performer"`
	OccurredAt time.Time       `json:"occurred_at"`
	Details    json.RawMessage `json:"details,omitempty"`
}

type Statistics struct {
	Days    int            `json:"days"`
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	Buckets map[string]int `json:"buckets"`
	Actions map[string]int `json:"actions"`
}

// EquipmentInput carries the mutable fields of a create or update call.
// Dates are YYYY-MM-DD; empty strings are omitted. Scan attaches an
// optional verification certificate scan.
type EquipmentInput struct {
	Name                 string
	EquipmentType        string
	SerialNumber         string
	VerificationDate     string
	NextVerificationDate string
	Notes                string
	Scan                 *ScanFile
}

type ScanFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// APIError is returned for any non-2xx response, carrying the error
// envelope the server produced.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

var ErrNotFound = errors.New("equipment not found")

func New(baseURL string, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api base url required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) List(ctx context.Context, activeOnly bool) ([]Equipment, error) {
	var out []Equipment
	path := "/api/v1/verification-equipment?is_active=" + strconv.FormatBool(activeOnly)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, in EquipmentInput) (Equipment, error) {
	return c.sendForm(ctx, http.MethodPost, "/api/v1/verification-equipment", in)
}

func (c *Client) Update(ctx context.Context, id string, in EquipmentInput) (Equipment, error) {
	return c.sendForm(ctx, http.MethodPut, "/api/v1/verification-equipment/"+url.PathEscape(id), in)
}

// Deactivate soft-deletes a unit. The record stays in history and
// statistics; it just leaves the active list.
func (c *Client) Deactivate(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/verification-equipment/"+url.PathEscape(id), nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return nil
}

func (c *Client) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	path := "/api/v1/verification-equipment/" + url.PathEscape(id) + "/history"
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Statistics(ctx context.Context, days int) (Statistics, error) {
	var out Statistics
	path := "/api/v1/verification-equipment/statistics/usage"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return Statistics{}, err
	}
	return out, nil
}

// ExportCSV streams the register export into w and returns the number of
// bytes written. The payload is UTF-8 with a BOM, ready for spreadsheet
// import.
func (c *Client) ExportCSV(ctx context.Context, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/verification-equipment/export/csv", nil, "")
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return 0, decodeAPIError(resp)
	}
	return io.Copy(w, resp.Body)
}

// DownloadScan fetches the stored certificate scan for a unit.
func (c *Client) DownloadScan(ctx context.Context, id string) (fileName string, contentType string, data []byte, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/verification-equipment/"+url.PathEscape(id)+"/scan", nil, "")
	if err != nil {
		return "", "", nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", "", nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return "", "", nil, decodeAPIError(resp)
	}
	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return "", "", nil, err
	}
	_, params, _ := parseContentDisposition(resp.Header.Get("Content-Disposition"))
	return params["filename"], resp.Header.Get("Content-Type"), data, nil
}

func (c *Client) sendForm(ctx context.Context, method string, path string, in EquipmentInput) (Equipment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"name":                   in.Name,
		"equipment_type":         in.EquipmentType,
		"serial_number":          in.SerialNumber,
		"verification_date":      in.VerificationDate,
		"next_verification_date": in.NextVerificationDate,
		"notes":                  in.Notes,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return Equipment{}, err
		}
	}
	if in.Scan != nil {
		part, err := mw.CreateFormFile("scan_file", in.Scan.FileName)
		if err != nil {
			return Equipment{}, err
		}
		if _, err := part.Write(in.Scan.Data); err != nil {
			return Equipment{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return Equipment{}, err
	}

	req, err := c.newRequest(ctx, method, path, &buf, mw.FormDataContentType())
	if err != nil {
		return Equipment{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Equipment{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Equipment{}, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return Equipment{}, decodeAPIError(resp)
	}
	var out Equipment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Equipment{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) newRequest(ctx context.Context, method string, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: "INTERNAL_ERROR", Message: "request failed"}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func parseContentDisposition(v string) (string, map[string]string, error) {
	if v == "" {
		return "", map[string]string{}, nil
	}
	mediaType, params, err := mime.ParseMediaType(v)
	if err != nil {
		return "", map[string]string{}, err
	}
	return mediaType, params, nil
}
