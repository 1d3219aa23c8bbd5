package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateSendsMultipartAndBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart parse: %v", err)
		}
		if r.FormValue("name") != "Pressure gauge" {
			t.Fatalf("name field = %q", r.FormValue("name"))
		}
		file, header, err := r.FormFile("scan_file")
		if err != nil {
			t.Fatalf("scan file: %v", err)
		}
		file.Close()
		if header.Filename != "cert.pdf" {
			t.Fatalf("scan filename = %q", header.Filename)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Equipment{ID: "abc", Name: "Pressure gauge", IsActive: true})
	}))
	defer srv.Close()

	c, err := New(srv.URL, "tok-123", time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eq, err := c.Create(context.Background(), EquipmentInput{
		Name: "Pressure gauge",
		Scan: &ScanFile{FileName: "cert.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if eq.ID != "abc" || !eq.IsActive {
		t.Fatalf("unexpected equipment: %+v", eq)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_ARGUMENT","message":"name is required"}}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", time.Second)
	_, err := c.Create(context.Background(), EquipmentInput{})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("want *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "INVALID_ARGUMENT" || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestDeactivateMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", time.Second)
	if err := c.Deactivate(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestExportCSVStreams(t *testing.T) {
	body := "\xEF\xBB\xBF\"Name\",\"Type\"\r\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/verification-equipment/export/csv" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", time.Second)
	var buf bytes.Buffer
	n, err := c.ExportCSV(context.Background(), &buf)
	if err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if n != int64(len(body)) || buf.String() != body {
		t.Fatalf("exported %d bytes: %q", n, buf.String())
	}
}

func TestDownloadScanUsesContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="cert.pdf"`)
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", time.Second)
	name, ct, data, err := c.DownloadScan(context.Background(), "abc")
	if err != nil {
		t.Fatalf("DownloadScan: %v", err)
	}
	if name != "cert.pdf" || ct != "application/pdf" || string(data) != "%PDF" {
		t.Fatalf("got %q %q %q", name, ct, data)
	}
}
