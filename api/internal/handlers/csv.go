package handlers

import (
	"io"
	"strings"
	"time"

	"equipment-inspection-diagnostics-system/api/internal/models"
)

// csvHeader is the fixed export layout consumed by spreadsheet users; the
// column set and order are part of the interface.
var csvHeader = []string{"Name", "Type", "Serial Number", "Verification Date", "Next Verification Date", "Status"}

// WriteEquipmentCSV renders the export: a UTF-8 byte-order mark so desktop
// spreadsheet tools detect the encoding, then header plus one row per
// record, every field double-quoted.
func WriteEquipmentCSV(w io.Writer, items []models.VerificationEquipment, now time.Time) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}
	if err := writeCSVRow(w, csvHeader); err != nil {
		return err
	}
	for _, eq := range items {
		resp := toResponse(eq, now)
		row := []string{
			eq.Name,
			eq.EquipmentType,
			eq.SerialNumber,
			formatDatePtr(eq.VerificationDate),
			formatDatePtr(eq.NextVerificationDate),
			string(resp.Status),
		}
		if err := writeCSVRow(w, row); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVRow(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
