package session

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"classtrack/internal/model"
)

// ImportRosterCSV loads roster rows from a license_number,name,email CSV.
// Rows that carry an email are keyed by it, because the email is what the
// student logs in as and what their scans arrive under; rows without one
// fall back to the license number. A header row is skipped when present.
// Blank identifiers are rejected; duplicates within the file collapse onto
// the last occurrence via the upsert. Returns the number of rows imported.
func (s *Service) ImportRosterCSV(ctx context.Context, sessionID string, r io.Reader) (int, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return 0, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	imported := 0
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		line++

		if line == 1 && isHeaderRow(record) {
			continue
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			return imported, fmt.Errorf("csv line %d: missing student identifier", line)
		}

		entry := model.RosterEntry{
			SessionID:     sessionID,
			LicenseNumber: model.NormalizeStudentID(record[0]),
		}
		if len(record) > 1 {
			entry.Name = strings.TrimSpace(record[1])
		}
		if len(record) > 2 {
			entry.Email = strings.TrimSpace(strings.ToLower(record[2]))
		}
		entry.StudentID = entry.LicenseNumber
		if entry.Email != "" {
			entry.StudentID = entry.Email
		}
		if err := s.store.AddRosterEntry(ctx, entry); err != nil {
			return imported, fmt.Errorf("csv line %d: %w", line, err)
		}
		imported++
	}
	return imported, nil
}

func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "license_number" || first == "license" || first == "student_id" || first == "email"
}
