package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"
)

// WriteCSV renders events as a CSV document for download.
func WriteCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"at", "user_id", "action", "resource", "details"}); err != nil {
		return nil, err
	}
	for _, event := range events {
		var details string
		if len(event.Details) > 0 {
			raw, err := json.Marshal(event.Details)
			if err != nil {
				return nil, err
			}
			details = string(raw)
		}
		record := []string{
			event.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(event.UserID, 10),
			event.Action,
			event.Resource,
			details,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
