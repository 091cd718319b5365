package reports

import "time"

// Report is an aggregated power usage report for a date range.
type Report struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	TotalKWh    float64   `json:"total_kwh"`
	PeakKW      float64   `json:"peak_kw"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput carries fields for a new report.
type CreateInput struct {
	Title       string  `json:"title" validate:"required,min=3,max=200"`
	PeriodStart string  `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string  `json:"period_end" validate:"required,datetime=2006-01-02"`
	TotalKWh    float64 `json:"total_kwh" validate:"gte=0"`
	PeakKW      float64 `json:"peak_kw" validate:"gte=0"`
	Notes       string  `json:"notes" validate:"max=2000"`
}

// UpdateInput carries fields for an in-place report update.
type UpdateInput struct {
	Title    string  `json:"title" validate:"required,min=3,max=200"`
	TotalKWh float64 `json:"total_kwh" validate:"gte=0"`
	PeakKW   float64 `json:"peak_kw" validate:"gte=0"`
	Notes    string  `json:"notes" validate:"max=2000"`
}
