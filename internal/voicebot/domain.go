package voicebot

import "time"

// Call is one recorded voicebot interaction.
type Call struct {
	ID              int64     `json:"id"`
	CallSID         string    `json:"call_sid"`
	Caller          string    `json:"caller"`
	Intent          string    `json:"intent"`
	Status          string    `json:"status"`
	DurationSeconds int       `json:"duration_seconds"`
	Transcript      string    `json:"transcript,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// IngestInput carries fields for recording a finished call.
type IngestInput struct {
	CallSID         string `json:"call_sid" validate:"required,min=4,max=64"`
	Caller          string `json:"caller" validate:"required,max=32"`
	Intent          string `json:"intent" validate:"required,max=80"`
	Status          string `json:"status" validate:"required,oneof=COMPLETED FAILED ABANDONED"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
	Transcript      string `json:"transcript" validate:"max=20000"`
	StartedAt       string `json:"started_at" validate:"required"`
}
