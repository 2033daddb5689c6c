package models

import "time"

type DiagnosticStatus string

const (
	DiagnosticPending DiagnosticStatus = "pending"
	DiagnosticDone    DiagnosticStatus = "done"
	DiagnosticFailed  DiagnosticStatus = "failed"
)

// DiagnosticInput is what the user submitted: either free text or one media file.
type DiagnosticInput struct {
	Text        *string `json:"text,omitempty"`
	MediaBase64 string  `json:"media_base64,omitempty"`
	MediaType   string  `json:"media_type,omitempty"`
	MIME        string  `json:"mime,omitempty"`
	Name        string  `json:"name,omitempty"`
	ObjectKey   string  `json:"object_key,omitempty"`
}

func (in DiagnosticInput) HasMedia() bool {
	return in.MediaBase64 != "" || in.ObjectKey != ""
}

type Finding struct {
	ID             int    `json:"id"`
	Title          string `json:"title"`
	Confidence     int    `json:"confidence"`
	Urgency        string `json:"urgency"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

type Diagnostic struct {
	ID        string           `json:"id"`
	ChatID    string           `json:"chat_id,omitempty"`
	UserID    *string          `json:"user_id"`
	VehicleID *int64           `json:"vehicle_id"`
	Input     DiagnosticInput  `json:"input"`
	Result    []Finding        `json:"result"`
	Status    DiagnosticStatus `json:"status"`
	Signature []byte           `json:"-"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type DiagnosticRequest struct {
	ChatID    string          `json:"chat_id,omitempty"`
	VehicleID *int64          `json:"vehicle_id,omitempty"`
	Input     DiagnosticInput `json:"input"`
}
