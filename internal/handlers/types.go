package handlers

import (
	"github.com/go-playground/validator/v10"

	"github.com/atangai/atang/internal/assistant"
)

// ErrorResponse is the uniform error body. Message is a short, localized,
// human-readable string; raw transport or parser detail never leaves the
// server.
type ErrorResponse struct {
	Message string `json:"message"`
}

// Localized client-facing validation messages.
const (
	searchQueryNotice    = "Masukkan deskripsi gambar"
	invalidPersonaNotice = "Pilihan teman belajar tidak dikenal"
	wrongStateNotice     = "Aksi itu belum bisa dilakukan sekarang"
	sessionUnknownNotice = "Sesi tidak ditemukan, mulai chat baru ya"
)

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

// SendMessageRequest is the body for submitting user input.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// PersonaRequest is the body for choosing a persona.
type PersonaRequest struct {
	Persona string `json:"persona" validate:"required"`
}

// SelectAttachmentRequest designates one offered attachment as active.
type SelectAttachmentRequest struct {
	Attachment assistant.ImageAttachment `json:"attachment" validate:"required"`
}

// SessionResponse describes a session's externally visible state.
type SessionResponse struct {
	SessionID string              `json:"session_id"`
	State     assistant.State     `json:"state"`
	Context   assistant.Context   `json:"context"`
	Messages  []assistant.Message `json:"messages"`
	Personas  []assistant.Persona `json:"personas"`
}

// TurnResponse is the JSON answer for non-streaming turns.
type TurnResponse struct {
	Kind     string              `json:"kind"`
	State    assistant.State     `json:"state"`
	Messages []assistant.Message `json:"messages"`
}

// StreamFrame is one SSE/WebSocket frame of a streaming turn.
type StreamFrame struct {
	VisibleText string                      `json:"visible_text"`
	Attachments []assistant.ImageAttachment `json:"attachments,omitempty"`
	Error       string                      `json:"error,omitempty"`
}
