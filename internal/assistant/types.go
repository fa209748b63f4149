// Package assistant defines the widget conversation domain: the transcript,
// the session context and the state machine driving both.
package assistant

import "strings"

// Sender role constants.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Persona is one of the fixed response-tone presets selectable by the user.
type Persona string

// Available personas.
const (
	PersonaProfesor       Persona = "Profesor"
	PersonaKakakPintar    Persona = "Kakak Pintar"
	PersonaTemanBaik      Persona = "Teman Baik"
	PersonaSangPenjelajah Persona = "Sang Penjelajah"
)

// Personas lists every selectable persona in presentation order.
func Personas() []Persona {
	return []Persona{PersonaProfesor, PersonaKakakPintar, PersonaTemanBaik, PersonaSangPenjelajah}
}

// Valid reports whether p is one of the known personas.
func (p Persona) Valid() bool {
	switch p {
	case PersonaProfesor, PersonaKakakPintar, PersonaTemanBaik, PersonaSangPenjelajah:
		return true
	}
	return false
}

// ParsePersona resolves a persona name case-insensitively.
func ParsePersona(name string) (Persona, bool) {
	trimmed := strings.TrimSpace(name)
	for _, p := range Personas() {
		if strings.EqualFold(string(p), trimmed) {
			return p, true
		}
	}
	return "", false
}

// ImageAttachment is one image offered to or chosen by the user. Field names
// follow the backend wire format; an attachment is immutable once built.
type ImageAttachment struct {
	URL       string  `json:"url"`
	Prompt    string  `json:"prompt"`
	ClipScore float64 `json:"clipScore"`
	OCRText   string  `json:"ocr_text,omitempty"`
	Caption   string  `json:"caption,omitempty"`
}

// SelectedImage is the reduced view of the active image sent with a chat turn.
type SelectedImage struct {
	Caption string `json:"caption"`
	OCRText string `json:"ocr_text"`
	Prompt  string `json:"prompt"`
}

// Reduced derives the chat-request view of an attachment. The caption falls
// back to the prompt so the backend always gets a description.
func (a ImageAttachment) Reduced() SelectedImage {
	caption := a.Caption
	if caption == "" {
		caption = a.Prompt
	}
	return SelectedImage{
		Caption: caption,
		OCRText: a.OCRText,
		Prompt:  a.Prompt,
	}
}

// Message is one transcript entry. The transcript is append-only; the only
// in-place mutation allowed is the text of the assistant message currently
// being streamed, plus its attachments once decoding completes.
type Message struct {
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	Sender      string            `json:"sender"`
	Attachments []ImageAttachment `json:"attachments,omitempty"`
}

// Context holds the per-session conversation state. One instance per widget
// session, mutated only by engine transitions and reset as a whole on restart.
type Context struct {
	UserName    string           `json:"user_name,omitempty"`
	Persona     Persona          `json:"persona,omitempty"`
	ActiveImage *ImageAttachment `json:"active_image,omitempty"`
}

// State identifies where the session is in its setup flow.
type State string

// Session states, in onboarding order.
const (
	StateAwaitingName    State = "awaiting_name"
	StateAwaitingPersona State = "awaiting_persona"
	StateChatting        State = "chatting"
)

// ChatRequest is the payload forwarded to the backend chat endpoint.
type ChatRequest struct {
	Role          Persona        `json:"role"`
	UserName      string         `json:"user_name"`
	Message       string         `json:"message"`
	SelectedImage *SelectedImage `json:"selected_image,omitempty"`
}
