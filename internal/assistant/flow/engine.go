// Package flow drives the widget conversation: name capture, persona
// selection, chat turn routing and the active-image context.
package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/atangai/atang/internal/assistant"
)

// Fixed assistant copy. The widget speaks Indonesian.
const (
	GreetingText      = "Halo! Aku Atang. Siapa namamu?"
	nameReplyFormat   = "Salam kenal, %s! 👋\nSekarang, pilih teman belajarmu di bawah ini ya!"
	endReplyFormat    = "Oke %s, kita kembali ke mode diskusi ya. Mau ngobrol apa?"
	selectAckText     = "Oke, kita pakai gambar ini ya."
	ApologyText       = "Maaf, terjadi kesalahan saat menghubungi Si Atang. Coba lagi ya!"
	EmptyInputNotice  = "Ketik pesan dulu ya!"
	PickPersonaNotice = "Pilih teman belajarmu dulu ya!"
)

// Tokens that leave image mode.
var endTokens = []string{"end", "selesai"}

// Transition errors.
var (
	ErrEmptyInput      = errors.New("empty input")
	ErrPersonaRequired = errors.New("persona not selected yet")
	ErrInvalidPersona  = errors.New("unknown persona")
	ErrWrongState      = errors.New("not allowed in current state")
)

// TurnKind classifies the outcome of a submitted input.
type TurnKind string

const (
	// TurnImmediate answered locally; Replies holds the appended messages.
	TurnImmediate TurnKind = "immediate"
	// TurnQueued was appended to the transcript while a request is in
	// flight; no second request is issued.
	TurnQueued TurnKind = "queued"
	// TurnStream opened a backend chat request; drive Stream to completion.
	TurnStream TurnKind = "stream"
)

// Turn is the result of Engine.SubmitInput.
type Turn struct {
	Kind    TurnKind
	Replies []assistant.Message
	Stream  *StreamSession
}

// Engine owns one widget session: its transcript, context and state. All
// mutation is serialized through the engine; the browser's single event
// loop becomes a per-session mutex here.
type Engine struct {
	logger  *slog.Logger
	backend Streamer

	mu        sync.Mutex
	state     assistant.State
	context   assistant.Context
	messages  []assistant.Message
	streaming bool
	// generation fences late stream results from a restarted session.
	generation uint64
}

// NewEngine creates a session engine with the greeting already in the
// transcript.
func NewEngine(logger *slog.Logger, backend Streamer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:  logger.With(slog.String("component", "conversation_flow")),
		backend: backend,
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.state = assistant.StateAwaitingName
	e.context = assistant.Context{}
	e.messages = []assistant.Message{{
		ID:     uuid.NewString(),
		Text:   GreetingText,
		Sender: assistant.SenderAssistant,
	}}
	e.streaming = false
	e.generation++
}

// Restart resets the session to the initial greeting, from any state.
func (e *Engine) Restart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

// State returns the current session state.
func (e *Engine) State() assistant.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Context returns a copy of the session context.
func (e *Engine) Context() assistant.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := e.context
	if ctx.ActiveImage != nil {
		img := *ctx.ActiveImage
		ctx.ActiveImage = &img
	}
	return ctx
}

// Streaming reports whether a chat request is in flight.
func (e *Engine) Streaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming
}

// Messages returns a snapshot of the transcript.
func (e *Engine) Messages() []assistant.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]assistant.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// SubmitInput routes one user input through the state machine.
func (e *Engine) SubmitInput(text string) (Turn, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Turn{}, ErrEmptyInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case assistant.StateAwaitingName:
		return e.captureName(trimmed), nil
	case assistant.StateAwaitingPersona:
		return Turn{}, ErrPersonaRequired
	case assistant.StateChatting:
		if isEndToken(trimmed) {
			return e.leaveImageMode(trimmed), nil
		}
		if e.streaming {
			msg := e.append(assistant.SenderUser, trimmed)
			return Turn{Kind: TurnQueued, Replies: []assistant.Message{msg}}, nil
		}
		return e.openStream(trimmed), nil
	default:
		return Turn{}, ErrWrongState
	}
}

// captureName stores the user's name and asks for a persona. The name is
// set exactly once per session; only a restart clears it.
func (e *Engine) captureName(name string) Turn {
	e.context.UserName = name
	e.state = assistant.StateAwaitingPersona
	userMsg := e.append(assistant.SenderUser, name)
	reply := e.append(assistant.SenderAssistant, fmt.Sprintf(nameReplyFormat, name))
	return Turn{Kind: TurnImmediate, Replies: []assistant.Message{userMsg, reply}}
}

func (e *Engine) leaveImageMode(input string) Turn {
	e.context.ActiveImage = nil
	userMsg := e.append(assistant.SenderUser, input)
	reply := e.append(assistant.SenderAssistant, fmt.Sprintf(endReplyFormat, e.context.UserName))
	return Turn{Kind: TurnImmediate, Replies: []assistant.Message{userMsg, reply}}
}

// openStream appends the user message plus the assistant placeholder and
// arms the stream session that will fill the placeholder in.
func (e *Engine) openStream(input string) Turn {
	userMsg := e.append(assistant.SenderUser, input)
	placeholder := e.append(assistant.SenderAssistant, "")
	e.streaming = true

	req := assistant.ChatRequest{
		Role:     e.context.Persona,
		UserName: e.context.UserName,
		Message:  input,
	}
	if e.context.ActiveImage != nil {
		reduced := e.context.ActiveImage.Reduced()
		req.SelectedImage = &reduced
	}

	return Turn{
		Kind:    TurnStream,
		Replies: []assistant.Message{userMsg, placeholder},
		Stream: &StreamSession{
			engine:     e,
			request:    req,
			messageID:  placeholder.ID,
			generation: e.generation,
		},
	}
}

// ChoosePersona moves from persona selection into chatting.
func (e *Engine) ChoosePersona(p assistant.Persona) error {
	if !p.Valid() {
		return ErrInvalidPersona
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != assistant.StateAwaitingPersona {
		return ErrWrongState
	}
	e.context.Persona = p
	e.state = assistant.StateChatting
	return nil
}

// ChangePersona returns to persona selection, keeping the user name, the
// transcript and the active image.
func (e *Engine) ChangePersona() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != assistant.StateChatting {
		return ErrWrongState
	}
	e.context.Persona = ""
	e.state = assistant.StateAwaitingPersona
	return nil
}

// SelectAttachment makes one of the offered attachments the active image
// and acknowledges it. The session state does not change.
func (e *Engine) SelectAttachment(att assistant.ImageAttachment) assistant.Message {
	return e.setActiveImage(att, selectAckText)
}

// AttachDropped applies a normalized drop payload with its source-specific
// acknowledgment.
func (e *Engine) AttachDropped(att assistant.ImageAttachment, ack string) assistant.Message {
	if ack == "" {
		ack = selectAckText
	}
	return e.setActiveImage(att, ack)
}

func (e *Engine) setActiveImage(att assistant.ImageAttachment, ack string) assistant.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	img := att
	e.context.ActiveImage = &img
	return e.append(assistant.SenderAssistant, ack)
}

// append adds a message to the transcript. Callers hold e.mu.
func (e *Engine) append(sender, text string) assistant.Message {
	msg := assistant.Message{
		ID:     uuid.NewString(),
		Text:   text,
		Sender: sender,
	}
	e.messages = append(e.messages, msg)
	return msg
}

func isEndToken(input string) bool {
	lowered := strings.ToLower(input)
	for _, tok := range endTokens {
		if lowered == tok {
			return true
		}
	}
	return false
}
