package flow

import (
	"context"
	"log/slog"

	"github.com/atangai/atang/internal/assistant"
	"github.com/atangai/atang/internal/assistant/decode"
)

// Streamer issues one chat request and delivers the response body to
// onChunk in arrival order, in whatever sizes the transport produces.
type Streamer interface {
	StreamChat(ctx context.Context, req assistant.ChatRequest, onChunk func(string)) error
}

// StreamSession is the in-flight half of a chat turn. Exactly one assistant
// placeholder was appended when it was armed; every decode step rewrites
// that placeholder and nothing else.
type StreamSession struct {
	engine     *Engine
	request    assistant.ChatRequest
	messageID  string
	generation uint64
}

// Request returns the outbound chat payload, mainly for logging and tests.
func (s *StreamSession) Request() assistant.ChatRequest {
	return s.request
}

// Run drives the backend stream to completion. Each decoded step is applied
// to the placeholder message and forwarded to onStep (when non-nil) for
// transport relays. On a transport failure the placeholder is replaced by
// the fixed apology; the decode state never leaks to the user.
func (s *StreamSession) Run(ctx context.Context, onStep func(decode.Step)) error {
	dec := decode.NewDecoder(s.engine.logger)

	err := s.engine.backend.StreamChat(ctx, s.request, func(chunk string) {
		step := dec.Feed(chunk)
		s.engine.applyStep(s.generation, s.messageID, step)
		if onStep != nil {
			onStep(step)
		}
	})
	if err == nil {
		final := dec.Done()
		s.engine.applyStep(s.generation, s.messageID, final)
		if onStep != nil {
			onStep(final)
		}
	}

	s.engine.finishStream(s.generation, s.messageID, err)
	if err != nil {
		s.engine.logger.Warn("chat stream failed", slog.Any("error", err))
	}
	return err
}

// applyStep rewrites the streaming placeholder in place. Steps belonging to
// a restarted session are dropped: the transcript they targeted is gone.
func (e *Engine) applyStep(generation uint64, messageID string, step decode.Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation != e.generation {
		return
	}
	for i := range e.messages {
		if e.messages[i].ID != messageID {
			continue
		}
		e.messages[i].Text = step.VisibleText
		if step.Attachments != nil && e.messages[i].Attachments == nil {
			e.messages[i].Attachments = step.Attachments
		}
		return
	}
}

// finishStream releases the send gate and, on failure, substitutes the
// apology for whatever the placeholder held.
func (e *Engine) finishStream(generation uint64, messageID string, streamErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation != e.generation {
		return
	}
	e.streaming = false
	if streamErr == nil {
		return
	}
	for i := range e.messages {
		if e.messages[i].ID == messageID {
			e.messages[i].Text = ApologyText
			return
		}
	}
}
