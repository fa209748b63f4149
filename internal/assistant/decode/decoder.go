// Package decode incrementally separates the backend chat stream into
// conversational text and the optional embedded image list.
package decode

import (
	"log/slog"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/atangai/atang/internal/assistant"
)

// Sentinel tokens bracketing the embedded image list. The backend may emit
// the span anywhere in the stream, split across any chunk boundaries.
const (
	MarkerBegin = "###IMAGES###"
	MarkerEnd   = "###END_IMAGES###"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Step is the decoder output after each fed chunk. VisibleText is safe to
// show as-is: it never contains a sentinel, complete or partial.
// Attachments stays nil until the embedded list has been decoded.
type Step struct {
	VisibleText string
	Attachments []assistant.ImageAttachment
}

// Decoder accumulates a chat stream and extracts at most one
// sentinel-delimited image list. It knows nothing about the transport:
// the driver feeds it whatever-sized chunks arrive, and the final result
// is identical for every partition of the same payload.
type Decoder struct {
	logger *slog.Logger

	accumulated string
	spanStart   int
	spanEnd     int
	spanFound   bool
	attachments []assistant.ImageAttachment
}

// NewDecoder creates a decoder for a single stream session.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger.With(slog.String("component", "stream_decoder"))}
}

// Feed appends one chunk and returns the current decode step.
func (d *Decoder) Feed(chunk string) Step {
	d.accumulated += chunk

	if !d.spanFound {
		begin := strings.Index(d.accumulated, MarkerBegin)
		if begin >= 0 {
			rest := d.accumulated[begin+len(MarkerBegin):]
			if end := strings.Index(rest, MarkerEnd); end >= 0 {
				d.spanFound = true
				d.spanStart = begin
				d.spanEnd = begin + len(MarkerBegin) + end + len(MarkerEnd)
				d.extract(rest[:end])
			}
		}
	}

	return d.Current()
}

// Current returns the step for everything fed so far.
func (d *Decoder) Current() Step {
	return Step{
		VisibleText: d.visibleText(),
		Attachments: d.attachments,
	}
}

// Done finalizes the stream. A trailing marker fragment can no longer grow
// into a sentinel, so it is shown as ordinary text; a begin marker that
// never got its end stays hidden.
func (d *Decoder) Done() Step {
	if d.spanFound {
		return Step{
			VisibleText: d.accumulated[:d.spanStart] + d.accumulated[d.spanEnd:],
			Attachments: d.attachments,
		}
	}
	if begin := strings.Index(d.accumulated, MarkerBegin); begin >= 0 {
		return Step{VisibleText: d.accumulated[:begin]}
	}
	return Step{VisibleText: d.accumulated}
}

// extract parses the payload between the sentinels. A malformed payload is
// not fatal: the span is still hidden from the visible text, the turn just
// carries no attachments.
func (d *Decoder) extract(payload string) {
	var atts []assistant.ImageAttachment
	if err := json.UnmarshalFromString(payload, &atts); err != nil {
		d.logger.Warn("embedded image list did not parse", slog.Any("error", err))
		return
	}
	d.attachments = atts
}

func (d *Decoder) visibleText() string {
	if d.spanFound {
		return stripPartialMarker(d.accumulated[:d.spanStart] + d.accumulated[d.spanEnd:])
	}
	if begin := strings.Index(d.accumulated, MarkerBegin); begin >= 0 {
		// Image list still streaming in: hide everything from the begin
		// marker onward until the end marker arrives.
		return d.accumulated[:begin]
	}
	return stripPartialMarker(d.accumulated)
}

// stripPartialMarker trims a trailing fragment that could still grow into a
// sentinel, so a marker split across chunk boundaries never flashes.
func stripPartialMarker(s string) string {
	cut := len(s)
	for _, marker := range []string{MarkerBegin, MarkerEnd} {
		longest := len(marker) - 1
		if longest > len(s) {
			longest = len(s)
		}
		for n := longest; n > 0; n-- {
			if strings.HasSuffix(s[:cut], marker[:n]) {
				cut -= n
				break
			}
		}
	}
	return s[:cut]
}
