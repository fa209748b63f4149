// Package attachment normalizes heterogeneous drag/drop payloads into the
// canonical image attachment used by the conversation engine.
package attachment

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/atangai/atang/internal/assistant"
)

// Placeholder strings for sources that carry no description of their own.
const (
	UploadedFileCaption = "Gambar diunggah pengguna"
	WebImageFallbackAlt = "Gambar dari web"
	URLImagePlaceholder = "Gambar dari URL"
)

// Source identifies which drop-payload kind produced an attachment.
type Source string

// Recognized payload kinds, in resolution priority order.
const (
	SourceInternal Source = "internal"
	SourceFile     Source = "file"
	SourceMarkup   Source = "markup"
	SourceURI      Source = "uri"
)

// DroppedFile describes a file dropped from the OS. PreviewURL is the
// transient object URL the client created for local display.
type DroppedFile struct {
	Name       string `json:"name"`
	PreviewURL string `json:"preview_url"`
}

// DropPayload mirrors the data kinds a browser drop event can carry at once.
// Kinds are opaque here; each is resolved by exactly one branch below.
type DropPayload struct {
	InternalJSON string        `json:"internal_json,omitempty"`
	Files        []DroppedFile `json:"files,omitempty"`
	HTML         string        `json:"html,omitempty"`
	URIList      string        `json:"uri_list,omitempty"`
}

// Result is a normalized attachment plus the branch that produced it.
type Result struct {
	Attachment assistant.ImageAttachment
	Source     Source
}

// Acknowledgment is the assistant's reply confirming a successful drop,
// phrased per source kind.
func (r Result) Acknowledgment() string {
	switch r.Source {
	case SourceFile:
		return fmt.Sprintf("Siap! Kita pakai gambar \"%s\" yang kamu upload. Kamu mau belajar bagian mana?", r.Attachment.Prompt)
	case SourceURI:
		return "Sip! Gambar dari URL sudah masuk. Yuk belajar!"
	default:
		return fmt.Sprintf("Oke! Kita bahas gambar \"%s\" ini ya. Mau tanya apa?", r.Attachment.Prompt)
	}
}

// internalImage is the serialized record used for in-app image drags.
type internalImage struct {
	Type      string  `json:"type"`
	URL       string  `json:"url"`
	Prompt    string  `json:"prompt"`
	ClipScore float64 `json:"clipScore"`
	Caption   string  `json:"caption"`
	OCRText   string  `json:"ocr_text"`
}

// Normalize resolves a drop payload into exactly one attachment, first match
// wins: internal record, then file, then embedded markup, then bare URI.
// It is pure and total: malformed branches fall through, and a payload with
// no recognizable kind yields ok=false.
func Normalize(p DropPayload) (Result, bool) {
	if att, ok := fromInternal(p.InternalJSON); ok {
		return Result{Attachment: att, Source: SourceInternal}, true
	}
	if att, ok := fromFile(p.Files); ok {
		return Result{Attachment: att, Source: SourceFile}, true
	}
	if att, ok := fromMarkup(p.HTML); ok {
		return Result{Attachment: att, Source: SourceMarkup}, true
	}
	if att, ok := fromURIList(p.URIList); ok {
		return Result{Attachment: att, Source: SourceURI}, true
	}
	return Result{}, false
}

func fromInternal(raw string) (assistant.ImageAttachment, bool) {
	if strings.TrimSpace(raw) == "" {
		return assistant.ImageAttachment{}, false
	}
	var rec internalImage
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return assistant.ImageAttachment{}, false
	}
	if rec.Type != "image" || rec.URL == "" {
		return assistant.ImageAttachment{}, false
	}
	return assistant.ImageAttachment{
		URL:       rec.URL,
		Prompt:    rec.Prompt,
		ClipScore: rec.ClipScore,
		Caption:   rec.Caption,
		OCRText:   rec.OCRText,
	}, true
}

func fromFile(files []DroppedFile) (assistant.ImageAttachment, bool) {
	if len(files) == 0 {
		return assistant.ImageAttachment{}, false
	}
	f := files[0]
	if f.PreviewURL == "" {
		return assistant.ImageAttachment{}, false
	}
	return assistant.ImageAttachment{
		URL:     f.PreviewURL,
		Prompt:  f.Name,
		Caption: UploadedFileCaption,
	}, true
}

func fromMarkup(fragment string) (assistant.ImageAttachment, bool) {
	if strings.TrimSpace(fragment) == "" {
		return assistant.ImageAttachment{}, false
	}
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return assistant.ImageAttachment{}, false
	}
	src, alt, found := findImg(node)
	if !found || src == "" {
		return assistant.ImageAttachment{}, false
	}
	if alt == "" {
		alt = WebImageFallbackAlt
	}
	return assistant.ImageAttachment{
		URL:     src,
		Prompt:  alt,
		Caption: alt,
	}, true
}

func findImg(n *html.Node) (src, alt string, found bool) {
	if n.Type == html.ElementNode && n.Data == "img" {
		for _, a := range n.Attr {
			switch a.Key {
			case "src":
				src = a.Val
			case "alt":
				alt = a.Val
			}
		}
		return src, alt, true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s, a, ok := findImg(c); ok {
			return s, a, true
		}
	}
	return "", "", false
}

// fromURIList takes the first entry of a text/uri-list value; lines starting
// with "#" are comments per the format.
func fromURIList(list string) (assistant.ImageAttachment, bool) {
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return assistant.ImageAttachment{
			URL:     line,
			Prompt:  URLImagePlaceholder,
			Caption: URLImagePlaceholder,
		}, true
	}
	return assistant.ImageAttachment{}, false
}
