package image

import (
	"encoding/base64"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// PayloadKind 响应片段类型
type PayloadKind int

const (
	PayloadInline PayloadKind = iota + 1
	PayloadFile
	PayloadText
)

// Payload 是从响应中识别出的单个片段
type Payload struct {
	Kind     PayloadKind
	MIMEType string
	Data     string // base64, PayloadInline only
	FileURI  string // PayloadFile only
	Text     string // PayloadText only
}

// candidatePaths are tried in order; the second form wraps the body in "response".
var candidatePaths = []string{"candidates", "response.candidates"}

// ExtractPayloads walks candidates[].content.parts[] of a generateContent
// response. Both camelCase and snake_case keys are accepted, thought parts
// are skipped and malformed input yields nil.
func ExtractPayloads(root gjson.Result) []Payload {
	if !root.IsObject() {
		return nil
	}

	var candidates gjson.Result
	for _, path := range candidatePaths {
		if c := root.Get(path); c.IsArray() {
			candidates = c
			break
		}
	}
	if !candidates.Exists() {
		return nil
	}

	var out []Payload
	candidates.ForEach(func(_, candidate gjson.Result) bool {
		parts := candidate.Get("content.parts")
		if !parts.IsArray() {
			return true
		}
		parts.ForEach(func(_, part gjson.Result) bool {
			if p, ok := parsePart(part); ok {
				out = append(out, p)
			}
			return true
		})
		return true
	})
	return out
}

func parsePart(part gjson.Result) (Payload, bool) {
	if !part.IsObject() || part.Get("thought").Bool() {
		return Payload{}, false
	}

	if inline := firstOf(part, "inlineData", "inline_data"); inline.IsObject() {
		data := inline.Get("data").String()
		if data != "" {
			return Payload{
				Kind:     PayloadInline,
				MIMEType: firstOf(inline, "mimeType", "mime_type").String(),
				Data:     data,
			}, true
		}
	}

	if file := firstOf(part, "fileData", "file_data"); file.IsObject() {
		uri := firstOf(file, "fileUri", "file_uri").String()
		if uri != "" {
			return Payload{
				Kind:     PayloadFile,
				MIMEType: firstOf(file, "mimeType", "mime_type").String(),
				FileURI:  uri,
			}, true
		}
	}

	if text := part.Get("text"); text.Type == gjson.String && text.String() != "" {
		return Payload{Kind: PayloadText, Text: text.String()}, true
	}
	return Payload{}, false
}

func firstOf(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// ExtractImages decodes every inline image in raw. File references are
// logged and skipped. When fewer than expected images come back a warning
// is logged and the partial set is returned.
func ExtractImages(raw []byte, expected int, logger *zap.Logger) [][]byte {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !gjson.ValidBytes(raw) {
		logger.Warn("response is not valid JSON, no images extracted")
		return nil
	}

	var images [][]byte
	for _, p := range ExtractPayloads(gjson.ParseBytes(raw)) {
		switch p.Kind {
		case PayloadInline:
			data, err := decodeBase64(p.Data)
			if err != nil || len(data) == 0 {
				logger.Warn("skipping undecodable inline image", zap.Error(err))
				continue
			}
			images = append(images, data)
		case PayloadFile:
			logger.Warn("file references are not downloaded, skipping",
				zap.String("uri", p.FileURI))
		}
	}

	switch {
	case len(images) == 0:
		logger.Warn("no image data found in response")
	case expected > 0 && len(images) < expected:
		logger.Warn("fewer images than requested",
			zap.Int("requested", expected),
			zap.Int("received", len(images)))
	}
	return images
}

// ExtractText joins all text parts with single spaces.
func ExtractText(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	var texts []string
	for _, p := range ExtractPayloads(gjson.ParseBytes(raw)) {
		if p.Kind == PayloadText {
			if t := strings.TrimSpace(p.Text); t != "" {
				texts = append(texts, t)
			}
		}
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}

// decodeBase64 accepts standard, URL-safe, padded and unpadded encodings.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
