package image

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestExtractPayloads_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Payload
	}{
		{
			name: "top level candidates",
			body: `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"` + b64("png") + `"}}]}}]}`,
			want: []Payload{{Kind: PayloadInline, MIMEType: "image/png", Data: b64("png")}},
		},
		{
			name: "nested response",
			body: `{"response":{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}}`,
			want: []Payload{{Kind: PayloadText, Text: "hello"}},
		},
		{
			name: "snake case",
			body: `{"candidates":[{"content":{"parts":[{"inline_data":{"mime_type":"image/jpeg","data":"` + b64("jpg") + `"}},{"file_data":{"file_uri":"gs://x"}}]}}]}`,
			want: []Payload{
				{Kind: PayloadInline, MIMEType: "image/jpeg", Data: b64("jpg")},
				{Kind: PayloadFile, FileURI: "gs://x"},
			},
		},
		{
			name: "thought parts skipped",
			body: `{"candidates":[{"content":{"parts":[{"text":"thinking","thought":true},{"text":"answer"}]}}]}`,
			want: []Payload{{Kind: PayloadText, Text: "answer"}},
		},
		{
			name: "multiple candidates",
			body: `{"candidates":[{"content":{"parts":[{"text":"a"}]}},{"content":{"parts":[{"text":"b"}]}}]}`,
			want: []Payload{{Kind: PayloadText, Text: "a"}, {Kind: PayloadText, Text: "b"}},
		},
		{name: "missing content", body: `{"candidates":[{}]}`},
		{name: "parts not an array", body: `{"candidates":[{"content":{"parts":"nope"}}]}`},
		{name: "candidates not an array", body: `{"candidates":{"content":{}}}`},
		{name: "empty object", body: `{}`},
		{name: "array root", body: `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPayloads(gjson.Parse(tt.body))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractImages_DecodesAndWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	body := `{"candidates":[{"content":{"parts":[
		{"inlineData":{"mimeType":"image/png","data":"` + b64("first") + `"}},
		{"fileData":{"fileUri":"https://files/1"}},
		{"inlineData":{"data":"` + base64.RawURLEncoding.EncodeToString([]byte("second")) + `"}}
	]}}]}`

	images := ExtractImages([]byte(body), 3, logger)
	require.Len(t, images, 2)
	assert.Equal(t, []byte("first"), images[0])
	assert.Equal(t, []byte("second"), images[1])

	assert.Equal(t, 1, logs.FilterMessage("file references are not downloaded, skipping").Len())
	assert.Equal(t, 1, logs.FilterMessage("fewer images than requested").Len())
}

func TestExtractImages_NoImages(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	images := ExtractImages([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`), 1, zap.New(core))
	assert.Empty(t, images)
	assert.Equal(t, 1, logs.FilterMessage("no image data found in response").Len())

	assert.Empty(t, ExtractImages([]byte("not json"), 1, nil))
}

func TestExtractText(t *testing.T) {
	body := `{"candidates":[{"content":{"parts":[{"text":"  A cat "},{"inlineData":{"data":"` + b64("x") + `"}},{"text":"on a mat.\n"}]}}]}`
	assert.Equal(t, "A cat on a mat.", ExtractText([]byte(body)))
	assert.Equal(t, "", ExtractText([]byte(`{"candidates":null}`)))
	assert.Equal(t, "", ExtractText(nil))
}

// Property: 任意输入都不会让提取器 panic
func TestProperty_ExtractorNeverPanics(t *testing.T) {
	fragments := []string{
		`{`, `}`, `[`, `]`, `"candidates"`, `"response"`, `"content"`, `"parts"`,
		`"inlineData"`, `"data"`, `"text"`, `"fileData"`, `:`, `,`, `null`, `1`, `"x"`, `true`,
	}

	rapid.Check(t, func(t *rapid.T) {
		var body string
		if rapid.Bool().Draw(t, "structured") {
			pieces := rapid.SliceOfN(rapid.SampledFrom(fragments), 0, 30).Draw(t, "pieces")
			for _, p := range pieces {
				body += p
			}
		} else {
			body = rapid.String().Draw(t, "raw")
		}

		_ = ExtractPayloads(gjson.Parse(body))
		_ = ExtractImages([]byte(body), 2, zap.NewNop())
		_ = ExtractText([]byte(body))
	})
}
