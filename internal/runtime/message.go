// Package runtime defines the message contract between the content side and the
// privileged background process.
package runtime

import "context"

// Message types understood by the background process
const (
	TypeTranscribeAudio    = "TRANSCRIBIR_AUDIO"
	TypeGenerateCompletion = "GENERATE_COMPLETION"
	TypeGetSettings        = "GET_SETTINGS"
	TypeCheckAPIKey        = "CHECK_API_KEY"
)

// Metadata describes where a transcribed payload came from
type Metadata struct {
	FileName  string `json:"fileName,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Request is one message to the background process. ArrayBuffer travels base64
// encoded in JSON.
type Request struct {
	Type        string    `json:"type"`
	ArrayBuffer []byte    `json:"arrayBuffer,omitempty"`
	Mime        string    `json:"mime,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Model       string    `json:"model,omitempty"`
}

// Response is the background process's answer
type Response struct {
	OK         bool              `json:"ok"`
	Text       string            `json:"text,omitempty"`
	Error      string            `json:"error,omitempty"`
	Configured *bool             `json:"configured,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`
}

// Sender delivers a request to the background process
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Failure builds a non-success response
func Failure(err error) Response {
	return Response{OK: false, Error: err.Error()}
}
