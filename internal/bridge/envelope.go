// Package bridge implements the message channel between the content side and the
// page side: a versioned envelope schema, broadcast buses, and the coordinator that
// owns readiness and request/response correlation.
package bridge

import (
	"strings"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
)

// SchemaVersion is the envelope version written by this package
const SchemaVersion = 1

// Envelope types
const (
	TypeRequest  = "WA_STORE_REQUEST"
	TypeResponse = "WA_STORE_RESPONSE"
	TypeReady    = "WA_STORE_READY"
)

// Action is a page-side query
type Action string

const (
	ActionEnsureStore      Action = "ENSURE_STORE"
	ActionGetAudioBlob     Action = "GET_AUDIO_BLOB"
	ActionGetLastAudioBlob Action = "GET_LAST_AUDIO_BLOB"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionEnsureStore, ActionGetAudioBlob, ActionGetLastAudioBlob:
		return true
	}
	return false
}

// Error texts reported by the page side in failed responses
const (
	TextMessageNotFound  = "message not found"
	TextBlobUnavailable  = "blob unavailable"
	TextNoActiveChat     = "no active conversation"
	TextNoVoiceMessage   = "no voice message found"
	TextInvalidMessageID = "invalid message id"
	TextStoreUnavailable = "store unavailable"
)

// Envelope is any message travelling on the bridge
type Envelope interface {
	EnvelopeType() string
}

// Request asks the page side to run an action
type Request struct {
	Type      string `json:"type" mapstructure:"type"`
	V         int    `json:"v" mapstructure:"v"`
	Action    Action `json:"action" mapstructure:"action"`
	RequestID string `json:"requestId" mapstructure:"requestId"`
	MessageID string `json:"messageId,omitempty" mapstructure:"messageId"`
}

// Metadata describes a returned blob
type Metadata struct {
	MIMEType  string `json:"mimeType" mapstructure:"mimeType"`
	FileName  string `json:"fileName" mapstructure:"fileName"`
	MessageID string `json:"messageId,omitempty" mapstructure:"messageId"`
}

// Response answers exactly one Request
type Response struct {
	Type      string    `json:"type" mapstructure:"type"`
	V         int       `json:"v" mapstructure:"v"`
	RequestID string    `json:"requestId" mapstructure:"requestId"`
	Success   bool      `json:"success" mapstructure:"success"`
	Blob      []byte    `json:"blob,omitempty" mapstructure:"blob"`
	Metadata  *Metadata `json:"metadata,omitempty" mapstructure:"metadata"`
	Error     string    `json:"error,omitempty" mapstructure:"error"`
}

// Ready is broadcast by the page side once its store is discovered
type Ready struct {
	Type string `json:"type" mapstructure:"type"`
	V    int    `json:"v" mapstructure:"v"`
}

func (Request) EnvelopeType() string  { return TypeRequest }
func (Response) EnvelopeType() string { return TypeResponse }
func (Ready) EnvelopeType() string    { return TypeReady }

// NewRequest builds a request envelope
func NewRequest(action Action, requestID, messageID string) Request {
	return Request{Type: TypeRequest, V: SchemaVersion, Action: action, RequestID: requestID, MessageID: messageID}
}

// NewReady builds a readiness broadcast
func NewReady() Ready {
	return Ready{Type: TypeReady, V: SchemaVersion}
}

// Succeed builds a successful response to req
func Succeed(req Request, blob []byte, meta *Metadata) Response {
	return Response{Type: TypeResponse, V: SchemaVersion, RequestID: req.RequestID, Success: true, Blob: blob, Metadata: meta}
}

// Fail builds a failed response to req carrying err's text
func Fail(req Request, err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Response{Type: TypeResponse, V: SchemaVersion, RequestID: req.RequestID, Success: false, Error: msg}
}

// RemoteError is a failure reported by the page side
type RemoteError struct {
	Action  Action
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// reasonForText classifies a page-side error text
func reasonForText(text string) errorsx.ReasonCode {
	switch {
	case strings.HasPrefix(text, TextMessageNotFound),
		strings.HasPrefix(text, TextNoActiveChat),
		strings.HasPrefix(text, TextNoVoiceMessage):
		return errorsx.ReasonNotFound
	case strings.HasPrefix(text, TextBlobUnavailable),
		strings.HasPrefix(text, TextInvalidMessageID):
		return errorsx.ReasonPayloadInvalid
	}
	return errorsx.ReasonUnknown
}
