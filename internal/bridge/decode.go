package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	// ErrUnknownEnvelope marks values that are not bridge envelopes; handlers ignore them
	ErrUnknownEnvelope = errors.New("not a bridge envelope")
	// ErrInvalidEnvelope marks envelopes with a known type but a bad shape
	ErrInvalidEnvelope = errors.New("invalid bridge envelope")
)

var bytesType = reflect.TypeOf([]byte(nil))

// Decode validates data and returns the typed envelope it carries. data may be a
// typed envelope, raw JSON, or a free-form map as produced by encoding/json.
func Decode(data any) (Envelope, error) {
	switch v := data.(type) {
	case Request:
		return v, validateRequest(v)
	case *Request:
		if v == nil {
			return nil, ErrUnknownEnvelope
		}
		return *v, validateRequest(*v)
	case Response:
		return v, validateResponse(v)
	case *Response:
		if v == nil {
			return nil, ErrUnknownEnvelope
		}
		return *v, validateResponse(*v)
	case Ready:
		return v, validateVersion(v.Type, v.V)
	case *Ready:
		if v == nil {
			return nil, ErrUnknownEnvelope
		}
		return *v, validateVersion(v.Type, v.V)
	case []byte:
		return decodeJSON(v)
	case json.RawMessage:
		return decodeJSON(v)
	case map[string]any:
		return decodeMap(v)
	}
	return nil, ErrUnknownEnvelope
}

func decodeJSON(raw []byte) (Envelope, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ErrUnknownEnvelope
	}
	return decodeMap(m)
}

func decodeMap(m map[string]any) (Envelope, error) {
	typ, _ := m["type"].(string)

	switch typ {
	case TypeRequest:
		var req Request
		if err := decodeFields(m, &req); err != nil {
			return nil, err
		}
		return req, validateRequest(req)
	case TypeResponse:
		var resp Response
		if err := decodeFields(m, &resp); err != nil {
			return nil, err
		}
		return resp, validateResponse(resp)
	case TypeReady:
		var ready Ready
		if err := decodeFields(m, &ready); err != nil {
			return nil, err
		}
		return ready, validateVersion(ready.Type, ready.V)
	}
	return nil, ErrUnknownEnvelope
}

func decodeFields(input map[string]any, out any) error {
	cfg := &mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncType(base64BytesHook),
		MatchName: func(mapKey, fieldName string) bool {
			return strings.EqualFold(mapKey, fieldName)
		},
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

// base64BytesHook decodes blobs that crossed a JSON transport as base64 strings
func base64BytesHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != bytesType {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return []byte(nil), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("blob is not base64: %w", err)
	}
	return decoded, nil
}

func validateVersion(typ string, v int) error {
	if v < 0 || v > SchemaVersion {
		return fmt.Errorf("%w: %s version %d not supported", ErrInvalidEnvelope, typ, v)
	}
	return nil
}

func validateRequest(r Request) error {
	if r.Type != TypeRequest {
		return ErrUnknownEnvelope
	}
	if err := validateVersion(r.Type, r.V); err != nil {
		return err
	}
	if r.RequestID == "" {
		return fmt.Errorf("%w: request without requestId", ErrInvalidEnvelope)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEnvelope, r.Action)
	}
	return nil
}

func validateResponse(r Response) error {
	if r.Type != TypeResponse {
		return ErrUnknownEnvelope
	}
	if err := validateVersion(r.Type, r.V); err != nil {
		return err
	}
	if r.RequestID == "" {
		return fmt.Errorf("%w: response without requestId", ErrInvalidEnvelope)
	}
	return nil
}
