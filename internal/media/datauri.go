package media

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/lexiqai/wa-assistant/internal/errorsx"
)

// DecodeDataURI decodes a data: URI, or a bare base64 string, into a Blob.
// Base64 payloads may contain whitespace; non-base64 data URIs are percent-decoded.
// The media type declared in the URI wins over fallbackMIME.
func DecodeDataURI(uri, fallbackMIME string) (Blob, error) {
	if uri == "" {
		return Blob{}, errorsx.Wrap(ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}

	mime := fallbackMIME
	if mime == "" {
		mime = "application/octet-stream"
	}
	payload := uri
	isBase64 := true

	if strings.HasPrefix(uri, "data:") {
		comma := strings.IndexByte(uri, ',')
		if comma == -1 {
			return Blob{}, errorsx.Wrap(fmt.Errorf("malformed data URI"), errorsx.ReasonPayloadInvalid)
		}

		var segments []string
		for _, s := range strings.Split(uri[len("data:"):comma], ";") {
			if s = strings.TrimSpace(s); s != "" {
				segments = append(segments, s)
			}
		}
		if len(segments) > 0 && segments[0] != "base64" {
			mime = segments[0]
		}
		isBase64 = false
		for _, s := range segments {
			if s == "base64" {
				isBase64 = true
			}
		}
		payload = uri[comma+1:]
	}

	var data []byte
	if isBase64 {
		decoded, err := decodeBase64(payload)
		if err != nil {
			return Blob{}, errorsx.Wrap(fmt.Errorf("decode base64 payload: %w", err), errorsx.ReasonPayloadInvalid)
		}
		data = decoded
	} else {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return Blob{}, errorsx.Wrap(fmt.Errorf("decode data URI: %w", err), errorsx.ReasonPayloadInvalid)
		}
		data = []byte(decoded)
	}

	if len(data) == 0 {
		return Blob{}, errorsx.Wrap(ErrEmptyPayload, errorsx.ReasonPayloadInvalid)
	}
	return Blob{Data: data, Type: mime}, nil
}

// EncodeDataURI renders bytes as a base64 data URI
func EncodeDataURI(data []byte, mime string) string {
	if mime == "" {
		mime = DefaultMIMEType
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	// Unpadded input is accepted the way browsers do
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
