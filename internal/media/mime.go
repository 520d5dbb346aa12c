package media

import "strings"

// ResolveMIME picks the MIME type from, in order, an explicit hint, payload metadata
// and the blob's declared type, defaulting to audio/ogg.
func ResolveMIME(hint, metadata, blobType string) string {
	for _, candidate := range []string{hint, metadata, blobType} {
		if c := strings.TrimSpace(candidate); c != "" {
			return c
		}
	}
	return DefaultMIMEType
}

// FileNameFor derives an upload file name from the MIME type unless one was supplied
func FileNameFor(mime, supplied string) string {
	if supplied != "" {
		return supplied
	}

	m := strings.ToLower(mime)
	switch {
	case strings.Contains(m, "webm"):
		return "audio.webm"
	case strings.Contains(m, "mp4"):
		return "audio.mp4"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return "audio.mp3"
	}
	return "audio.ogg"
}
