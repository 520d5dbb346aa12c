package dom

import "github.com/samber/lo"

// playControlSelectors match the host's voice message play buttons and players
var playControlSelectors = []string{
	`[data-testid="audio-play-button"]`,
	`[data-testid="ptt-play-button"]`,
	`[data-icon="audio-play"]`,
	`.audio-play-button`,
	`button[aria-label*="Play"]`,
	`button[aria-label*="Reproduzir"]`,
	`[class*="audio"] button`,
}

var audioContainerSelectors = []string{
	`[data-testid*="audio"]`,
	`[class*="audio"]`,
	`[class*="ptt"]`,
}

const audioButtonSelector = `[data-testid*="audio"], [data-icon*="audio"], button[aria-label*="áudio"], button[aria-label*="audio"]`

// AudioSource resolves the playable URL of an audio element: its src, a nested
// <source src>, then an anchor href
func AudioSource(el Element) (string, bool) {
	if el == nil {
		return "", false
	}
	if src, ok := el.Attr("src"); ok && src != "" {
		return src, true
	}
	if s, ok := el.Query("source[src]"); ok {
		if src, _ := s.Attr("src"); src != "" {
			return src, true
		}
	}
	if el.Tag() == "a" {
		if href, ok := el.Attr("href"); ok && href != "" {
			return href, true
		}
	}
	if a, ok := el.Query("a[href]"); ok {
		if href, _ := a.Attr("href"); href != "" {
			return href, true
		}
	}
	return "", false
}

// HasAudio reports whether a message looks like a voice message
func HasAudio(msg Element) bool {
	if _, ok := msg.Query("audio"); ok {
		return true
	}
	_, ok := PlayControl(msg)
	return ok
}

// PlayControl returns the message's play button
func PlayControl(msg Element) (Element, bool) {
	for _, sel := range playControlSelectors {
		if el, ok := msg.Query(sel); ok {
			return el, true
		}
	}
	return nil, false
}

// MessageAudio returns the source of an <audio> element inside msg or inside one
// of its audio containers
func MessageAudio(msg Element) (string, bool) {
	containers := []Element{msg}
	for _, sel := range audioContainerSelectors {
		if c, ok := msg.Query(sel); ok {
			containers = append(containers, c)
		}
	}
	for _, c := range containers {
		for _, audio := range c.QueryAll("audio") {
			if src, ok := AudioSource(audio); ok {
				return src, true
			}
		}
	}
	return "", false
}

// ScanAudio returns the sources of every audio element on the page, most recently
// rendered first. Audio found next to audio buttons and icons comes after the plain
// <audio> scan.
func ScanAudio(doc Document) []string {
	var sources []string
	for _, audio := range lo.Reverse(doc.QueryAll("audio")) {
		if src, ok := AudioSource(audio); ok {
			sources = append(sources, src)
		}
	}

	for _, button := range lo.Reverse(doc.QueryAll(audioButtonSelector)) {
		if src, ok := nearbyAudio(button); ok {
			sources = append(sources, src)
		}
	}
	return lo.Uniq(sources)
}

func nearbyAudio(button Element) (string, bool) {
	if p, ok := button.Parent(); ok {
		if src, ok := firstAudioSource(p); ok {
			return src, true
		}
	}
	if msg, ok := button.Closest(`[class*="message"]`); ok {
		if src, ok := firstAudioSource(msg); ok {
			return src, true
		}
	}
	return "", false
}

func firstAudioSource(el Element) (string, bool) {
	for _, candidate := range append(el.QueryAll("audio"), el.QueryAll("source[src], a[href]")...) {
		if src, ok := AudioSource(candidate); ok {
			return src, true
		}
	}
	return "", false
}
