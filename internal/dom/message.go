package dom

import (
	"strings"

	"github.com/samber/lo"
)

// messageSelectors locate message containers, most specific first
var messageSelectors = []string{
	`[data-testid="msg-container"]`,
	`[data-testid="conversation-panel-messages"] > div > div`,
	`.message-in, .message-out`,
	`[class*="message"]`,
}

var chatAreaSelectors = []string{
	`[data-testid="conversation-panel-messages"]`,
	`#main`,
	`[class*="chat"]`,
}

var textSelectors = []string{
	`[data-testid="selectable-text"]`,
	`.selectable-text`,
	`[class*="selectable"]`,
	`.copyable-text`,
	`[class*="copyable"]`,
	`span[dir="ltr"]`,
	`[class*="text"] span`,
}

// MessageID returns the host identifier of a message element: its own data-id, a
// nested [data-id], aria-owns, then the nearest ancestor carrying data-id
func MessageID(el Element) string {
	if el == nil {
		return ""
	}
	if id, ok := el.Attr("data-id"); ok && id != "" {
		return id
	}
	if nested, ok := el.Query("[data-id]"); ok {
		if id, _ := nested.Attr("data-id"); id != "" {
			return id
		}
	}
	if owns, ok := el.Attr("aria-owns"); ok && owns != "" {
		return owns
	}
	if anc, ok := el.Closest("[data-id]"); ok {
		if id, _ := anc.Attr("data-id"); id != "" {
			return id
		}
	}
	return ""
}

// Messages returns up to limit of the last message containers on the page
func Messages(doc Document, limit int) []Element {
	var found []Element
	for _, sel := range messageSelectors {
		if found = doc.QueryAll(sel); len(found) > 0 {
			break
		}
	}
	if len(found) == 0 {
		for _, sel := range chatAreaSelectors {
			if area, ok := Query(doc, sel); ok {
				found = area.QueryAll(`div[class*="message"], div[data-id]`)
				break
			}
		}
	}
	if limit > 0 && len(found) > limit {
		found = found[len(found)-limit:]
	}
	return found
}

// IsOutgoing reports whether el was sent by the local user
func IsOutgoing(el Element) bool {
	if hasClass(el, "message-out") {
		return true
	}
	if _, ok := el.Query(`[data-testid="tail-out"]`); ok {
		return true
	}
	if _, ok := el.Closest(".message-out"); ok {
		return true
	}
	if icon, ok := el.Query(`[data-icon="msg-time"]`); ok {
		if _, ok := icon.Closest(`[class*="out"]`); ok {
			return true
		}
	}
	return false
}

// MessageText returns the visible text of a text message
func MessageText(el Element) string {
	for _, sel := range textSelectors {
		if t, ok := el.Query(sel); ok {
			if text := t.Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

func hasClass(el Element, class string) bool {
	v, ok := el.Attr("class")
	return ok && lo.Contains(strings.Fields(v), class)
}
