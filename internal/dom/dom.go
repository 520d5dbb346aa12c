// Package dom is the boundary to the messaging client's rendered page. The pipeline
// only sees Document and Element; Snapshot backs them with parsed HTML.
package dom

// Element is one node of the rendered page
type Element interface {
	Tag() string
	Attr(name string) (string, bool)
	Text() string
	Query(selector string) (Element, bool)
	QueryAll(selector string) []Element
	Parent() (Element, bool)
	Closest(selector string) (Element, bool)
}

// Document is the rendered page. Click simulates a user activating el.
type Document interface {
	QueryAll(selector string) []Element
	Click(el Element) error
}

// Query returns the first element of doc matching selector
func Query(doc Document, selector string) (Element, bool) {
	all := doc.QueryAll(selector)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}
