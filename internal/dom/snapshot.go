package dom

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// ErrDetached is returned when clicking an element that no longer belongs to the page
var ErrDetached = errors.New("element is not part of the current page")

// ClickHandler reacts to a simulated click, typically by mutating the page
type ClickHandler func(s *Snapshot, el Element) error

// Snapshot is a Document parsed from HTML
type Snapshot struct {
	mu      sync.RWMutex
	doc     *goquery.Document
	onClick ClickHandler
	clicks  int
}

// NewSnapshot parses html
func NewSnapshot(html string) (*Snapshot, error) {
	s := &Snapshot{}
	if err := s.Reload(html); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSnapshot parses the HTML file at path
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	return NewSnapshot(string(raw))
}

// Reload replaces the page. Elements obtained earlier keep pointing at the old tree.
func (s *Snapshot) Reload(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// OnClick installs the handler run by Click
func (s *Snapshot) OnClick(fn ClickHandler) {
	s.mu.Lock()
	s.onClick = fn
	s.mu.Unlock()
}

// Clicks returns how many clicks were simulated
func (s *Snapshot) Clicks() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clicks
}

// Append parses html and appends it as the last children of el
func (s *Snapshot) Append(el Element, html string) error {
	e, ok := el.(*element)
	if !ok || e.snap != s {
		return ErrDetached
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.sel.AppendHtml(html)
	return nil
}

// HTML renders the current page
func (s *Snapshot) HTML() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Html()
}

// QueryAll implements Document
func (s *Snapshot) QueryAll(selector string) []Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrap(s.doc.Find(selector))
}

// Click implements Document
func (s *Snapshot) Click(el Element) error {
	e, ok := el.(*element)
	if !ok || e.snap != s {
		return ErrDetached
	}

	s.mu.Lock()
	s.clicks++
	handler := s.onClick
	s.mu.Unlock()

	if handler == nil {
		return nil
	}
	return handler(s, el)
}

func (s *Snapshot) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, item *goquery.Selection) {
		out = append(out, &element{sel: item, snap: s})
	})
	return out
}

type element struct {
	sel  *goquery.Selection
	snap *Snapshot
}

func (e *element) Tag() string {
	e.snap.mu.RLock()
	defer e.snap.mu.RUnlock()
	return goquery.NodeName(e.sel)
}

func (e *element) Attr(name string) (string, bool) {
	e.snap.mu.RLock()
	defer e.snap.mu.RUnlock()
	return e.sel.Attr(name)
}

func (e *element) Text() string {
	e.snap.mu.RLock()
	defer e.snap.mu.RUnlock()
	return strings.TrimSpace(e.sel.Text())
}

func (e *element) Query(selector string) (Element, bool) {
	e.snap.mu.RLock()
	defer e.snap.mu.RUnlock()
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, false
	}
	return &element{sel: found, snap: e.snap}, true
}

func (e *element) QueryAll(selector string) []Element {
	e.snap.mu.RLock()
	defer e.snap.mu.RUnlock()
	return e.snap.wrap(e.sel.Find(selector))
}

func (e *element) Parent() (Element, bool) {
	e.snap.mu.RLock()
	defer e.snap.mu.RUnlock()
	p := e.sel.Parent()
	if p.Length() == 0 || goquery.NodeName(p) == "#document" {
		return nil, false
	}
	return &element{sel: p, snap: e.snap}, true
}

// Closest includes the element itself
func (e *element) Closest(selector string) (Element, bool) {
	e.snap.mu.RLock()
	defer e.snap.mu.RUnlock()
	c := e.sel.Closest(selector)
	if c.Length() == 0 {
		return nil, false
	}
	return &element{sel: c, snap: e.snap}, true
}
