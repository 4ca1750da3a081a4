package page

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ShadowRootAttr marks a template element as the shadow root of its parent.
const ShadowRootAttr = "shadowrootmode"

// Document is a mutable host page.
//
// Thread-safety: every method is safe for concurrent use. Event listeners
// and observers are invoked after the internal lock is released, on the
// goroutine that caused the event or mutation.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	url  string

	globals   map[string]any
	listeners map[string][]*listener
	observers []*observer
	events    []Event
	nextID    int
}

// Parse reads a full HTML document.
func Parse(r io.Reader, url string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{
		root:      root,
		url:       url,
		globals:   make(map[string]any),
		listeners: make(map[string][]*listener),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(markup, url string) (*Document, error) {
	return Parse(strings.NewReader(markup), url)
}

// URL returns the page location.
func (d *Document) URL() string {
	return d.url
}

// Body returns the body element.
func (d *Document) Body() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findElement(d.root, atom.Body)
}

// QueryFirst probes selectors in order and returns the first element
// matching the earliest selector that matches anything, along with that
// selector. Invalid selectors are skipped.
func (d *Document) QueryFirst(selectors []string) (*html.Node, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, raw := range selectors {
		sel, err := cascadia.Compile(raw)
		if err != nil {
			slog.Debug("skipping invalid selector", "selector", raw, "error", err)
			continue
		}
		if n := queryFirst(d.root, sel); n != nil {
			return n, raw, true
		}
	}
	return nil, "", false
}

// QueryAll returns every light-DOM element matching selector.
func (d *Document) QueryAll(selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*html.Node
	walkLight(d.root, func(n *html.Node) bool {
		if sel.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out, nil
}

// FindByAttr returns every light-DOM element whose attribute name equals
// value, in document order.
func (d *Document) FindByAttr(name, value string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*html.Node
	walkLight(d.root, func(n *html.Node) bool {
		if v, ok := Attr(n, name); ok && v == value {
			out = append(out, n)
		}
		return true
	})
	return out
}

// FindAllWithAttr returns every light-DOM element carrying attribute name.
func (d *Document) FindAllWithAttr(name string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*html.Node
	walkLight(d.root, func(n *html.Node) bool {
		if _, ok := Attr(n, name); ok {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Attached reports whether n is part of the document tree.
func (d *Document) Attached(n *html.Node) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Contains(d.root, n)
}

// InsertAfter places node immediately after ref.
func (d *Document) InsertAfter(ref, node *html.Node) error {
	d.mu.Lock()
	if ref.Parent == nil {
		d.mu.Unlock()
		return fmt.Errorf("insert after detached <%s>", ref.Data)
	}
	if node.Parent != nil {
		d.mu.Unlock()
		return fmt.Errorf("insert of attached <%s>", node.Data)
	}
	parent := ref.Parent
	parent.InsertBefore(node, ref.NextSibling)
	obs := d.snapshotObserversLocked()
	d.mu.Unlock()

	deliver(obs, MutationRecord{Target: parent, Added: []*html.Node{node}})
	return nil
}

// AppendChild appends node as the last child of parent.
func (d *Document) AppendChild(parent, node *html.Node) error {
	d.mu.Lock()
	if node.Parent != nil {
		d.mu.Unlock()
		return fmt.Errorf("append of attached <%s>", node.Data)
	}
	parent.AppendChild(node)
	obs := d.snapshotObserversLocked()
	d.mu.Unlock()

	deliver(obs, MutationRecord{Target: parent, Added: []*html.Node{node}})
	return nil
}

// AppendHTML parses markup in the context of parent and appends the
// resulting nodes, as host theme code does when it opens a cart panel.
func (d *Document) AppendHTML(parent *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}

	d.mu.Lock()
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	obs := d.snapshotObserversLocked()
	d.mu.Unlock()

	deliver(obs, MutationRecord{Target: parent, Added: nodes})
	return nil
}

// Remove detaches node from the tree. Removing a detached node is a no-op.
func (d *Document) Remove(node *html.Node) {
	d.mu.Lock()
	parent := node.Parent
	if parent == nil {
		d.mu.Unlock()
		return
	}
	parent.RemoveChild(node)
	obs := d.snapshotObserversLocked()
	d.mu.Unlock()

	deliver(obs, MutationRecord{Target: parent, Removed: []*html.Node{node}})
}

// Update runs fn with exclusive access to the tree. Changes made by fn are
// not reported to observers; use it for edits inside shadow roots.
func (d *Document) Update(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, or an empty string on error.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// SetGlobal installs a window global.
func (d *Document) SetGlobal(name string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.globals[name] = v
}

// Global returns a window global.
func (d *Document) Global(name string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.globals[name]
	return v, ok
}

func (d *Document) snapshotObserversLocked() []*observer {
	return append([]*observer(nil), d.observers...)
}

func queryFirst(root *html.Node, sel cascadia.Selector) *html.Node {
	var found *html.Node
	walkLight(root, func(n *html.Node) bool {
		if sel.Match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// walkLight visits element nodes in document order without entering
// shadow roots. visit returns false to stop.
func walkLight(n *html.Node, visit func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode && c.Type != html.DocumentNode {
			continue
		}
		if IsShadowRoot(c) {
			continue
		}
		if c.Type == html.ElementNode && !visit(c) {
			return false
		}
		if !walkLight(c, visit) {
			return false
		}
	}
	return true
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
