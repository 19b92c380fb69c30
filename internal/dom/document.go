// Package dom holds the headless document the reload client keeps in sync
// with the development server, the minimal-diff merge applied to it, and the
// window event bus page scripts listen on.
package dom

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MutationKind classifies a change made to the document tree.
type MutationKind int

const (
	MutationAttr MutationKind = iota
	MutationText
	MutationInsert
	MutationRemove
)

func (k MutationKind) String() string {
	switch k {
	case MutationAttr:
		return "attr"
	case MutationText:
		return "text"
	case MutationInsert:
		return "insert"
	case MutationRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Mutation is delivered to observers after each change completes.
type Mutation struct {
	Kind  MutationKind
	Node  *html.Node
	Attr  string
	Value string
}

// Document is a parsed HTML tree bound to the URL it was loaded from.
// Strategies mutate it on the client's event loop; the lock exists so that
// snapshot readers on other goroutines never observe a half-applied change.
type Document struct {
	mu        sync.RWMutex
	url       string
	root      *html.Node
	observers []func(Mutation)
	obsMu     sync.RWMutex
}

// Parse builds a document from markup.
func Parse(url, markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	return &Document{url: url, root: root}, nil
}

// URL returns the address the document was loaded from.
func (d *Document) URL() string {
	return d.url
}

// Render serialises the current tree.
func (d *Document) Render() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.root == nil {
		return "", ErrNoDocument
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Observe registers fn for every subsequent mutation.
func (d *Document) Observe(fn func(Mutation)) {
	d.obsMu.Lock()
	d.observers = append(d.observers, fn)
	d.obsMu.Unlock()
}

// StylesheetLinks returns every <link rel="stylesheet"> in document order.
func (d *Document) StylesheetLinks() []*html.Node {
	return d.FindAll(func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Link {
			return false
		}
		rel, _ := getAttr(n, "rel")
		return strings.EqualFold(strings.TrimSpace(rel), "stylesheet")
	})
}

// FindAll returns the nodes matching pred in document order.
func (d *Document) FindAll(pred func(*html.Node) bool) []*html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found []*html.Node
	walk(d.root, func(n *html.Node) {
		if pred(n) {
			found = append(found, n)
		}
	})
	return found
}

// ElementByID returns the first element with the given id attribute.
func (d *Document) ElementByID(id string) *html.Node {
	nodes := d.FindAll(func(n *html.Node) bool {
		v, ok := getAttr(n, "id")
		return n.Type == html.ElementNode && ok && v == id
	})
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Attr reads an attribute of n.
func (d *Document) Attr(n *html.Node, key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return getAttr(n, key)
}

// SetAttr writes an attribute of n, adding it when missing. Setting the
// current value still records a mutation.
func (d *Document) SetAttr(n *html.Node, key, value string) {
	_ = d.Update(func(root *html.Node, rec *Recorder) error {
		setAttr(n, key, value)
		rec.Record(Mutation{Kind: MutationAttr, Node: n, Attr: key, Value: value})
		return nil
	})
}

// TextContent returns the concatenated text below n.
func (d *Document) TextContent(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

// Replace swaps the whole tree for root. Observers see a single insert of
// the new root.
func (d *Document) Replace(root *html.Node) error {
	if root == nil {
		return ErrNoDocument
	}
	d.mu.Lock()
	d.root = root
	d.mu.Unlock()

	d.notify([]Mutation{{Kind: MutationInsert, Node: root}})
	return nil
}

// Recorder collects mutations made inside Update.
type Recorder struct {
	mutations []Mutation
}

// Record appends m to the pending notifications.
func (r *Recorder) Record(m Mutation) {
	r.mutations = append(r.mutations, m)
}

// Len returns the number of recorded mutations.
func (r *Recorder) Len() int {
	return len(r.mutations)
}

// Update runs fn with exclusive access to the tree. Observers are notified
// after the lock is released, and only when fn succeeds.
func (d *Document) Update(fn func(root *html.Node, rec *Recorder) error) error {
	rec := &Recorder{}

	d.mu.Lock()
	if d.root == nil {
		d.mu.Unlock()
		return ErrNoDocument
	}
	err := fn(d.root, rec)
	d.mu.Unlock()

	if err != nil {
		return err
	}
	d.notify(rec.mutations)
	return nil
}

func (d *Document) notify(mutations []Mutation) {
	if len(mutations) == 0 {
		return
	}
	d.obsMu.RLock()
	observers := append([]func(Mutation){}, d.observers...)
	d.obsMu.RUnlock()

	for _, m := range mutations {
		for _, fn := range observers {
			fn(m)
		}
	}
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func getAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}
