package page

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrDetached indicates the target node is no longer part of the document.
var ErrDetached = errors.New("node is not attached to the document")

const emptyDocument = "<!DOCTYPE html><html><head></head><body></body></html>"

// Document is a mutable HTML tree with click handlers, standing in for the DOM.
// All methods are safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	head     *html.Node
	body     *html.Node
	handlers map[*html.Node][]func()
}

// NewDocument parses source as the initial page. An empty source yields a blank page.
func NewDocument(source string) (*Document, error) {
	if strings.TrimSpace(source) == "" {
		source = emptyDocument
	}

	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	d := &Document{
		root:     root,
		handlers: make(map[*html.Node][]func()),
	}
	d.head = findElement(root, atom.Head)
	d.body = findElement(root, atom.Body)

	return d, nil
}

// Head returns the <head> element.
func (d *Document) Head() *html.Node {
	return d.head
}

// Body returns the <body> element.
func (d *Document) Body() *html.Node {
	return d.body
}

// AppendHTML parses fragment in the context of parent and appends the result.
// It returns the inserted top-level nodes.
func (d *Document) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	context := parent
	if context == nil || context.Type != html.ElementNode {
		context = d.body
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     context.Data,
		DataAtom: context.DataAtom,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached(context) {
		return nil, ErrDetached
	}

	for _, n := range nodes {
		context.AppendChild(n)
	}

	return nodes, nil
}

// AppendElement creates an element with the given attributes and text and
// appends it to parent.
func (d *Document) AppendElement(parent *html.Node, tag string, attrs map[string]string, text string) (*html.Node, error) {
	el := NewElement(tag, attrs)
	if text != "" {
		el.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if parent == nil {
		parent = d.body
	}

	if !d.attached(parent) {
		return nil, ErrDetached
	}

	parent.AppendChild(el)

	return el, nil
}

// Remove detaches n and drops its click handlers. Removing a detached node is a no-op.
func (d *Document) Remove(n *html.Node) {
	if n == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}

	d.forget(n)
}

// SetAttr sets an attribute on n.
func (d *Document) SetAttr(n *html.Node, key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	SetAttr(n, key, value)
}

// QuerySelector returns the first element matching the CSS selector group.
func (d *Document) QuerySelector(selector string) (*html.Node, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return cascadia.Query(d.root, sel), nil
}

// QuerySelectorAll returns every element matching the CSS selector group,
// in document order.
func (d *Document) QuerySelectorAll(selector string) ([]*html.Node, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return cascadia.QueryAll(d.root, sel), nil
}

// Exists reports whether any element matches selector. Invalid selectors match nothing.
func (d *Document) Exists(selector string) bool {
	n, err := d.QuerySelector(selector)

	return err == nil && n != nil
}

// OnClick registers fn to run when n or one of its descendants is clicked.
func (d *Document) OnClick(n *html.Node, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[n] = append(d.handlers[n], fn)
}

// Click runs the click handlers of n and its ancestors, innermost first.
// It reports whether n is attached.
func (d *Document) Click(n *html.Node) bool {
	d.mu.Lock()

	if !d.attached(n) {
		d.mu.Unlock()

		return false
	}

	var chain []func()
	for cur := n; cur != nil; cur = cur.Parent {
		chain = append(chain, d.handlers[cur]...)
	}

	d.mu.Unlock()

	for _, fn := range chain {
		fn()
	}

	return true
}

// Render serialises the current document.
func (d *Document) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer

	_ = html.Render(&buf, d.root)

	return buf.String()
}

// Text returns the concatenated text content of n.
func (d *Document) Text(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return TextContent(n)
}

func (d *Document) attached(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == d.root {
			return true
		}
	}

	return false
}

func (d *Document) forget(n *html.Node) {
	delete(d.handlers, n)

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.forget(c)
	}
}

// NewElement builds a detached element node.
func NewElement(tag string, attrs map[string]string) *html.Node {
	el := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}

	for k, v := range attrs {
		el.Attr = append(el.Attr, html.Attribute{Key: k, Val: v})
	}

	return el
}

// Attr returns the value of an attribute.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}

	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}

	return "", false
}

// SetAttr sets or replaces an attribute on a node that is not shared yet.
func SetAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value

			return
		}
	}

	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

// HasClass reports whether n carries the CSS class.
func HasClass(n *html.Node, class string) bool {
	classes, _ := Attr(n, "class")
	for _, c := range strings.Fields(classes) {
		if c == class {
			return true
		}
	}

	return false
}

// TextContent returns the concatenated text of n and its descendants.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}

	if n.Type == html.TextNode {
		return n.Data
	}

	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(TextContent(c))
	}

	return sb.String()
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
