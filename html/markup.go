// Package html builds node trees from HTML markup using golang.org/x/net/html
// as the underlying parser. Elements become nodes named by their upper-case
// tag; text, comments and doctypes are dropped.
package html

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/chrisuehlinger/hostbridge/dom"
)

// AlwaysNotifyAttr marks an element whose target announces every listener
// kind to the host.
const AlwaysNotifyAttr = "data-always-notify"

// Factory creates one node. Runtimes pass a factory that also wraps the node
// for scripts.
type Factory func(name string, opts ...dom.Option) (*dom.Node, error)

// Element is a built node with the attributes it was declared with.
type Element struct {
	Node  *dom.Node
	Attrs map[string]string
}

// Tree is the result of one Build.
type Tree struct {
	Roots    []*dom.Node
	Elements []Element
	byID     map[string]*dom.Node
}

// ByID returns the first node whose id attribute is id, or nil.
func (t *Tree) ByID(id string) *dom.Node { return t.byID[id] }

// Build parses markup as a body fragment and creates its elements with f.
func Build(markup string, f Factory) (*Tree, error) {
	return BuildReader(strings.NewReader(markup), f)
}

// BuildReader is Build reading from r.
func BuildReader(r io.Reader, f Factory) (*Tree, error) {
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(r, body)
	if err != nil {
		return nil, err
	}

	t := &Tree{byID: make(map[string]*dom.Node)}
	for _, n := range nodes {
		root, err := t.build(n, f)
		if err != nil {
			t.dispose()
			return nil, err
		}
		if root != nil {
			t.Roots = append(t.Roots, root)
		}
	}
	return t, nil
}

// build creates n and its element descendants. Non-element nodes are
// skipped but their element children are not.
func (t *Tree) build(n *html.Node, f Factory) (*dom.Node, error) {
	if n.Type != html.ElementNode {
		return nil, nil
	}

	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	var opts []dom.Option
	if _, ok := attrs[AlwaysNotifyAttr]; ok {
		opts = append(opts, dom.WithAlwaysNotify())
	}

	node, err := f(strings.ToUpper(n.Data), opts...)
	if err != nil {
		return nil, err
	}
	t.Elements = append(t.Elements, Element{Node: node, Attrs: attrs})
	if id := attrs["id"]; id != "" {
		if _, dup := t.byID[id]; !dup {
			t.byID[id] = node
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		child, err := t.build(c, f)
		if err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}
		if _, err := node.AppendChild(child); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (t *Tree) dispose() {
	for _, e := range t.Elements {
		e.Node.Dispose()
	}
	t.Roots = nil
	t.Elements = nil
}
