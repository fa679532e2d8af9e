package dom

import (
	"github.com/chrisuehlinger/hostbridge/bridge"
)

// Node is an event target with a structural position. It carries only the
// parent and child links propagation needs.
type Node struct {
	*EventTarget

	nodeName    string
	parentNode  *Node
	firstChild  *Node
	lastChild   *Node
	prevSibling *Node
	nextSibling *Node
}

// NewNode creates a detached node.
func NewNode(ctx *bridge.Context, name string, opts ...Option) (*Node, error) {
	opts = append([]Option{WithTypeName(name)}, opts...)
	t, err := NewEventTarget(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Node{EventTarget: t, nodeName: name}, nil
}

// NodeName returns the name the node was created with.
func (n *Node) NodeName() string { return n.nodeName }

// ParentNode returns the parent, or nil.
func (n *Node) ParentNode() *Node { return n.parentNode }

// FirstChild returns the first child, or nil.
func (n *Node) FirstChild() *Node { return n.firstChild }

// NextSibling returns the following sibling, or nil.
func (n *Node) NextSibling() *Node { return n.nextSibling }

// ChildNodes returns the children in order.
func (n *Node) ChildNodes() []*Node {
	var out []*Node
	for c := n.firstChild; c != nil; c = c.nextSibling {
		out = append(out, c)
	}
	return out
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for c := other; c != nil; c = c.parentNode {
		if c == n {
			return true
		}
	}
	return false
}

// AppendChild moves child to the end of n's children.
func (n *Node) AppendChild(child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrHierarchyRequest("The node to be appended is null.")
	}
	if child.Contains(n) {
		return nil, ErrHierarchyRequest("The new child element contains the parent.")
	}
	if child.Context() != n.Context() {
		return nil, ErrWrongContext("The node belongs to a different context.")
	}
	if child.parentNode != nil {
		child.parentNode.unlink(child)
	}

	child.parentNode = n
	child.prevSibling = n.lastChild
	if n.lastChild != nil {
		n.lastChild.nextSibling = child
	} else {
		n.firstChild = child
	}
	n.lastChild = child
	child.SetParent(n.EventTarget)
	return child, nil
}

// RemoveChild detaches child from n.
func (n *Node) RemoveChild(child *Node) (*Node, error) {
	if child == nil {
		return nil, ErrNotFound("The node to be removed is null.")
	}
	if child.parentNode != n {
		return nil, ErrNotFound("The node to be removed is not a child of this node.")
	}
	n.unlink(child)
	return child, nil
}

func (n *Node) unlink(child *Node) {
	if child.prevSibling != nil {
		child.prevSibling.nextSibling = child.nextSibling
	} else {
		n.firstChild = child.nextSibling
	}
	if child.nextSibling != nil {
		child.nextSibling.prevSibling = child.prevSibling
	} else {
		n.lastChild = child.prevSibling
	}
	child.parentNode = nil
	child.prevSibling = nil
	child.nextSibling = nil
	child.SetParent(nil)
}
