package ooxml

import (
	"encoding/xml"

	"github.com/antchfx/xmlquery"
)

// isWordElement reports whether n is a WordprocessingML element with the
// given local name.
func isWordElement(n *xmlquery.Node, local string) bool {
	if n == nil || n.Type != xmlquery.ElementNode || n.Data != local {
		return false
	}
	return n.Prefix == "w" || n.NamespaceURI == NSWordml
}

// Child returns the first direct w: child with the given local name.
func Child(n *xmlquery.Node, local string) *xmlquery.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isWordElement(c, local) {
			return c
		}
	}
	return nil
}

// Children returns all direct w: children with the given local name, in
// document order.
func Children(n *xmlquery.Node, local string) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isWordElement(c, local) {
			out = append(out, c)
		}
	}
	return out
}

// Descendants returns all w: elements with the given local name below n,
// in document order.
func Descendants(n *xmlquery.Node, local string) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	var out []*xmlquery.Node
	var walk func(*xmlquery.Node)
	walk = func(cur *xmlquery.Node) {
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if isWordElement(c, local) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// Ancestor returns the nearest ancestor w: element with the given local
// name, or nil.
func Ancestor(n *xmlquery.Node, local string) *xmlquery.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if isWordElement(cur, local) {
			return cur
		}
	}
	return nil
}

// attrMatches reports whether a stored attribute corresponds to the
// prefix:local name. The space may hold the prefix or the resolved URI.
func attrMatches(attr xmlquery.Attr, prefix, local string) bool {
	if attr.Name.Local != local {
		return false
	}
	space := attr.Name.Space
	if space == prefix {
		return true
	}
	p, ok := prefixByURI[space]
	return ok && p == prefix
}

// splitQName splits "w:val" into ("w", "val"); a bare name has no prefix.
func splitQName(name string) (prefix, local string) {
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return name[:i], name[i+1:]
		}
	}
	return "", name
}

// Attr returns the value of the named attribute ("w:val", "xml:space",
// or unprefixed), or "".
func Attr(n *xmlquery.Node, name string) string {
	if n == nil {
		return ""
	}
	prefix, local := splitQName(name)
	for _, attr := range n.Attr {
		if attrMatches(attr, prefix, local) {
			return attr.Value
		}
	}
	return ""
}

// SetAttr sets or replaces the named attribute.
func SetAttr(n *xmlquery.Node, name, value string) {
	prefix, local := splitQName(name)
	for i, attr := range n.Attr {
		if attrMatches(attr, prefix, local) {
			n.Attr[i].Value = value
			return
		}
	}
	n.Attr = append(n.Attr, xmlquery.Attr{
		Name:  xml.Name{Space: prefix, Local: local},
		Value: value,
	})
}

// NewElement constructs a detached w: element with the given local name.
func NewElement(local string) *xmlquery.Node {
	return &xmlquery.Node{
		Type:         xmlquery.ElementNode,
		Data:         local,
		Prefix:       "w",
		NamespaceURI: NSWordml,
	}
}

// AppendChild attaches child as the last child of parent.
func AppendChild(parent, child *xmlquery.Node) {
	child.Parent = parent
	child.NextSibling = nil
	if parent.LastChild == nil {
		parent.FirstChild = child
		child.PrevSibling = nil
	} else {
		parent.LastChild.NextSibling = child
		child.PrevSibling = parent.LastChild
	}
	parent.LastChild = child
}

// InsertFirst attaches child as the first child of parent.
func InsertFirst(parent, child *xmlquery.Node) {
	child.Parent = parent
	child.PrevSibling = nil
	child.NextSibling = parent.FirstChild
	if parent.FirstChild != nil {
		parent.FirstChild.PrevSibling = child
	} else {
		parent.LastChild = child
	}
	parent.FirstChild = child
}

// InsertAfter attaches node as the next sibling of ref.
func InsertAfter(ref, node *xmlquery.Node) {
	node.Parent = ref.Parent
	node.PrevSibling = ref
	node.NextSibling = ref.NextSibling
	if ref.NextSibling != nil {
		ref.NextSibling.PrevSibling = node
	} else if ref.Parent != nil {
		ref.Parent.LastChild = node
	}
	ref.NextSibling = node
}

// Remove detaches n from its parent.
func Remove(n *xmlquery.Node) {
	if n.Parent == nil {
		return
	}
	if n.PrevSibling != nil {
		n.PrevSibling.NextSibling = n.NextSibling
	} else {
		n.Parent.FirstChild = n.NextSibling
	}
	if n.NextSibling != nil {
		n.NextSibling.PrevSibling = n.PrevSibling
	} else {
		n.Parent.LastChild = n.PrevSibling
	}
	n.Parent = nil
	n.PrevSibling = nil
	n.NextSibling = nil
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *xmlquery.Node) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		child.Parent = nil
		child.PrevSibling = nil
		child.NextSibling = nil
		child = next
	}
	n.FirstChild = nil
	n.LastChild = nil
}

// Clone returns a detached deep copy of n.
func Clone(n *xmlquery.Node) *xmlquery.Node {
	if n == nil {
		return nil
	}
	dup := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
	}
	dup.Attr = append(dup.Attr, n.Attr...)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		AppendChild(dup, Clone(child))
	}
	return dup
}

// InnerText concatenates all text descendants of n in document order.
func InnerText(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return n.InnerText()
}
