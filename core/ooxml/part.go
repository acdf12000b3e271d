// Package ooxml provides parsing, querying, mutation, and serialization
// of WordprocessingML part XML (word/document.xml, headers, footers).
//
// Parsing and XPath are built on antchfx/xmlquery; serialization is a
// compact node walk that keeps text content byte-exact and never
// reindents, so a parse/serialize round trip of a mutated part stays a
// faithful edit of the original rather than a reformatting.
package ooxml

import (
	"bytes"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/openagreements/docprep/core/encoding"
)

// Namespace URIs that appear in queries and attribute handling.
const (
	NSWordml = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	NSXML    = "http://www.w3.org/XML/1998/namespace"
)

// prefixByURI maps well-known OOXML namespace URIs back to their
// customary prefixes for attribute serialization. Parsed attributes may
// carry either the prefix or the resolved URI depending on the decoder,
// so both forms are accepted throughout the package.
var prefixByURI = map[string]string{
	NSWordml: "w",
	NSXML:    "xml",
	"http://schemas.openxmlformats.org/officeDocument/2006/relationships": "r",
	"http://schemas.openxmlformats.org/markup-compatibility/2006":         "mc",
	"http://schemas.microsoft.com/office/word/2010/wordml":                "w14",
	"http://schemas.microsoft.com/office/word/2012/wordml":                "w15",
	"http://schemas.openxmlformats.org/drawingml/2006/main":               "a",
}

// Part is one parsed XML part of a document package.
type Part struct {
	doc *xmlquery.Node // DocumentNode; declaration and root hang off it
}

// Parse parses part XML into a queryable, mutable tree.
func Parse(data []byte) (*Part, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing part XML: %w", err)
	}
	return &Part{doc: root}, nil
}

// Root returns the root element of the part, or nil for an empty part.
func (p *Part) Root() *xmlquery.Node {
	for child := p.doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

// Query returns all nodes matching the XPath expression. Expressions use
// the literal prefixes of the document, e.g. "//w:tbl".
func (p *Part) Query(expr string) ([]*xmlquery.Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	nodes, err := xmlquery.QueryAll(p.doc, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query %q: %w", expr, err)
	}
	return nodes, nil
}

// QueryOne returns the first node matching the XPath expression, or nil.
func (p *Part) QueryOne(expr string) (*xmlquery.Node, error) {
	if _, err := xpath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	node, err := xmlquery.Query(p.doc, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query %q: %w", expr, err)
	}
	return node, nil
}

// Bytes serializes the part back to XML.
func (p *Part) Bytes() []byte {
	var buf bytes.Buffer
	for child := p.doc.FirstChild; child != nil; child = child.NextSibling {
		writeNode(&buf, child)
	}
	return buf.Bytes()
}

// writeNode emits one node and its subtree in compact form.
func writeNode(w *bytes.Buffer, n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, attr := range n.Attr {
			w.WriteString(" ")
			w.WriteString(attr.Name.Local)
			w.WriteString(`="`)
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString(`"`)
		}
		w.WriteString("?>")

	case xmlquery.ElementNode:
		w.WriteString("<")
		w.WriteString(qualifiedName(n))
		for _, attr := range n.Attr {
			w.WriteString(" ")
			w.WriteString(attrName(attr))
			w.WriteString(`="`)
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString(`"`)
		}
		if n.FirstChild == nil {
			w.WriteString("/>")
			return
		}
		w.WriteString(">")
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			writeNode(w, child)
		}
		w.WriteString("</")
		w.WriteString(qualifiedName(n))
		w.WriteString(">")

	case xmlquery.TextNode:
		w.WriteString(encoding.EscapeXMLText(n.Data))

	case xmlquery.CharDataNode:
		w.WriteString("<![CDATA[")
		w.WriteString(n.Data)
		w.WriteString("]]>")

	case xmlquery.CommentNode:
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->")
	}
}

// qualifiedName returns the element name with its prefix, if any.
func qualifiedName(n *xmlquery.Node) string {
	if n.Prefix != "" {
		return n.Prefix + ":" + n.Data
	}
	return n.Data
}

// attrName renders an attribute name back to prefix:local form. Parsed
// attribute spaces may hold either a prefix or a resolved namespace URI.
func attrName(attr xmlquery.Attr) string {
	space := attr.Name.Space
	switch {
	case space == "":
		return attr.Name.Local
	case space == "xmlns":
		return "xmlns:" + attr.Name.Local
	default:
		if prefix, ok := prefixByURI[space]; ok {
			return prefix + ":" + attr.Name.Local
		}
		return space + ":" + attr.Name.Local
	}
}
