package ooxml

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/docprep/core/runtext"
)

// Body returns the w:body element of a document part, or nil.
func (p *Part) Body() *xmlquery.Node {
	return Child(p.Root(), "body")
}

// ParagraphText extracts the plain text of a w:p element by
// concatenating every w:t descendant in document order, including runs
// nested inside hyperlinks.
func ParagraphText(p *xmlquery.Node) string {
	var sb strings.Builder
	for _, t := range Descendants(p, "t") {
		sb.WriteString(InnerText(t))
	}
	return sb.String()
}

// runSpan adapts a w:r element to runtext.Span. Only runs owning a w:t
// participate in replacement.
type runSpan struct {
	run *xmlquery.Node
	t   *xmlquery.Node
}

func (s *runSpan) Text() string {
	return InnerText(s.t)
}

func (s *runSpan) SetText(text string) {
	setTextContent(s.t, text)
}

// StripPlaceholderMarks removes the italic flag and explicit color from
// the run's properties, so substituted text renders as normal body text.
func (s *runSpan) StripPlaceholderMarks() {
	StripPlaceholderMarks(s.run)
}

// StripPlaceholderMarks removes w:i, w:iCs, and w:color from a run's
// w:rPr, if present.
func StripPlaceholderMarks(run *xmlquery.Node) {
	rpr := Child(run, "rPr")
	if rpr == nil {
		return
	}
	for _, local := range []string{"i", "iCs", "color"} {
		if el := Child(rpr, local); el != nil {
			Remove(el)
		}
	}
}

// setTextContent replaces the text content of a w:t element, adding
// xml:space="preserve" when the text carries significant edge whitespace.
func setTextContent(t *xmlquery.Node, text string) {
	RemoveChildren(t)
	if text != "" {
		AppendChild(t, &xmlquery.Node{Type: xmlquery.TextNode, Data: text})
	}
	if text != strings.TrimSpace(text) {
		SetAttr(t, "xml:space", "preserve")
	}
}

// ParagraphSpans adapts a paragraph's runs to an ordered span list:
// direct-child w:r elements plus runs nested one level inside
// w:hyperlink wrappers, flattened in document order.
func ParagraphSpans(p *xmlquery.Node) []runtext.Span {
	var spans []runtext.Span
	appendRun := func(r *xmlquery.Node) {
		if t := Child(r, "t"); t != nil {
			spans = append(spans, &runSpan{run: r, t: t})
		}
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case isWordElement(c, "r"):
			appendRun(c)
		case isWordElement(c, "hyperlink"):
			for _, r := range Children(c, "r") {
				appendRun(r)
			}
		}
	}
	return spans
}

// ReplaceInParagraph runs the span rewriter over a paragraph for one
// old/new pair, and reports whether a replacement occurred. State is
// re-flattened on every call, so sequential replacements on the same
// paragraph stay consistent after prior mutations.
func ReplaceInParagraph(p *xmlquery.Node, old, new string) bool {
	return runtext.Replace(ParagraphSpans(p), old, new)
}

// directRuns collects only direct-child w:r elements that own a w:t.
// Tag insertion works at this level so the new run lands as a direct
// sibling of the label's runs.
func directRuns(p *xmlquery.Node) ([]*xmlquery.Node, []runtext.Span) {
	var runs []*xmlquery.Node
	var spans []runtext.Span
	for _, r := range Children(p, "r") {
		if t := Child(r, "t"); t != nil {
			runs = append(runs, r)
			spans = append(spans, &runSpan{run: r, t: t})
		}
	}
	return runs, spans
}

// AppendTagAfterLabel inserts a new run carrying " " + tag immediately
// after the run holding the last character of label. The label may be
// split across runs ("Party Name" in one, ":" in the next); both label
// runs keep their text. The inserted run copies the label run's
// formatting minus bold, so the tag renders as a fill-in value rather
// than a field heading. Returns false, leaving the paragraph untouched,
// when the label is absent.
func AppendTagAfterLabel(p *xmlquery.Node, label, tag string) bool {
	runs, spans := directRuns(p)
	if len(runs) == 0 {
		return false
	}

	idx, ok := runtext.LabelEndSpan(spans, label)
	if !ok {
		return false
	}
	labelRun := runs[idx]

	newRun := NewElement("r")
	if rpr := Child(labelRun, "rPr"); rpr != nil {
		newRPR := Clone(rpr)
		for _, local := range []string{"b", "bCs"} {
			if el := Child(newRPR, local); el != nil {
				Remove(el)
			}
		}
		AppendChild(newRun, newRPR)
	}

	t := NewElement("t")
	SetAttr(t, "xml:space", "preserve")
	AppendChild(t, &xmlquery.Node{Type: xmlquery.TextNode, Data: " " + tag})
	AppendChild(newRun, t)

	InsertAfter(labelRun, newRun)
	return true
}

// SetCellText rewrites the first paragraph of a table cell whose text
// contains old: the first run keeps its formatting and receives new as
// its full text with placeholder marks stripped, and every other run and
// hyperlink of that paragraph is removed. Returns false when no
// paragraph of the cell contains old.
func SetCellText(cell *xmlquery.Node, old, new string) bool {
	for _, p := range Children(cell, "p") {
		if !strings.Contains(ParagraphText(p), old) {
			continue
		}
		runs := Descendants(p, "r")
		if len(runs) == 0 {
			continue
		}

		first := runs[0]
		t := Child(first, "t")
		if t == nil {
			t = NewElement("t")
			AppendChild(first, t)
		}
		setTextContent(t, new)
		SetAttr(t, "xml:space", "preserve")
		StripPlaceholderMarks(first)

		for c := p.FirstChild; c != nil; {
			next := c.NextSibling
			if (isWordElement(c, "r") && c != first) || isWordElement(c, "hyperlink") {
				Remove(c)
			}
			c = next
		}
		return true
	}
	return false
}
