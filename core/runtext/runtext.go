// Package runtext implements substring replacement over a paragraph's
// ordered formatted spans. A target substring may straddle several spans
// (e.g. "[" "Customer" "]" in three runs); replacement redistributes text
// while keeping every span's identity, order, and formatting object intact.
//
// The package is deliberately format-agnostic: callers adapt their
// document library's runs to the Span interface, so the algorithm is
// testable without any document package on disk.
package runtext

import "strings"

// Span is a minimal formatted text unit within a paragraph.
type Span interface {
	// Text returns the span's current text, possibly empty.
	Text() string
	// SetText replaces the span's text.
	SetText(s string)
	// StripPlaceholderMarks removes placeholder styling (italic flag,
	// explicit color) from the span's formatting. Implementations with
	// no formatting may make this a no-op.
	StripPlaceholderMarks()
}

// position locates one byte of the concatenated paragraph text.
type position struct {
	span   int // index into the flattened span list
	offset int // byte offset within that span's text
}

// characterMap maps each byte of the concatenated text to its span and
// intra-span offset. It is rebuilt before every replacement so sequential
// replacements on the same paragraph stay consistent after prior mutations.
type characterMap struct {
	full      string
	positions []position
}

// buildCharacterMap flattens the spans with non-empty text and records,
// for every byte of the concatenation, which span owns it.
func buildCharacterMap(spans []Span) ([]Span, characterMap) {
	var flat []Span
	var sb strings.Builder
	var positions []position

	for _, sp := range spans {
		text := sp.Text()
		if text == "" {
			continue
		}
		idx := len(flat)
		flat = append(flat, sp)
		for off := 0; off < len(text); off++ {
			positions = append(positions, position{span: idx, offset: off})
		}
		sb.WriteString(text)
	}

	return flat, characterMap{full: sb.String(), positions: positions}
}

// Text returns the plain-text concatenation of the spans in order.
func Text(spans []Span) string {
	var sb strings.Builder
	for _, sp := range spans {
		sb.WriteString(sp.Text())
	}
	return sb.String()
}

// Replace substitutes the first occurrence of old across the spans with
// new, and reports whether a replacement happened. Absence of old is an
// expected outcome, not an error: callers probe several candidate labels
// and not every document carries all of them. When old is absent or the
// span list is empty, the spans are left byte-for-byte untouched.
//
// On success the concatenated text equals the prior text with exactly the
// first occurrence of old replaced by new; span count and order never
// change. Placeholder formatting is stripped from every span the match
// touched, start through end inclusive.
func Replace(spans []Span, old, new string) bool {
	if len(spans) == 0 || old == "" {
		return false
	}

	flat, cm := buildCharacterMap(spans)
	pos := strings.Index(cm.full, old)
	if pos == -1 {
		return false
	}

	start := cm.positions[pos]
	end := cm.positions[pos+len(old)-1]

	if start.span == end.span {
		sp := flat[start.span]
		sp.SetText(strings.Replace(sp.Text(), old, new, 1))
	} else {
		first := flat[start.span]
		first.SetText(first.Text()[:start.offset] + new)
		for mid := start.span + 1; mid < end.span; mid++ {
			flat[mid].SetText("")
		}
		last := flat[end.span]
		last.SetText(last.Text()[end.offset+1:])
	}

	for i := start.span; i <= end.span; i++ {
		flat[i].StripPlaceholderMarks()
	}
	return true
}

// LabelEndSpan returns the index (into the original span slice) of the
// span holding the last character of label's first occurrence, so a
// caller can insert new content immediately after a label that may
// itself be split across spans ("Party Name" + ":"). The second return
// is false when the label is absent.
func LabelEndSpan(spans []Span, label string) (int, bool) {
	if len(spans) == 0 || label == "" {
		return 0, false
	}

	pos := strings.Index(Text(spans), label)
	if pos == -1 {
		return 0, false
	}
	labelEnd := pos + len(label)

	count := 0
	for i, sp := range spans {
		count += len(sp.Text())
		if count >= labelEnd {
			return i, true
		}
	}
	return len(spans) - 1, true
}
