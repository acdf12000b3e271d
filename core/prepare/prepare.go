// Package prepare converts official cover-page DOCX files into
// open-agreements templates: instruction content is removed, artifact
// headers and footers are cleared, bracketed placeholders become
// template tags, and signature blocks receive party-name tags. Output
// always goes to a new destination package; the source is never
// modified.
package prepare

import (
	"context"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/docprep/core/docx"
	"github.com/openagreements/docprep/core/errors"
	"github.com/openagreements/docprep/core/ooxml"
	"github.com/openagreements/docprep/internal/logging"
)

// Kind selects the document pipeline.
type Kind string

const (
	// KindNDA processes a Mutual NDA cover page.
	KindNDA Kind = "nda"
	// KindPSA processes a Professional Services Agreement cover page.
	KindPSA Kind = "psa"
)

// Job names one source document and where its template goes.
type Job struct {
	Name   string
	Kind   Kind
	Source string
	Dest   string
}

// ContextEntry pairs the template tag to insert with the placeholder
// text expected in the document.
type ContextEntry struct {
	Tag         string `yaml:"tag"`
	Placeholder string `yaml:"placeholder"`
}

// ContextMap maps a Key Terms row label to its replacement entry.
type ContextMap map[string]ContextEntry

// Replacement is one ordered old/new pair for in-paragraph rewriting.
type Replacement struct {
	Old string `yaml:"old"`
	New string `yaml:"new"`
}

// Result reports what one job changed.
type Result struct {
	InstructionRemoved bool
	PartsCleared       int
	Replacements       int
	TagsInserted       int
}

// clearedParts are the header/footer parts the source documents carry
// as export artifacts; templates get them emptied.
var clearedParts = []string{"header2.xml", "footer1.xml", "footer2.xml"}

// DefaultNDAContext reproduces the Mutual NDA Key Terms rows.
func DefaultNDAContext() ContextMap {
	return ContextMap{
		"Purpose":                {Tag: "{purpose}", Placeholder: "[How Confidential Information may be used]"},
		"Effective Date":         {Tag: "{effective_date}", Placeholder: "[Fill in]"},
		"Term of NDA":            {Tag: "{nda_term}", Placeholder: "[Agreement term and disclosure period]"},
		"Confidentiality Period": {Tag: "{confidentiality_period}", Placeholder: "[How long Confidential Information is protected]"},
		"Governing Law":          {Tag: "{governing_law}", Placeholder: "[Fill in]"},
		"Courts":                 {Tag: "{courts}", Placeholder: "[Fill in]"},
	}
}

// DefaultPSAContext reproduces the PSA Key Terms rows.
func DefaultPSAContext() ContextMap {
	return ContextMap{
		"Effective Date": {Tag: "{effective_date}", Placeholder: "[Fill in]"},
		"Governing Law":  {Tag: "{governing_law}", Placeholder: "[Fill in]"},
		"Courts":         {Tag: "{courts}", Placeholder: "[Fill in]"},
	}
}

// DefaultAgreementNameReplacements reproduces the PSA Name of Agreement
// rewrites, in application order.
func DefaultAgreementNameReplacements() []Replacement {
	return []Replacement{
		{Old: "[Customer]", New: "{customer_name}"},
		{Old: "[Provider]", New: "{provider_name}"},
		{Old: "[Effective Date]", New: "{effective_date}"},
	}
}

// Options overrides the default context maps and replacements.
type Options struct {
	NDAContext               ContextMap
	PSAContext               ContextMap
	AgreementNameReplacement []Replacement
}

func (o *Options) ndaContext() ContextMap {
	if o != nil && o.NDAContext != nil {
		return o.NDAContext
	}
	return DefaultNDAContext()
}

func (o *Options) psaContext() ContextMap {
	if o != nil && o.PSAContext != nil {
		return o.PSAContext
	}
	return DefaultPSAContext()
}

func (o *Options) agreementName() []Replacement {
	if o != nil && o.AgreementNameReplacement != nil {
		return o.AgreementNameReplacement
	}
	return DefaultAgreementNameReplacements()
}

// Run executes one prepare job: load the source package, transform the
// document per the job's kind, and write the result to the destination.
func Run(ctx context.Context, job Job, opts *Options) (*Result, error) {
	pkg, err := docx.Open(job.Source)
	if err != nil {
		return nil, err
	}

	data, err := pkg.Part(docx.DocumentPart)
	if err != nil {
		return nil, err
	}
	doc, err := ooxml.Parse(data)
	if err != nil {
		return nil, &errors.ParseError{Format: "WordprocessingML", Path: job.Source, Message: err.Error(), Err: err}
	}

	res := &Result{}

	if RemoveInstructionParagraph(ctx, job.Name, doc) {
		res.InstructionRemoved = true
	}
	for _, name := range clearedParts {
		cleared, err := ClearHeaderFooter(ctx, job.Name, pkg, name)
		if err != nil {
			return nil, err
		}
		if cleared {
			res.PartsCleared++
		}
	}

	switch job.Kind {
	case KindNDA:
		res.Replacements += ReplaceKeyTerms(ctx, job.Name, doc, opts.ndaContext())
		res.TagsInserted += TagNDASignatures(ctx, job.Name, doc)
	case KindPSA:
		res.Replacements += ReplaceAgreementName(ctx, job.Name, doc, opts.agreementName())
		res.Replacements += ReplaceKeyTerms(ctx, job.Name, doc, opts.psaContext())
		res.TagsInserted += TagPSASignatures(ctx, job.Name, doc)
	default:
		return nil, &errors.UnsupportedError{Feature: "document kind", Reason: string(job.Kind)}
	}

	pkg.SetPart(docx.DocumentPart, doc.Bytes())
	if err := pkg.Save(job.Dest); err != nil {
		return nil, err
	}

	logging.ArtifactWritten(ctx, "prepared", job.Source, job.Dest,
		"replacements", res.Replacements, "tags", res.TagsInserted)
	return res, nil
}

// RemoveInstructionParagraph removes the first paragraph of the body
// when it is the bracketed example note shipped with the source
// documents. Returns whether a paragraph was removed.
func RemoveInstructionParagraph(ctx context.Context, document string, doc *ooxml.Part) bool {
	body := doc.Body()
	if body == nil {
		return false
	}
	first := ooxml.Child(body, "p")
	if first == nil {
		return false
	}
	text := ooxml.ParagraphText(first)
	if !strings.Contains(strings.ToUpper(text), "[EXAMPLE:") {
		return false
	}
	ooxml.Remove(first)
	logging.InfoContext(ctx, "instruction_paragraph_removed", "document", document, "text", truncate(text, 60))
	return true
}

// ClearHeaderFooter resets word/<filename> to a single empty paragraph
// so the part stays valid while losing all content. Absent parts are
// skipped (not every document carries every header).
func ClearHeaderFooter(ctx context.Context, document string, pkg *docx.Package, filename string) (bool, error) {
	name := "word/" + filename
	data, err := pkg.Part(name)
	if err != nil {
		if errors.Is(err, errors.ErrMissingPart) {
			return false, nil
		}
		return false, err
	}

	part, err := ooxml.Parse(data)
	if err != nil {
		return false, &errors.ParseError{Format: "WordprocessingML", Path: name, Message: err.Error(), Err: err}
	}
	root := part.Root()
	if root == nil {
		return false, nil
	}

	ooxml.RemoveChildren(root)
	p := ooxml.NewElement("p")
	ooxml.AppendChild(p, ooxml.NewElement("pPr"))
	ooxml.AppendChild(root, p)

	pkg.SetPart(name, part.Bytes())
	logging.PartCleared(ctx, document, name)
	return true, nil
}

// ReplaceKeyTerms walks every two-cell table row; when the first cell's
// trimmed text is a context-map label, the second cell's expected
// placeholder is replaced with the template tag. Placeholders absent
// from a given document are skipped silently.
func ReplaceKeyTerms(ctx context.Context, document string, doc *ooxml.Part, contextMap ContextMap) int {
	body := doc.Body()
	replaced := 0
	for _, tbl := range ooxml.Children(body, "tbl") {
		for _, row := range ooxml.Children(tbl, "tr") {
			cells := ooxml.Children(row, "tc")
			if len(cells) != 2 {
				continue
			}
			label := strings.TrimSpace(cellText(cells[0]))
			entry, ok := contextMap[label]
			if !ok {
				continue
			}
			if ooxml.SetCellText(cells[1], entry.Placeholder, entry.Tag) {
				replaced++
				logging.Replacement(ctx, document, entry.Placeholder, entry.Tag, "label", label)
			}
		}
	}
	return replaced
}

// ReplaceAgreementName rewrites bracketed placeholders inside table-cell
// paragraphs, in order, using the cross-run span rewriter. Each pair is
// applied against freshly flattened paragraph state, so a placeholder
// split as "[" / "Customer" / "]" is handled and earlier replacements
// never confuse later ones.
func ReplaceAgreementName(ctx context.Context, document string, doc *ooxml.Part, replacements []Replacement) int {
	body := doc.Body()
	replaced := 0
	for _, tbl := range ooxml.Children(body, "tbl") {
		for _, row := range ooxml.Children(tbl, "tr") {
			for _, cell := range ooxml.Children(row, "tc") {
				for _, p := range ooxml.Children(cell, "p") {
					text := ooxml.ParagraphText(p)
					if !containsAny(text, replacements) {
						continue
					}
					for _, r := range replacements {
						if ooxml.ReplaceInParagraph(p, r.Old, r.New) {
							replaced++
							logging.Replacement(ctx, document, r.Old, r.New)
						}
					}
				}
			}
		}
	}
	return replaced
}

// TagNDASignatures appends party-name tags after the "Party Name:"
// labels of the signature table, in document order: the first label gets
// {party_1_name}, every later one {party_2_name}.
func TagNDASignatures(ctx context.Context, document string, doc *ooxml.Part) int {
	body := doc.Body()
	inserted := 0
	partyCount := 0
	for _, tbl := range ooxml.Children(body, "tbl") {
		for _, row := range ooxml.Children(tbl, "tr") {
			for _, cell := range ooxml.Children(row, "tc") {
				for _, p := range ooxml.Children(cell, "p") {
					if !strings.Contains(ooxml.ParagraphText(p), "Party Name:") {
						continue
					}
					partyCount++
					tag := "{party_1_name}"
					if partyCount > 1 {
						tag = "{party_2_name}"
					}
					if ooxml.AppendTagAfterLabel(p, "Party Name:", tag) {
						inserted++
						logging.TagInserted(ctx, document, "Party Name:", tag)
					}
				}
			}
		}
	}
	return inserted
}

// TagPSASignatures finds the signature table (first-row text contains
// "Signature"), classifies each cell as the Customer or Provider block,
// and appends the matching tag after that cell's "Company:" label.
func TagPSASignatures(ctx context.Context, document string, doc *ooxml.Part) int {
	body := doc.Body()
	inserted := 0
	for _, tbl := range ooxml.Children(body, "tbl") {
		rows := ooxml.Children(tbl, "tr")
		if len(rows) == 0 {
			continue
		}
		if !strings.Contains(rowText(rows[0]), "Signature") {
			continue
		}

		for _, row := range rows {
			for _, cell := range ooxml.Children(row, "tc") {
				tag := classifySignatureCell(cell)
				if tag == "" {
					continue
				}
				for _, p := range ooxml.Children(cell, "p") {
					if !strings.HasPrefix(strings.TrimSpace(ooxml.ParagraphText(p)), "Company:") {
						continue
					}
					if ooxml.AppendTagAfterLabel(p, "Company:", tag) {
						inserted++
						logging.TagInserted(ctx, document, "Company:", tag)
					}
					break
				}
			}
		}
	}
	return inserted
}

// classifySignatureCell returns the tag for a signature cell, or "" when
// the cell belongs to neither party.
func classifySignatureCell(cell *xmlquery.Node) string {
	for _, p := range ooxml.Children(cell, "p") {
		text := strings.TrimSpace(ooxml.ParagraphText(p))
		if strings.HasPrefix(text, "Customer:") {
			return "{customer_name}"
		}
		if strings.HasPrefix(text, "Provider:") {
			return "{provider_name}"
		}
	}
	return ""
}

func cellText(cell *xmlquery.Node) string {
	var sb strings.Builder
	for _, p := range ooxml.Children(cell, "p") {
		sb.WriteString(ooxml.ParagraphText(p))
	}
	return sb.String()
}

func rowText(row *xmlquery.Node) string {
	var sb strings.Builder
	for _, cell := range ooxml.Children(row, "tc") {
		sb.WriteString(cellText(cell))
	}
	return sb.String()
}

func containsAny(text string, replacements []Replacement) bool {
	for _, r := range replacements {
		if strings.Contains(text, r.Old) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
