// Package style restyles generated employment templates in place:
// blank spacer paragraphs are removed, tables get uniform row heights
// and cell margins, and paragraph spacing is assigned from an ordered
// rule list. A license gate decides between licensed and evaluation
// output; evaluation mode prepends a notice paragraph to each document.
package style

import (
	"context"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/openagreements/docprep/core/docx"
	"github.com/openagreements/docprep/core/errors"
	"github.com/openagreements/docprep/core/ooxml"
	"github.com/openagreements/docprep/internal/logging"
)

// EvaluationNotice is the paragraph text inserted when no valid license
// file is found.
const EvaluationNotice = "EVALUATION OUTPUT. Install a license file to produce distributable documents."

// Matcher describes which paragraphs a rule applies to. An empty
// matcher matches every paragraph.
type Matcher struct {
	Equals  []string `yaml:"equals,omitempty"`
	Prefix  []string `yaml:"prefix,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`

	re *regexp.Regexp
}

func (m *Matcher) compile() error {
	if m.Pattern == "" || m.re != nil {
		return nil
	}
	re, err := regexp.Compile(m.Pattern)
	if err != nil {
		return errors.NewValidation("pattern", "invalid rule pattern "+strconv.Quote(m.Pattern)+": "+err.Error())
	}
	m.re = re
	return nil
}

// Matches reports whether the trimmed paragraph text satisfies the
// matcher. compile must have been called when Pattern is set.
func (m *Matcher) Matches(text string) bool {
	for _, s := range m.Equals {
		if text == s {
			return true
		}
	}
	for _, s := range m.Prefix {
		if strings.HasPrefix(text, s) {
			return true
		}
	}
	if m.re != nil && m.re.MatchString(text) {
		return true
	}
	return len(m.Equals) == 0 && len(m.Prefix) == 0 && m.Pattern == ""
}

// Rule pairs a matcher with the spacing it assigns, in points. Rules
// marked OutsideTablesOnly never apply to paragraphs inside table
// cells.
type Rule struct {
	Name              string  `yaml:"name"`
	Match             Matcher `yaml:"match"`
	BeforePt          float64 `yaml:"before_pt"`
	AfterPt           float64 `yaml:"after_pt"`
	OutsideTablesOnly bool    `yaml:"outside_tables_only,omitempty"`
}

// DefaultRules reproduces the employment-template spacing scheme. The
// first matching rule wins; the final catch-all styles body paragraphs
// that no earlier rule claimed.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "section heading", Match: Matcher{Equals: []string{"Standard Terms", "Signatures"}}, BeforePt: 22, AfterPt: 14},
		{Name: "numbered clause", Match: Matcher{Pattern: `^\d+\.\s.+\.$`}, BeforePt: 16, AfterPt: 6},
		{Name: "terms version line", Match: Matcher{Prefix: []string{"OpenAgreements Employment Terms v1.0"}}, BeforePt: 4, AfterPt: 10},
		{Name: "cover terms lead", Match: Matcher{Prefix: []string{"Cover Terms:"}}, BeforePt: 0, AfterPt: 14},
		{Name: "party heading", Match: Matcher{Equals: []string{"Company", "Employee"}}, BeforePt: 10, AfterPt: 8},
		{Name: "signature line", Match: Matcher{Prefix: []string{"Signature:", "Name:", "Title:"}}, BeforePt: 2, AfterPt: 10},
		{Name: "body text", Match: Matcher{}, BeforePt: 0, AfterPt: 14, OutsideTablesOnly: true},
	}
}

// CompileRules validates every rule pattern up front.
func CompileRules(rules []Rule) error {
	for i := range rules {
		if err := rules[i].Match.compile(); err != nil {
			return err
		}
	}
	return nil
}

// Row height and cell margins applied by StyleTables, in points.
const (
	rowHeightPt    = 34
	cellMarginTBPt = 7
	cellMarginLRPt = 8
	cellAfterPt    = 10
)

// ResolveLicense returns the first candidate path that names an
// existing, valid license file. Candidates that do not exist or fail
// validation are skipped.
func ResolveLicense(candidates []string) (string, bool) {
	for _, path := range candidates {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := checkLicense(data); err != nil {
			logging.Warn("license_file_invalid", "path", path, "error", err)
			continue
		}
		return path, true
	}
	return "", false
}

// checkLicense accepts an XML document whose root element is License.
func checkLicense(data []byte) error {
	part, err := ooxml.Parse(data)
	if err != nil {
		return errors.Wrap(errors.ErrLicenseInvalid, "not an XML document")
	}
	root := part.Root()
	if root == nil || root.Data != "License" {
		return errors.Wrap(errors.ErrLicenseInvalid, "unexpected root element")
	}
	return nil
}

// Result reports what one styling pass changed.
type Result struct {
	Licensed       bool
	SpacersRemoved int
	Tables         int
	Paragraphs     int
}

// Run restyles one template in place. The rules must already be
// compiled. When licensed is false the evaluation notice is prepended
// before any styling.
func Run(ctx context.Context, path string, licensed bool, rules []Rule) (*Result, error) {
	pkg, err := docx.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := pkg.Part(docx.DocumentPart)
	if err != nil {
		return nil, err
	}
	doc, err := ooxml.Parse(data)
	if err != nil {
		return nil, &errors.ParseError{Format: "WordprocessingML", Path: path, Message: err.Error(), Err: err}
	}

	res := &Result{Licensed: licensed}
	if !licensed {
		InsertEvaluationNotice(doc)
	}

	res.SpacersRemoved = RemoveBlankSpacers(doc)
	res.Tables = StyleTables(doc)
	n, err := StyleParagraphs(doc, rules)
	if err != nil {
		return nil, err
	}
	res.Paragraphs = n

	pkg.SetPart(docx.DocumentPart, doc.Bytes())
	if err := pkg.Save(path); err != nil {
		return nil, err
	}

	logging.Styled(ctx, path, res.Tables, res.Paragraphs, res.SpacersRemoved, "licensed", licensed)
	return res, nil
}

// InsertEvaluationNotice prepends the evaluation banner paragraph to
// the body. Repeated passes over an evaluation document accumulate one
// banner each; callers gate on license state, not on document content.
func InsertEvaluationNotice(doc *ooxml.Part) {
	body := doc.Body()
	if body == nil {
		return
	}

	rpr := ooxml.NewElement("rPr")
	ooxml.AppendChild(rpr, ooxml.NewElement("b"))
	color := ooxml.NewElement("color")
	ooxml.SetAttr(color, "w:val", "FF0000")
	ooxml.AppendChild(rpr, color)

	r := ooxml.NewElement("r")
	ooxml.AppendChild(r, rpr)
	t := ooxml.NewElement("t")
	ooxml.AppendChild(t, &xmlquery.Node{Type: xmlquery.TextNode, Data: EvaluationNotice})
	ooxml.AppendChild(r, t)

	p := ooxml.NewElement("p")
	ooxml.AppendChild(p, r)
	ooxml.InsertFirst(body, p)
}

// RemoveBlankSpacers deletes every paragraph whose text trims to empty
// and that sits outside any table cell. Returns the number removed.
func RemoveBlankSpacers(doc *ooxml.Part) int {
	removed := 0
	for _, p := range ooxml.Descendants(doc.Body(), "p") {
		if strings.TrimSpace(ooxml.ParagraphText(p)) != "" {
			continue
		}
		if ooxml.Ancestor(p, "tc") != nil {
			continue
		}
		ooxml.Remove(p)
		removed++
	}
	return removed
}

// StyleTables applies the uniform table geometry: row height, cell
// margins, and cell paragraph spacing. Returns the number of tables
// touched.
func StyleTables(doc *ooxml.Part) int {
	tables := ooxml.Descendants(doc.Body(), "tbl")
	for _, tbl := range tables {
		for _, tr := range ooxml.Children(tbl, "tr") {
			styleRow(tr)
		}
	}
	return len(tables)
}

func styleRow(tr *xmlquery.Node) {
	trPr := ensureFirst(tr, "trPr")
	height := ensureChild(trPr, "trHeight")
	ooxml.SetAttr(height, "w:val", twips(rowHeightPt))
	ooxml.SetAttr(height, "w:hRule", "atLeast")

	for _, tc := range ooxml.Children(tr, "tc") {
		tcPr := ensureFirst(tc, "tcPr")
		mar := ensureChild(tcPr, "tcMar")
		for _, side := range []string{"top", "bottom"} {
			setMargin(mar, side, cellMarginTBPt)
		}
		for _, side := range []string{"left", "right"} {
			setMargin(mar, side, cellMarginLRPt)
		}
		for _, p := range ooxml.Children(tc, "p") {
			setSpacing(p, 0, cellAfterPt)
		}
	}
}

func setMargin(mar *xmlquery.Node, side string, pt float64) {
	el := ensureChild(mar, side)
	ooxml.SetAttr(el, "w:w", twips(pt))
	ooxml.SetAttr(el, "w:type", "dxa")
}

// StyleParagraphs assigns spacing to every paragraph with non-empty
// trimmed text from the first matching rule. Returns the number of
// paragraphs styled.
func StyleParagraphs(doc *ooxml.Part, rules []Rule) (int, error) {
	if err := CompileRules(rules); err != nil {
		return 0, err
	}
	styled := 0
	for _, p := range ooxml.Descendants(doc.Body(), "p") {
		text := strings.TrimSpace(ooxml.ParagraphText(p))
		if text == "" {
			continue
		}
		inTable := ooxml.Ancestor(p, "tc") != nil
		for _, rule := range rules {
			if rule.OutsideTablesOnly && inTable {
				continue
			}
			if !rule.Match.Matches(text) {
				continue
			}
			setSpacing(p, rule.BeforePt, rule.AfterPt)
			styled++
			break
		}
	}
	return styled, nil
}

// setSpacing writes w:pPr/w:spacing keeping w:pPr the first child.
func setSpacing(p *xmlquery.Node, beforePt, afterPt float64) {
	pPr := ensureFirst(p, "pPr")
	spacing := ensureChild(pPr, "spacing")
	ooxml.SetAttr(spacing, "w:before", twips(beforePt))
	ooxml.SetAttr(spacing, "w:after", twips(afterPt))
}

// ensureFirst returns the named direct child, creating it as the first
// child when absent. Property containers (w:pPr, w:trPr, w:tcPr) must
// precede content in WordprocessingML.
func ensureFirst(parent *xmlquery.Node, local string) *xmlquery.Node {
	if el := ooxml.Child(parent, local); el != nil {
		return el
	}
	el := ooxml.NewElement(local)
	ooxml.InsertFirst(parent, el)
	return el
}

func ensureChild(parent *xmlquery.Node, local string) *xmlquery.Node {
	if el := ooxml.Child(parent, local); el != nil {
		return el
	}
	el := ooxml.NewElement(local)
	ooxml.AppendChild(parent, el)
	return el
}

// twips converts points to twentieths of a point.
func twips(pt float64) string {
	return strconv.Itoa(int(math.Round(pt * 20)))
}
