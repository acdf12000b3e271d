package style

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openagreements/docprep/core/docx"
	"github.com/openagreements/docprep/core/ooxml"
)

const docHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

const docFooter = `</w:body></w:document>`

func parseDoc(t *testing.T, body string) *ooxml.Part {
	t.Helper()
	part, err := ooxml.Parse([]byte(docHeader + body + docFooter))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return part
}

func para(text string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func tableWith(paras ...string) string {
	return `<w:tbl><w:tr><w:tc>` + strings.Join(paras, "") + `</w:tc></w:tr></w:tbl>`
}

func paragraphSpacing(t *testing.T, doc *ooxml.Part, text string) (before, after string) {
	t.Helper()
	for _, p := range ooxml.Descendants(doc.Body(), "p") {
		if strings.TrimSpace(ooxml.ParagraphText(p)) != text {
			continue
		}
		pPr := ooxml.Child(p, "pPr")
		if pPr == nil {
			return "", ""
		}
		spacing := ooxml.Child(pPr, "spacing")
		if spacing == nil {
			return "", ""
		}
		return ooxml.Attr(spacing, "w:before"), ooxml.Attr(spacing, "w:after")
	}
	t.Fatalf("paragraph %q not found", text)
	return "", ""
}

func TestMatcher(t *testing.T) {
	tests := []struct {
		name    string
		matcher Matcher
		text    string
		want    bool
	}{
		{"equals hit", Matcher{Equals: []string{"Company", "Employee"}}, "Employee", true},
		{"equals miss", Matcher{Equals: []string{"Company"}}, "Companies", false},
		{"prefix hit", Matcher{Prefix: []string{"Name:"}}, "Name: ____________", true},
		{"prefix miss", Matcher{Prefix: []string{"Name:"}}, "Full Name:", false},
		{"pattern hit", Matcher{Pattern: `^\d+\.\s.+\.$`}, "3. Duties and responsibilities.", true},
		{"pattern miss", Matcher{Pattern: `^\d+\.\s.+\.$`}, "3. Duties and responsibilities", false},
		{"empty matches all", Matcher{}, "anything at all", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.matcher.compile(); err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := tt.matcher.Matches(tt.text); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCompileRulesInvalidPattern(t *testing.T) {
	rules := []Rule{{Name: "bad", Match: Matcher{Pattern: `([`}}}
	if err := CompileRules(rules); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestRemoveBlankSpacers(t *testing.T) {
	doc := parseDoc(t,
		para("Cover Terms: Employment Agreement")+
			`<w:p/>`+
			`<w:p><w:r><w:t>   </w:t></w:r></w:p>`+
			tableWith(`<w:p/>`, para("Company")))

	if got := RemoveBlankSpacers(doc); got != 2 {
		t.Fatalf("removed = %d, want 2", got)
	}

	// The blank paragraph inside the table cell stays.
	ps := ooxml.Descendants(doc.Body(), "p")
	if len(ps) != 3 {
		t.Fatalf("paragraphs remaining = %d, want 3", len(ps))
	}
}

func TestStyleTables(t *testing.T) {
	doc := parseDoc(t, tableWith(para("Company"), para("details")))
	if got := StyleTables(doc); got != 1 {
		t.Fatalf("tables = %d, want 1", got)
	}

	tbl := ooxml.Child(doc.Body(), "tbl")
	tr := ooxml.Child(tbl, "tr")
	if tr.FirstChild == nil || tr.FirstChild.Data != "trPr" {
		t.Fatal("trPr is not the row's first child")
	}
	height := ooxml.Child(ooxml.Child(tr, "trPr"), "trHeight")
	if got := ooxml.Attr(height, "w:val"); got != "680" {
		t.Errorf("row height = %s, want 680", got)
	}
	if got := ooxml.Attr(height, "w:hRule"); got != "atLeast" {
		t.Errorf("hRule = %s, want atLeast", got)
	}

	tc := ooxml.Child(tr, "tc")
	if tc.FirstChild == nil || tc.FirstChild.Data != "tcPr" {
		t.Fatal("tcPr is not the cell's first child")
	}
	mar := ooxml.Child(ooxml.Child(tc, "tcPr"), "tcMar")
	for side, want := range map[string]string{"top": "140", "bottom": "140", "left": "160", "right": "160"} {
		el := ooxml.Child(mar, side)
		if el == nil {
			t.Fatalf("margin %s missing", side)
		}
		if got := ooxml.Attr(el, "w:w"); got != want {
			t.Errorf("margin %s = %s, want %s", side, got, want)
		}
		if got := ooxml.Attr(el, "w:type"); got != "dxa" {
			t.Errorf("margin %s type = %s, want dxa", side, got)
		}
	}

	for _, p := range ooxml.Children(tc, "p") {
		spacing := ooxml.Child(ooxml.Child(p, "pPr"), "spacing")
		if got := ooxml.Attr(spacing, "w:after"); got != "200" {
			t.Errorf("cell paragraph after = %s, want 200", got)
		}
	}
}

func TestStyleTablesIdempotent(t *testing.T) {
	doc := parseDoc(t, tableWith(para("Company")))
	StyleTables(doc)
	first := doc.Bytes()
	StyleTables(doc)
	if !bytes.Equal(first, doc.Bytes()) {
		t.Error("second pass changed the document")
	}
}

func TestStyleParagraphs(t *testing.T) {
	doc := parseDoc(t,
		para("Standard Terms")+
			para("3. Compensation and benefits.")+
			para("OpenAgreements Employment Terms v1.0 (United States)")+
			para("Cover Terms: key deal points")+
			para("Signature: ____________")+
			para("Any other body paragraph")+
			tableWith(para("Company"), para("table free text")))

	styled, err := StyleParagraphs(doc, DefaultRules())
	if err != nil {
		t.Fatalf("style: %v", err)
	}
	// Every paragraph except the unmatched in-table one.
	if styled != 7 {
		t.Fatalf("styled = %d, want 7", styled)
	}

	tests := []struct {
		text          string
		before, after string
	}{
		{"Standard Terms", "440", "280"},
		{"3. Compensation and benefits.", "320", "120"},
		{"OpenAgreements Employment Terms v1.0 (United States)", "80", "200"},
		{"Cover Terms: key deal points", "0", "280"},
		{"Signature: ____________", "40", "200"},
		{"Any other body paragraph", "0", "280"},
		{"Company", "200", "160"},
	}
	for _, tt := range tests {
		before, after := paragraphSpacing(t, doc, tt.text)
		if before != tt.before || after != tt.after {
			t.Errorf("%q spacing = %s/%s, want %s/%s", tt.text, before, after, tt.before, tt.after)
		}
	}

	// The catch-all never reaches into table cells.
	if before, after := paragraphSpacing(t, doc, "table free text"); before != "" || after != "" {
		t.Errorf("unmatched table paragraph styled: %s/%s", before, after)
	}
}

func TestStyleParagraphsKeepsPPrFirst(t *testing.T) {
	doc := parseDoc(t, para("Standard Terms"))
	if _, err := StyleParagraphs(doc, DefaultRules()); err != nil {
		t.Fatalf("style: %v", err)
	}
	p := ooxml.Child(doc.Body(), "p")
	if p.FirstChild == nil || p.FirstChild.Data != "pPr" {
		t.Fatal("pPr is not the paragraph's first child")
	}
}

func TestInsertEvaluationNotice(t *testing.T) {
	doc := parseDoc(t, para("Cover Terms: content"))
	InsertEvaluationNotice(doc)
	first := ooxml.Child(doc.Body(), "p")
	if got := ooxml.ParagraphText(first); got != EvaluationNotice {
		t.Fatalf("first paragraph = %q, want notice", got)
	}
}

func TestResolveLicense(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "docprep-license.xml")
	if err := os.WriteFile(valid, []byte(`<License><Data>ok</Data></License>`), 0644); err != nil {
		t.Fatal(err)
	}
	invalid := filepath.Join(dir, "broken.xml")
	if err := os.WriteFile(invalid, []byte(`<Other/>`), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		candidates []string
		wantPath   string
		wantOK     bool
	}{
		{"first valid wins", []string{valid, invalid}, valid, true},
		{"invalid skipped", []string{invalid, valid}, valid, true},
		{"missing skipped", []string{filepath.Join(dir, "absent.xml"), valid}, valid, true},
		{"empty candidate skipped", []string{"", valid}, valid, true},
		{"none found", []string{invalid, filepath.Join(dir, "absent.xml")}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := ResolveLicense(tt.candidates)
			if ok != tt.wantOK || path != tt.wantPath {
				t.Errorf("ResolveLicense = %q, %v; want %q, %v", path, ok, tt.wantPath, tt.wantOK)
			}
		})
	}
}

func writeDocx(t *testing.T, path, documentXML string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(docx.DocumentPart)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRunLicensed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "template.docx")
	writeDocx(t, target, docHeader+
		para("Standard Terms")+
		`<w:p/>`+
		tableWith(para("Company"))+
		docFooter)

	res, err := Run(context.Background(), target, true, DefaultRules())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Licensed {
		t.Error("result not licensed")
	}
	if res.SpacersRemoved != 1 {
		t.Errorf("spacers = %d, want 1", res.SpacersRemoved)
	}
	if res.Tables != 1 {
		t.Errorf("tables = %d, want 1", res.Tables)
	}

	pkg, err := docx.Open(target)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, err := pkg.Part(docx.DocumentPart)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte(EvaluationNotice)) {
		t.Error("licensed output carries evaluation notice")
	}
	if !bytes.Contains(data, []byte(`w:hRule="atLeast"`)) {
		t.Error("table row height not applied")
	}
}

func TestRunEvaluation(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "template.docx")
	writeDocx(t, target, docHeader+para("Cover Terms: content")+docFooter)

	res, err := Run(context.Background(), target, false, DefaultRules())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Licensed {
		t.Error("result reports licensed")
	}

	pkg, err := docx.Open(target)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, err := pkg.Part(docx.DocumentPart)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(EvaluationNotice)) {
		t.Error("evaluation notice missing from output")
	}
}

func TestRunIdempotentWhenLicensed(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "template.docx")
	writeDocx(t, target, docHeader+
		para("Standard Terms")+
		tableWith(para("Company"))+
		docFooter)

	if _, err := Run(context.Background(), target, true, DefaultRules()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Run(context.Background(), target, true, DefaultRules()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}

	firstDoc := readDocumentPart(t, first)
	secondDoc := readDocumentPart(t, second)
	if !bytes.Equal(firstDoc, secondDoc) {
		t.Error("second licensed run changed the document part")
	}
}

func readDocumentPart(t *testing.T, data []byte) []byte {
	t.Helper()
	pkg, err := docx.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	doc, err := pkg.Part(docx.DocumentPart)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}
