package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/openagreements/docprep/core/docx"
	"github.com/openagreements/docprep/internal/logging"
)

func writeDocx(t *testing.T, path string, documentXML string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create(docx.DocumentPart)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := f.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write docx: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logging.Level
	}{
		{"debug", logging.LevelDebug},
		{"DEBUG", logging.LevelDebug},
		{"info", logging.LevelInfo},
		{"warn", logging.LevelWarn},
		{"warning", logging.LevelWarn},
		{"error", logging.LevelError},
		{"", logging.LevelInfo},
		{"bogus", logging.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want logging.Format
	}{
		{"json", logging.FormatJSON},
		{"JSON", logging.FormatJSON},
		{"text", logging.FormatText},
		{"", logging.FormatText},
	}
	for _, tt := range tests {
		if got := parseFormat(tt.in); got != tt.want {
			t.Errorf("parseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTagPattern(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Company: {customer_name}", []string{"{customer_name}"}},
		{"{party_1_name} and {party_2_name}", []string{"{party_1_name}", "{party_2_name}"}},
		{"no tags here", nil},
		{"{Bad_Tag}", nil},
		{"{2bad}", nil},
		{"literal braces {} stay", nil},
	}
	for _, tt := range tests {
		got := tagPattern.FindAllString(tt.text, -1)
		if len(got) != len(tt.want) {
			t.Errorf("FindAllString(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("FindAllString(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func TestInspectCmd_Run(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.docx")
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>Purpose: {purpose}</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Between {party_1_name} and {party_2_name}</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	writeDocx(t, path, doc)

	cmd := &InspectCmd{Path: path}
	if err := cmd.Run(); err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestInspectCmd_RunMissingFile(t *testing.T) {
	cmd := &InspectCmd{Path: filepath.Join(t.TempDir(), "absent.docx")}
	if err := cmd.Run(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigInitCmd_Run(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docprep.yaml")

	oldConfig := CLI.Config
	CLI.Config = path
	defer func() { CLI.Config = oldConfig }()

	cmd := &ConfigInitCmd{}
	if err := cmd.Run(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("example config not written: %v", err)
	}

	// Refuses to clobber an existing file.
	if err := cmd.Run(); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestVersionCmd_Run(t *testing.T) {
	cmd := &VersionCmd{}
	if err := cmd.Run(); err != nil {
		t.Fatalf("version: %v", err)
	}
}
