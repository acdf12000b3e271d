// Package manifest maintains the provenance manifest for generated
// templates: which runs produced which artifacts, and the hashes of
// every source and output file involved.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/openagreements/docprep/core/errors"
)

// Version is the current manifest format version.
const Version = "1.0.0"

// Artifact kinds.
const (
	KindPrepared = "prepared"
	KindStyled   = "styled"
)

// ToolInfo describes the tool that wrote the manifest.
type ToolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Hashes holds both digests of one file's bytes, hex encoded.
type Hashes struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3,omitempty"`
}

// Artifact records one generated or styled template.
type Artifact struct {
	Name         string `json:"name"`
	Kind         string `json:"kind"`
	SourcePath   string `json:"source_path,omitempty"`
	SourceHashes Hashes `json:"source_hashes,omitempty"`
	OutputPath   string `json:"output_path"`
	OutputHashes Hashes `json:"output_hashes"`
	Replacements int    `json:"replacements,omitempty"`
	TagsInserted int    `json:"tags_inserted,omitempty"`
	UpdatedAt    string `json:"updated_at"`
}

// Run is one ledger entry: a single CLI invocation and the artifacts it
// touched.
type Run struct {
	ID          string   `json:"id"`
	Command     string   `json:"command"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at"`
	Artifacts   []string `json:"artifacts,omitempty"`
}

// Manifest is the provenance document (templates/provenance.json).
type Manifest struct {
	ManifestVersion string               `json:"manifest_version"`
	Tool            ToolInfo             `json:"tool"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at"`
	Runs            map[string]*Run      `json:"runs"`
	Artifacts       map[string]*Artifact `json:"artifacts"`
}

// New creates an empty manifest.
func New(tool ToolInfo) *Manifest {
	now := timestamp()
	return &Manifest{
		ManifestVersion: Version,
		Tool:            tool,
		CreatedAt:       now,
		UpdatedAt:       now,
		Runs:            make(map[string]*Run),
		Artifacts:       make(map[string]*Artifact),
	}
}

// Load reads the manifest at path, returning a fresh manifest when the
// file does not exist yet.
func Load(path string, tool ToolInfo) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(tool), nil
		}
		return nil, errors.NewIO("read manifest", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &errors.ParseError{Format: "JSON", Path: path, Message: err.Error(), Err: err}
	}
	if m.Runs == nil {
		m.Runs = make(map[string]*Run)
	}
	if m.Artifacts == nil {
		m.Artifacts = make(map[string]*Artifact)
	}
	m.Tool = tool
	return &m, nil
}

// Save writes the manifest atomically: temp file in the destination
// directory, then rename.
func (m *Manifest) Save(path string) error {
	m.UpdatedAt = timestamp()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create directory", dir, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".provenance-*.json")
	if err != nil {
		return errors.NewIO("create temp file", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIO("write manifest", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIO("close manifest", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIO("rename manifest", path, err)
	}
	return nil
}

// NewRunID returns a fresh run identifier, shared between the run
// ledger and the logging context.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun appends a ledger entry for one command invocation and
// returns it. An empty id gets a fresh one.
func (m *Manifest) RecordRun(id, command string, started, completed time.Time, artifacts []string) *Run {
	if id == "" {
		id = NewRunID()
	}
	run := &Run{
		ID:          id,
		Command:     command,
		StartedAt:   started.UTC().Format(time.RFC3339),
		CompletedAt: completed.UTC().Format(time.RFC3339),
		Artifacts:   artifacts,
	}
	m.Runs[run.ID] = run
	return run
}

// UpsertArtifact adds or replaces the artifact record keyed by name.
func (m *Manifest) UpsertArtifact(a Artifact) *Artifact {
	a.UpdatedAt = timestamp()
	stored := a
	m.Artifacts[a.Name] = &stored
	return &stored
}

// VerifyReport summarizes a VerifyOutputs pass.
type VerifyReport struct {
	Matched    []string
	Mismatched []string
	Missing    []string
}

// OK reports whether every artifact's output file was found with
// matching hashes.
func (r *VerifyReport) OK() bool {
	return len(r.Mismatched) == 0 && len(r.Missing) == 0
}

// VerifyOutputs re-hashes each artifact's output file, resolving
// relative paths against dir, and reports matches, mismatches, and
// missing files.
func (m *Manifest) VerifyOutputs(dir string) (*VerifyReport, error) {
	report := &VerifyReport{}
	for name, a := range m.Artifacts {
		path := a.OutputPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			report.Missing = append(report.Missing, name)
			continue
		}
		hashes, err := HashFile(path)
		if err != nil {
			return nil, err
		}
		if hashes.SHA256 != a.OutputHashes.SHA256 || hashes.BLAKE3 != a.OutputHashes.BLAKE3 {
			report.Mismatched = append(report.Mismatched, name)
			continue
		}
		report.Matched = append(report.Matched, name)
	}
	return report, nil
}

// HashFile returns the SHA-256 and BLAKE3 digests of the file's bytes.
func HashFile(path string) (Hashes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Hashes{}, errors.NewIO("read file", path, err)
	}
	return HashBytes(data), nil
}

// HashBytes returns both digests of data.
func HashBytes(data []byte) Hashes {
	sum := sha256.Sum256(data)
	b3 := blake3.Sum256(data)
	return Hashes{
		SHA256: hex.EncodeToString(sum[:]),
		BLAKE3: hex.EncodeToString(b3[:]),
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
