// Package docx reads and writes DOCX packages. A .docx file is a zip
// archive of XML parts; the package keeps every entry in original order
// so untouched parts round-trip byte-for-byte.
package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/openagreements/docprep/core/errors"
	"github.com/openagreements/docprep/internal/validation"
)

// DocumentPart is the main document part every valid package must carry.
const DocumentPart = "word/document.xml"

// Part is one named entry of the package.
type Part struct {
	Name string
	Data []byte
}

// Package is an in-memory DOCX package: an ordered list of parts plus an
// index by name.
type Package struct {
	parts []*Part
	index map[string]*Part
}

// Open reads a DOCX package from disk. A missing file surfaces as
// errors.ErrNotFound; a file without the zip magic or without
// word/document.xml is rejected.
func Open(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "source document", ID: path, Err: err}
		}
		return nil, errors.NewIO("open", path, err)
	}
	defer f.Close()

	if _, err := validation.ValidateFileType(f, filepath.Base(path)); err != nil {
		return nil, &errors.PackageError{Path: path, Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.NewIO("seek", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.NewIO("stat", path, err)
	}

	pkg, err := Read(f, info.Size())
	if err != nil {
		return nil, &errors.PackageError{Path: path, Err: err}
	}
	return pkg, nil
}

// Read loads a DOCX package from a reader. Every entry is read into
// memory; the package rejects archives missing word/document.xml.
func Read(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "reading zip archive")
	}

	pkg := &Package{index: make(map[string]*Part)}
	for _, file := range zr.File {
		rc, err := file.Open()
		if err != nil {
			return nil, errors.NewIO("open entry", file.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.NewIO("read entry", file.Name, err)
		}
		part := &Part{Name: file.Name, Data: data}
		pkg.parts = append(pkg.parts, part)
		pkg.index[file.Name] = part
	}

	if _, ok := pkg.index[DocumentPart]; !ok {
		return nil, errors.Wrap(errors.ErrMissingPart, DocumentPart)
	}
	return pkg, nil
}

// Part returns the data of the named part, or ErrMissingPart.
func (p *Package) Part(name string) ([]byte, error) {
	part, ok := p.index[name]
	if !ok {
		return nil, errors.Wrap(errors.ErrMissingPart, name)
	}
	return part.Data, nil
}

// HasPart reports whether the named part exists.
func (p *Package) HasPart(name string) bool {
	_, ok := p.index[name]
	return ok
}

// SetPart replaces the data of an existing part or appends a new one at
// the end of the entry order.
func (p *Package) SetPart(name string, data []byte) {
	if part, ok := p.index[name]; ok {
		part.Data = data
		return
	}
	part := &Part{Name: name, Data: data}
	p.parts = append(p.parts, part)
	p.index[name] = part
}

// Parts returns the part names in original archive order.
func (p *Package) Parts() []string {
	names := make([]string, len(p.parts))
	for i, part := range p.parts {
		names[i] = part.Name
	}
	return names
}

// Save writes the package to path with deflate compression, creating
// parent directories as needed. The archive is assembled in a temp file
// in the destination directory and renamed into place, so an in-place
// save never truncates the source on failure.
func (p *Package) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIO("create directory", dir, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range p.parts {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   part.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			zw.Close()
			return errors.NewIO("write entry", part.Name, err)
		}
		if _, err := w.Write(part.Data); err != nil {
			zw.Close()
			return errors.NewIO("write entry", part.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.NewIO("finalize archive", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".docx-*")
	if err != nil {
		return errors.NewIO("create temp file", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}
