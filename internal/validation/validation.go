// Package validation provides input validation and sanitization functions
// to prevent common security vulnerabilities like path traversal, injection
// attacks, and resource exhaustion.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// Security limits to prevent DoS attacks (CWE-400).
const (
	// MaxFileSize is the maximum allowed file size (256 MB).
	MaxFileSize = 256 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
)

// SanitizePath validates and sanitizes a user-supplied path to prevent path
// traversal attacks. It ensures the path does not escape the provided base
// directory. Returns the cleaned path relative to the base directory, or an
// error if invalid.
func SanitizePath(baseDir, userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if len(userPath) > MaxPathLength {
		return "", ErrPathTooLong
	}

	// Clean the path to remove redundant separators and resolve . and ..
	cleanPath := filepath.Clean(userPath)

	if strings.Contains(cleanPath, "..") {
		return "", ErrPathTraversal
	}

	// Reject absolute paths (should be relative to baseDir)
	if filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}

	// Build full path and verify it's within baseDir
	fullPath := filepath.Join(baseDir, cleanPath)
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return "", ErrPathTraversal
	}

	return cleanPath, nil
}

// ValidateFilename checks if a filename is safe and does not contain
// malicious characters. It rejects filenames with path separators, control
// characters, and dangerous patterns.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}

	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}

	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}

	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}

	// Null bytes are a common injection vector
	if strings.Contains(filename, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidFilename)
	}

	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}

	// Leading hyphens can be confused with command flags
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}

	return nil
}

// IsPathSafe checks if a path is safe by validating it against common attack
// patterns. This is a convenience wrapper around SanitizePath that returns a
// boolean.
func IsPathSafe(baseDir, userPath string) bool {
	_, err := SanitizePath(baseDir, userPath)
	return err == nil
}

// ValidatePath performs comprehensive path validation without requiring a
// base directory. It checks for dangerous patterns, length limits, and
// invalid characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// FileType represents a validated file type.
type FileType string

const (
	// Document packages
	FileTypeDocx FileType = "docx"
	FileTypeZip  FileType = "zip"

	// Backup archive formats
	FileTypeTarXZ FileType = "tar.xz"
	FileTypeTar   FileType = "tar"
	FileTypeXZ    FileType = "xz"

	// Text formats
	FileTypeXML  FileType = "xml"
	FileTypeJSON FileType = "json"
	FileTypeText FileType = "text"

	// Unknown
	FileTypeUnknown FileType = "unknown"
)

// zipMagic is the local-file-header signature every DOCX package starts with.
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// magicBytes defines magic byte signatures for file type detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeTar, []byte("ustar"), 257}, // POSIX tar
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FileTypeZip, zipMagic, 0},
}

// IsZipHeader reports whether data begins with the zip local-file-header
// magic used by DOCX packages.
func IsZipHeader(data []byte) bool {
	return len(data) >= len(zipMagic) && bytes.Equal(data[:len(zipMagic)], zipMagic)
}

// ValidateFileType validates that a file's content matches its claimed type
// based on filename extension. It reads the file's magic bytes to verify the
// actual file type. Returns the detected file type or an error if the file
// type doesn't match expectations.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	// Read enough for magic detection (tar ustar sits at offset 257)
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	detectedType := detectFileTypeFromMagic(buf)
	expectedType := detectFileTypeFromExtension(filename)

	// A DOCX package is a zip archive underneath; likewise .tar.xz is xz
	// over tar, undetectable until decompressed.
	if expectedType == FileTypeDocx && detectedType == FileTypeZip {
		return FileTypeDocx, nil
	}
	if expectedType == FileTypeTarXZ && detectedType == FileTypeXZ {
		return FileTypeTarXZ, nil
	}

	if detectedType == expectedType {
		return detectedType, nil
	}

	// XML/JSON/text are hard to distinguish by magic bytes; accept them
	// when the content at least looks like text.
	if detectedType == FileTypeUnknown && (expectedType == FileTypeXML || expectedType == FileTypeJSON || expectedType == FileTypeText) {
		if isLikelyText(buf) {
			return expectedType, nil
		}
	}

	if detectedType != FileTypeUnknown && expectedType != FileTypeUnknown {
		return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expectedType, detectedType)
	}

	if detectedType == FileTypeUnknown {
		return expectedType, nil
	}

	return detectedType, nil
}

// detectFileTypeFromMagic detects file type from magic bytes.
func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) {
			if bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
				return sig.fileType
			}
		}
	}
	return FileTypeUnknown
}

// detectFileTypeFromExtension determines expected file type from filename
// extension.
func detectFileTypeFromExtension(filename string) FileType {
	lower := strings.ToLower(filename)

	// Multi-extension formats first
	if strings.HasSuffix(lower, ".tar.xz") {
		return FileTypeTarXZ
	}

	switch filepath.Ext(lower) {
	case ".docx":
		return FileTypeDocx
	case ".zip":
		return FileTypeZip
	case ".tar":
		return FileTypeTar
	case ".xz":
		return FileTypeXZ
	case ".xml", ".lic":
		return FileTypeXML
	case ".json":
		return FileTypeJSON
	case ".txt", ".md", ".yaml", ".yml":
		return FileTypeText
	default:
		return FileTypeUnknown
	}
}

// isLikelyText checks if the buffer contains likely text content.
// Returns true if the buffer appears to be text (UTF-8, ASCII).
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}

	// Null bytes are a strong indicator of binary content
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	printable := 0
	control := 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
		// UTF-8 continuation and start bytes are neutral
	}

	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
