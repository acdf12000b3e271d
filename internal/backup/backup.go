// Package backup bundles style targets into a tar.xz archive before
// the styling pass rewrites them in place.
package backup

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/openagreements/docprep/core/errors"
	"github.com/openagreements/docprep/internal/logging"
)

// Create bundles the given target files into
// <workspaceDir>/backups/style-<timestamp>.tar.xz and returns the
// bundle path. Entry names are the slash-form relative target paths.
// Targets that do not exist yet are skipped; an empty bundle is still
// written so every styling run has a backup record.
func Create(workspaceDir string, targets []string) (string, error) {
	dir := filepath.Join(workspaceDir, "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.NewIO("create backup directory", dir, err)
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	path := filepath.Join(dir, "style-"+stamp+".tar.xz")

	out, err := os.Create(path)
	if err != nil {
		return "", errors.NewIO("create backup", path, err)
	}
	defer out.Close()

	xw, err := xz.NewWriter(out)
	if err != nil {
		return "", errors.Wrap(err, "create xz writer")
	}
	tw := tar.NewWriter(xw)

	for _, target := range targets {
		if err := addFile(tw, target); err != nil {
			tw.Close()
			xw.Close()
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", errors.Wrap(err, "close tar writer")
	}
	if err := xw.Close(); err != nil {
		return "", errors.Wrap(err, "close xz writer")
	}
	if err := out.Close(); err != nil {
		return "", errors.NewIO("close backup", path, err)
	}

	logging.Info("backup_created", "path", path, "targets", len(targets))
	return path, nil
}

func addFile(tw *tar.Writer, target string) error {
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn("backup_target_missing", "path", target)
			return nil
		}
		return errors.NewIO("stat backup target", target, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return errors.Wrap(err, "build tar header")
	}
	header.Name = filepath.ToSlash(target)

	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrap(err, "write tar header")
	}

	file, err := os.Open(target)
	if err != nil {
		return errors.NewIO("open backup target", target, err)
	}
	defer file.Close()

	if _, err := io.Copy(tw, file); err != nil {
		return errors.NewIO("archive backup target", target, err)
	}
	return nil
}
