// Package intake loads check scans from local directories, PDF bundles, and
// FTP lockbox drops.
package intake

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
)

// mediaTypeFor maps a scan file extension to its MIME type. Returns "" for
// anything the oracle cannot read.
func mediaTypeFor(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return ""
	}
}

// isScanFile reports whether the name looks like a check scan we can ingest.
func isScanFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".pdf" || mediaTypeFor(ext) != ""
}

// FromFile loads a single check scan. A PDF expands to every embedded scan
// image. Unlike FromDir, a file that cannot be read is an error, since the
// caller named it explicitly.
func FromFile(path string) ([]model.CheckImage, error) {
	name := filepath.Base(path)
	if !isScanFile(name) {
		return nil, eris.Errorf("intake: unsupported scan type %q", filepath.Ext(name))
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return extractPDFImages(path, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: read file %s", path)
	}
	return []model.CheckImage{{
		Name:      name,
		MediaType: mediaTypeFor(filepath.Ext(name)),
		Data:      data,
	}}, nil
}

// FromDir loads every check scan in a directory: PNG and JPEG files are read
// directly, PDF files are expanded into their embedded scan images. A file
// that cannot be read or parsed is skipped with a warning so one bad scan
// never sinks the batch. Entries come back in file-name order.
func FromDir(dir string) ([]model.CheckImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: read dir %s", dir)
	}

	var imgs []model.CheckImage
	for _, entry := range entries {
		if entry.IsDir() || !isScanFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			pdfImgs, err := extractPDFImages(path, entry.Name())
			if err != nil {
				zap.L().Warn("intake: skipping unreadable pdf",
					zap.String("path", path),
					zap.Error(err))
				continue
			}
			imgs = append(imgs, pdfImgs...)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			zap.L().Warn("intake: skipping unreadable file",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		imgs = append(imgs, model.CheckImage{
			Name:      entry.Name(),
			MediaType: mediaTypeFor(filepath.Ext(entry.Name())),
			Data:      data,
		})
	}

	zap.L().Info("intake: scanned directory",
		zap.String("dir", dir),
		zap.Int("images", len(imgs)))
	return imgs, nil
}
