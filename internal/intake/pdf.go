package intake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
)

// extractPDFImages expands a scanned-check PDF into its embedded images.
// Lockbox bundles put one check per page, so each extracted image is its own
// check scan. Names follow "<sourceName>#<nn>.<ext>" so a bundled scan stays
// traceable to the PDF it came from.
func extractPDFImages(path, sourceName string) ([]model.CheckImage, error) {
	tmpDir, err := os.MkdirTemp("", "check-recon-pdf-")
	if err != nil {
		return nil, eris.Wrap(err, "intake: create pdf extraction dir")
	}
	defer os.RemoveAll(tmpDir) //nolint:errcheck

	if err := api.ExtractImagesFile(path, tmpDir, nil, pdfmodel.NewDefaultConfiguration()); err != nil {
		return nil, eris.Wrapf(err, "intake: extract images from %s", sourceName)
	}

	extracted, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, eris.Wrap(err, "intake: read pdf extraction dir")
	}

	var imgs []model.CheckImage
	for _, entry := range extracted {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		mediaType := mediaTypeFor(ext)
		if mediaType == "" {
			// pdfcpu can emit TIFF or raw streams the oracle cannot read.
			zap.L().Debug("intake: ignoring extracted object",
				zap.String("pdf", sourceName),
				zap.String("object", entry.Name()))
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, entry.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "intake: read extracted image %s", entry.Name())
		}
		imgs = append(imgs, model.CheckImage{
			Name:      fmt.Sprintf("%s#%02d%s", sourceName, len(imgs)+1, ext),
			MediaType: mediaType,
			Data:      data,
		})
	}

	zap.L().Debug("intake: expanded pdf",
		zap.String("pdf", sourceName),
		zap.Int("images", len(imgs)))
	return imgs, nil
}
