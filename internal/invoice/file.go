package invoice

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
)

// FileSource reads invoices from a local JSON fixture, for offline runs and
// tests. The file holds an array of invoice records.
type FileSource struct {
	path string
}

// NewFileSource builds a source over a JSON file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// List loads and decodes the fixture.
func (s *FileSource) List(ctx context.Context) ([]model.InvoiceRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "invoice: read %s", s.path)
	}

	var invoices []model.InvoiceRecord
	if err := json.Unmarshal(data, &invoices); err != nil {
		return nil, eris.Wrapf(err, "invoice: decode %s", s.path)
	}

	zap.L().Info("invoice: loaded invoice fixture",
		zap.String("path", s.path),
		zap.Int("count", len(invoices)))
	return invoices, nil
}
