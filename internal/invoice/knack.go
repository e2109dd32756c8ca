package invoice

import (
	"context"
	"math"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/normalize"
	"github.com/sells-group/check-recon/pkg/knack"
)

// htmlTagRE strips the markup Knack wraps connection display values in,
// e.g. `<span class="...">Dixie Nespor</span>`.
var htmlTagRE = regexp.MustCompile(`<[^>]+>`)

// KnackSource lists open billings from a Knack application.
type KnackSource struct {
	client knack.Client
	object string
	fields KnackFields
	filter *knack.Filter
}

// NewKnackSource builds a source over an existing Knack client.
func NewKnackSource(client knack.Client, cfg KnackConfig) *KnackSource {
	object := cfg.BillingObject
	if object == "" {
		object = DefaultConfig().Knack.BillingObject
	}
	fields := cfg.Fields
	if fields == (KnackFields{}) {
		fields = DefaultConfig().Knack.Fields
	}
	rules := cfg.Filters
	if len(rules) == 0 {
		rules = DefaultKnackFilters()
	}
	return &KnackSource{
		client: client,
		object: object,
		fields: fields,
		filter: &knack.Filter{Match: knack.MatchAnd, Rules: rules},
	}
}

// List fetches the open billing records and maps them into invoice records.
// A record that cannot be mapped is skipped with a warning so one malformed
// billing never sinks the run.
func (s *KnackSource) List(ctx context.Context) ([]model.InvoiceRecord, error) {
	records, err := s.client.GetRecords(ctx, s.object, s.filter)
	if err != nil {
		return nil, eris.Wrapf(err, "invoice: list %s billings", s.object)
	}

	invoices := make([]model.InvoiceRecord, 0, len(records))
	for _, rec := range records {
		inv, err := s.mapRecord(rec)
		if err != nil {
			zap.L().Warn("invoice: skipping malformed billing record",
				zap.String("record_id", rec.ID()),
				zap.String("invoice_number", rec.String(s.fields.InvoiceNumber)),
				zap.Error(err))
			continue
		}
		invoices = append(invoices, inv)
	}

	zap.L().Info("invoice: listed knack billings",
		zap.String("object", s.object),
		zap.Int("fetched", len(records)),
		zap.Int("usable", len(invoices)))
	return invoices, nil
}

func (s *KnackSource) mapRecord(rec knack.Record) (model.InvoiceRecord, error) {
	id := rec.ID()
	if id == "" {
		return model.InvoiceRecord{}, eris.New("invoice: billing record has no id")
	}

	cents, err := s.amountCents(rec)
	if err != nil {
		return model.InvoiceRecord{}, err
	}

	rawPayee := rec.String(s.fields.Payee)
	payee := htmlTagRE.ReplaceAllString(rawPayee, "")

	// Connection fields deliver their linked records in the raw variant;
	// the first link's identifier is the resident the billing belongs to.
	resident := ""
	var links []struct {
		Identifier string `json:"identifier"`
	}
	if err := rec.Decode(s.fields.Payee+"_raw", &links); err == nil && len(links) > 0 {
		resident = links[0].Identifier
	}

	// An unparseable date is dropped rather than fatal; the field scorer
	// treats a zero date as missing.
	var date time.Time
	if str := s.dateString(rec); str != "" {
		if d, err := normalize.Date(str); err == nil {
			date = d
		} else {
			zap.L().Debug("invoice: unparseable billing date",
				zap.String("record_id", id),
				zap.String("date", str))
		}
	}

	return model.InvoiceRecord{
		RecordID:      id,
		InvoiceNumber: rec.String(s.fields.InvoiceNumber),
		AmountCents:   cents,
		Date:          date,
		Payee:         payee,
		ResidentName:  resident,
		RawPayee:      rawPayee,
	}, nil
}

// amountCents reads the billing total. The raw variant is a plain JSON
// number; display variants come formatted ("$1,025.00") and are parsed as a
// fallback.
func (s *KnackSource) amountCents(rec knack.Record) (int64, error) {
	var f float64
	if err := rec.Decode(s.fields.Amount+"_raw", &f); err == nil {
		return int64(math.Round(f * 100)), nil
	}
	for _, field := range []string{s.fields.Amount + "_raw", s.fields.Amount} {
		if v := rec.String(field); v != "" {
			if cents, err := normalize.Amount(v); err == nil {
				return cents, nil
			}
		}
	}
	return 0, eris.Errorf("invoice: no usable amount in %s", s.fields.Amount)
}

// dateString prefers the display field and falls back to the raw variant's
// date component.
func (s *KnackSource) dateString(rec knack.Record) string {
	if str := rec.String(s.fields.Date); str != "" {
		return str
	}
	var raw struct {
		Date string `json:"date"`
	}
	if err := rec.Decode(s.fields.Date+"_raw", &raw); err == nil {
		return raw.Date
	}
	return ""
}
