// Package consensus turns repeated oracle readings of one check image
// into a single stable CheckRecord by per-field plurality voting.
package consensus

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/normalize"
)

// DefaultSampleCount is how many times each image is read when the config
// does not say otherwise.
const DefaultSampleCount = 3

// ErrAllSamplesFailed reports that every oracle call for an image failed,
// so no record could be built at all.
var ErrAllSamplesFailed = eris.New("consensus: every extraction sample failed")

// Oracle reads one check image once. Implementations are called multiple
// times per image with distinct sample indexes and must be safe for
// concurrent use.
type Oracle interface {
	Extract(ctx context.Context, img model.CheckImage, sample int) (model.RawExtraction, error)
}

// Builder samples an Oracle a fixed number of times per image and
// aggregates the raw extractions field by field.
type Builder struct {
	oracle      Oracle
	sampleCount int
}

// NewBuilder returns a Builder that reads each image sampleCount times.
func NewBuilder(oracle Oracle, sampleCount int) (*Builder, error) {
	if oracle == nil {
		return nil, eris.New("consensus: oracle is required")
	}
	if sampleCount < 1 {
		return nil, eris.Errorf("consensus: sample count must be >= 1, got %d", sampleCount)
	}
	return &Builder{oracle: oracle, sampleCount: sampleCount}, nil
}

// Build runs all samples for one image, waits for every call to finish,
// and votes each field independently. Failed samples cast no votes but
// still count toward every agreement denominator, so a flaky oracle
// lowers confidence instead of hiding.
func (b *Builder) Build(ctx context.Context, img model.CheckImage) (model.CheckRecord, error) {
	samples := make([]*model.RawExtraction, b.sampleCount)
	sampleErrs := make([]error, b.sampleCount)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.sampleCount; i++ {
		g.Go(func() error {
			raw, err := b.oracle.Extract(gctx, img, i)
			if err != nil {
				sampleErrs[i] = err
				zap.L().Warn("consensus: sample failed",
					zap.String("image", img.Name),
					zap.Int("sample", i),
					zap.Error(err))
				return nil
			}
			raw.SampleIndex = i
			samples[i] = &raw
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, s := range samples {
		if s != nil {
			succeeded++
		}
	}
	if succeeded == 0 {
		var first error
		for _, err := range sampleErrs {
			if err != nil {
				first = err
				break
			}
		}
		return model.CheckRecord{}, eris.Wrapf(ErrAllSamplesFailed, "image %s: %v", img.Name, first)
	}

	rec := model.CheckRecord{
		Source:          img.Name,
		CheckNumber:     b.textField(samples, model.FieldCheckNumber),
		Amount:          b.amountField(samples),
		Date:            b.dateField(samples),
		Payee:           b.textField(samples, model.FieldPayee),
		Remitter:        b.textField(samples, model.FieldRemitter),
		RemitterAddress: b.textField(samples, model.FieldRemitterAddress),
		Memo:            b.textField(samples, model.FieldMemo),
		BankName:        b.textField(samples, model.FieldBankName),
	}
	rec.Confidence = confidence(&rec)

	zap.L().Debug("consensus: record built",
		zap.String("image", img.Name),
		zap.Int("samples_ok", succeeded),
		zap.Int("fields_resolved", rec.ResolvedCount()),
		zap.Float64("confidence", rec.Confidence))
	return rec, nil
}

// ballot is one sample's vote for a canonical field value.
type ballot struct {
	key    string
	sample int
}

// winner returns the plurality key and its vote count. Ties go to the
// value cast by the earliest sample.
func winner(ballots []ballot) (string, int) {
	counts := make(map[string]int, len(ballots))
	firstSeen := make(map[string]int, len(ballots))
	for _, bl := range ballots {
		counts[bl.key]++
		if _, seen := firstSeen[bl.key]; !seen {
			firstSeen[bl.key] = bl.sample
		}
	}

	bestKey, bestVotes := "", 0
	for key, n := range counts {
		if n > bestVotes || (n == bestVotes && firstSeen[key] < firstSeen[bestKey]) {
			bestKey, bestVotes = key, n
		}
	}
	return bestKey, bestVotes
}

// textField votes on the normalized form of a free-text field. Values
// that normalize to nothing cast no vote.
func (b *Builder) textField(samples []*model.RawExtraction, key model.FieldKey) model.Field {
	var ballots []ballot
	for i, s := range samples {
		if s == nil {
			continue
		}
		norm := normalize.Name(s.Value(key))
		if norm == "" {
			continue
		}
		ballots = append(ballots, ballot{key: norm, sample: i})
	}
	if len(ballots) == 0 {
		return model.Field{}
	}
	val, n := winner(ballots)
	return model.Field{
		Value:     val,
		Agreement: float64(n) / float64(b.sampleCount),
		Resolved:  true,
	}
}

// amountField votes on parsed cent values. Samples whose amount does not
// parse are excluded from the vote but still weigh on the denominator.
func (b *Builder) amountField(samples []*model.RawExtraction) model.MoneyField {
	var ballots []ballot
	cents := make(map[string]int64)
	for i, s := range samples {
		if s == nil {
			continue
		}
		raw := strings.TrimSpace(s.Amount)
		if raw == "" {
			continue
		}
		parsed, err := normalize.Amount(raw)
		if err != nil {
			zap.L().Debug("consensus: unparseable amount",
				zap.Int("sample", i), zap.String("value", raw))
			continue
		}
		key := strconv.FormatInt(parsed, 10)
		cents[key] = parsed
		ballots = append(ballots, ballot{key: key, sample: i})
	}
	if len(ballots) == 0 {
		return model.MoneyField{}
	}
	key, n := winner(ballots)
	return model.MoneyField{
		Cents:     cents[key],
		Agreement: float64(n) / float64(b.sampleCount),
		Resolved:  true,
	}
}

// dateField votes on parsed calendar days, so differently formatted
// readings of the same date agree with each other.
func (b *Builder) dateField(samples []*model.RawExtraction) model.DateField {
	var ballots []ballot
	dates := make(map[string]time.Time)
	for i, s := range samples {
		if s == nil {
			continue
		}
		raw := strings.TrimSpace(s.Date)
		if raw == "" {
			continue
		}
		parsed, err := normalize.Date(raw)
		if err != nil {
			zap.L().Debug("consensus: unparseable date",
				zap.Int("sample", i), zap.String("value", raw))
			continue
		}
		key := parsed.Format("2006-01-02")
		dates[key] = parsed
		ballots = append(ballots, ballot{key: key, sample: i})
	}
	if len(ballots) == 0 {
		return model.DateField{}
	}
	key, n := winner(ballots)
	return model.DateField{
		Date:      dates[key],
		Agreement: float64(n) / float64(b.sampleCount),
		Resolved:  true,
	}
}

// confidence is the mean agreement across all eight fields. Unresolved
// fields hold agreement zero, so missing data drags confidence down.
func confidence(rec *model.CheckRecord) float64 {
	agreements := [...]float64{
		rec.CheckNumber.Agreement,
		rec.Amount.Agreement,
		rec.Date.Agreement,
		rec.Payee.Agreement,
		rec.Remitter.Agreement,
		rec.RemitterAddress.Agreement,
		rec.Memo.Agreement,
		rec.BankName.Agreement,
	}
	var sum float64
	for _, a := range agreements {
		sum += a
	}
	return sum / float64(len(agreements))
}
