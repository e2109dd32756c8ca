package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/check-recon/internal/fields"
	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/pkg/anthropic"
)

// Batch pre-runs every extraction through the Message Batches API and
// then serves Extract calls from the collected results. Nightly lockbox
// sweeps of a few hundred checks run on batch pricing; the interactive
// path keeps using direct calls.
type Batch struct {
	client      anthropic.Client
	profile     fields.Profile
	model       string
	maxTokens   int64
	temperature float64
	system      []anthropic.SystemBlock
	sampleCount int

	mu       sync.Mutex
	outcomes map[sampleKey]sampleOutcome
}

type sampleKey struct {
	name   string
	sample int
}

type sampleOutcome struct {
	raw model.RawExtraction
	err error
}

// NewBatch creates a batch oracle for one sweep. Prefetch must complete
// before the consensus builder starts calling Extract.
func NewBatch(client anthropic.Client, profile fields.Profile, cfg Config, sampleCount int) *Batch {
	mdl := cfg.Model
	if mdl == "" {
		mdl = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if sampleCount < 1 {
		sampleCount = 1
	}

	return &Batch{
		client:      client,
		profile:     profile,
		model:       mdl,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		system:      anthropic.BuildCachedSystemBlocks(systemPrompt(profile)),
		sampleCount: sampleCount,
		outcomes:    make(map[sampleKey]sampleOutcome),
	}
}

// Prefetch submits one request per check per sample and blocks until the
// batch settles. Items the batch could not serve surface later as
// per-sample Extract errors, so one bad item never sinks the sweep.
func (b *Batch) Prefetch(ctx context.Context, imgs []model.CheckImage) error {
	if len(imgs) == 0 {
		return nil
	}

	log := zap.L().With(zap.Int("checks", len(imgs)), zap.Int("samples", b.sampleCount))

	items := make([]anthropic.BatchRequestItem, 0, len(imgs)*b.sampleCount)
	for i, img := range imgs {
		for n := 0; n < b.sampleCount; n++ {
			items = append(items, anthropic.BatchRequestItem{
				CustomID: batchCustomID(i, n),
				Params:   b.request(img),
			})
		}
	}

	// Warm the prompt cache so batch items read the system prompt
	// instead of each writing it.
	primerDone := make(chan struct{})
	go func() {
		defer close(primerDone)
		if _, err := anthropic.PrimerRequest(ctx, b.client, items[0].Params); err != nil {
			zap.L().Debug("primer request failed", zap.Error(err))
		}
	}()

	batchResp, err := b.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: items})
	<-primerDone
	if err != nil {
		return eris.Wrap(err, "oracle: create extraction batch")
	}
	batchID := batchResp.ID

	log.Info("extraction batch submitted",
		zap.String("batch_id", batchID),
		zap.Int("items", len(items)))

	batchResp, err = anthropic.PollBatch(ctx, b.client, batchID,
		anthropic.WithPollInterval(2*time.Second),
		anthropic.WithPollCap(15*time.Second),
		anthropic.WithPollTimeout(30*time.Minute),
	)
	if err != nil {
		return eris.Wrapf(err, "oracle: poll batch %s", batchID)
	}

	iter, err := b.client.GetBatchResults(ctx, batchID)
	if err != nil {
		return eris.Wrapf(err, "oracle: batch %s results", batchID)
	}
	defer iter.Close() //nolint:errcheck

	collected, err := anthropic.CollectBatchResultsDetailed(iter)
	if err != nil {
		return eris.Wrapf(err, "oracle: collect batch %s", batchID)
	}

	var usage anthropic.TokenUsage

	b.mu.Lock()
	for id, resp := range collected.Succeeded {
		checkIdx, sample, ok := parseBatchCustomID(id)
		if !ok || checkIdx >= len(imgs) {
			log.Warn("unknown custom_id in batch results", zap.String("custom_id", id))
			continue
		}

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		usage.CacheCreationInputTokens += resp.Usage.CacheCreationInputTokens
		usage.CacheReadInputTokens += resp.Usage.CacheReadInputTokens

		raw, parseErr := parseExtraction(responseText(resp), sample, b.profile)
		b.outcomes[sampleKey{name: imgs[checkIdx].Name, sample: sample}] = sampleOutcome{raw: raw, err: parseErr}
	}
	for _, f := range collected.Failures {
		checkIdx, sample, ok := parseBatchCustomID(f.CustomID)
		if !ok || checkIdx >= len(imgs) {
			continue
		}
		b.outcomes[sampleKey{name: imgs[checkIdx].Name, sample: sample}] = sampleOutcome{
			err: eris.Errorf("oracle: batch item %s %s", f.CustomID, f.Type),
		}
	}
	b.mu.Unlock()

	usage.LogCost(b.model, "extract-batch")

	log.Info("extraction batch complete",
		zap.String("batch_id", batchID),
		zap.Int64("succeeded", batchResp.RequestCounts.Succeeded),
		zap.Int64("errored", batchResp.RequestCounts.Errored))

	return nil
}

// Extract returns the prefetched read for one image sample.
func (b *Batch) Extract(_ context.Context, img model.CheckImage, sample int) (model.RawExtraction, error) {
	b.mu.Lock()
	out, ok := b.outcomes[sampleKey{name: img.Name, sample: sample}]
	b.mu.Unlock()

	if !ok {
		return model.RawExtraction{}, eris.Errorf("oracle: no batch result for %s sample %d", img.Name, sample)
	}
	if out.err != nil {
		return model.RawExtraction{}, out.err
	}
	return out.raw, nil
}

func (b *Batch) request(img model.CheckImage) anthropic.MessageRequest {
	temp := b.temperature
	return anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		System:      b.system,
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: userPrompt,
			Images: []anthropic.ImageBlock{{
				MediaType: img.MediaType,
				Data:      img.Data,
			}},
		}},
	}
}

func batchCustomID(check, sample int) string {
	return fmt.Sprintf("check:%d:sample:%d", check, sample)
}

func parseBatchCustomID(id string) (check, sample int, ok bool) {
	if _, err := fmt.Sscanf(id, "check:%d:sample:%d", &check, &sample); err != nil {
		return 0, 0, false
	}
	if check < 0 || sample < 0 {
		return 0, 0, false
	}
	return check, sample, true
}
