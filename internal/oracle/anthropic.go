package oracle

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/check-recon/internal/fields"
	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/resilience"
	"github.com/sells-group/check-recon/pkg/anthropic"
)

// Anthropic reads checks with Claude vision models through the Messages
// API. The consensus builder calls Extract once per sample.
type Anthropic struct {
	client      anthropic.Client
	profile     fields.Profile
	model       string
	maxTokens   int64
	temperature float64
	system      []anthropic.SystemBlock
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
}

// NewAnthropic creates an Anthropic-backed oracle.
func NewAnthropic(client anthropic.Client, profile fields.Profile, cfg Config, opts ...Option) *Anthropic {
	mdl := cfg.Model
	if mdl == "" {
		mdl = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	retry, breaker := buildOptions("anthropic", opts)

	return &Anthropic{
		client:      client,
		profile:     profile,
		model:       mdl,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		system:      anthropic.BuildCachedSystemBlocks(systemPrompt(profile)),
		retry:       retry,
		breaker:     breaker,
	}
}

// Extract reads one check image. Every call is an independent read; the
// sample index is only carried through to the result.
func (o *Anthropic) Extract(ctx context.Context, img model.CheckImage, sample int) (model.RawExtraction, error) {
	req := anthropic.MessageRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		System:      o.system,
		Temperature: &o.temperature,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: userPrompt,
			Images: []anthropic.ImageBlock{{
				MediaType: img.MediaType,
				Data:      img.Data,
			}},
		}},
	}

	resp, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, o.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return o.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return model.RawExtraction{}, eris.Wrapf(err, "oracle: extract %s sample %d", img.Name, sample)
	}

	resp.Usage.LogCost(resp.Model, "extract")

	raw, err := parseExtraction(responseText(resp), sample, o.profile)
	if err != nil {
		return model.RawExtraction{}, eris.Wrapf(err, "oracle: extract %s sample %d", img.Name, sample)
	}
	return raw, nil
}

// responseText concatenates the text blocks of a reply.
func responseText(resp *anthropic.MessageResponse) string {
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
