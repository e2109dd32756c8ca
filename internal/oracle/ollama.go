package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/check-recon/internal/fields"
	"github.com/sells-group/check-recon/internal/model"
	"github.com/sells-group/check-recon/internal/resilience"
)

const (
	defaultOllamaHost  = "http://127.0.0.1:11434"
	defaultOllamaModel = "llama3.2-vision:11b"

	// ollamaTimeout bounds one generate call. Local vision inference on
	// modest hardware can take over a minute per image.
	ollamaTimeout = 5 * time.Minute
)

// Ollama reads checks with a locally hosted vision model through the
// Ollama generate API.
type Ollama struct {
	endpoint    string
	model       string
	temperature float64
	profile     fields.Profile
	httpClient  *http.Client
	limiter     *rate.Limiter
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
}

// NewOllama creates an Ollama-backed oracle.
func NewOllama(profile fields.Profile, cfg Config, opts ...Option) *Ollama {
	host := cfg.OllamaHost
	if host == "" {
		host = defaultOllamaHost
	}
	mdl := cfg.Model
	if mdl == "" {
		mdl = defaultOllamaModel
	}

	retry, breaker := buildOptions("ollama", opts)

	return &Ollama{
		endpoint:    strings.TrimRight(host, "/") + "/api/generate",
		model:       mdl,
		temperature: cfg.Temperature,
		profile:     profile,
		httpClient:  &http.Client{Timeout: ollamaTimeout},
		// Concurrent samples queue behind a single local GPU; pace them.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		retry:   retry,
		breaker: breaker,
	}
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Images  []string      `json:"images"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Extract reads one check image through the local model.
func (o *Ollama) Extract(ctx context.Context, img model.CheckImage, sample int) (model.RawExtraction, error) {
	raw, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (model.RawExtraction, error) {
		return resilience.ExecuteVal(ctx, o.breaker, func(ctx context.Context) (model.RawExtraction, error) {
			return o.generate(ctx, img, sample)
		})
	})
	if err != nil {
		return model.RawExtraction{}, eris.Wrapf(err, "oracle: extract %s sample %d", img.Name, sample)
	}
	return raw, nil
}

func (o *Ollama) generate(ctx context.Context, img model.CheckImage, sample int) (model.RawExtraction, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return model.RawExtraction{}, eris.Wrap(err, "oracle: ollama rate limit")
	}

	reqBody := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  systemPrompt(o.profile) + "\n\n" + userPrompt,
		Images:  []string{base64.StdEncoding.EncodeToString(img.Data)},
		Options: ollamaOptions{Temperature: o.temperature},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return model.RawExtraction{}, eris.Wrap(err, "oracle: marshal ollama request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return model.RawExtraction{}, eris.Wrap(err, "oracle: create ollama request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return model.RawExtraction{}, eris.Wrap(err, "oracle: ollama call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.RawExtraction{}, eris.Wrap(err, "oracle: read ollama response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := eris.Errorf("oracle: ollama returned %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return model.RawExtraction{}, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return model.RawExtraction{}, apiErr
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return model.RawExtraction{}, eris.Wrap(err, "oracle: unmarshal ollama response")
	}

	return parseExtraction(genResp.Response, sample, o.profile)
}
