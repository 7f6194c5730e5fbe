package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/pkg/anthropic"
)

// Claude implements Oracle on the Anthropic Messages API.
type Claude struct {
	client      anthropic.Client
	model       string
	visionModel string
	maxTokens   int64
	limiter     *rate.Limiter
	backoff     resilience.Backoff
	breaker     *resilience.CircuitBreaker
}

var _ Oracle = (*Claude)(nil)

// NewClaude builds a Claude oracle from the anthropic config section.
func NewClaude(client anthropic.Client, cfg config.AnthropicConfig) *Claude {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}

	b := resilience.BackoffFromConfig(cfg.RetryAttempts, cfg.RetryBackoffMs)
	b.OnRetry = resilience.RetryLogger("anthropic", "create_message")

	return &Claude{
		client:      client,
		model:       cfg.Model,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		backoff:     b,
		breaker:     resilience.NewCircuitBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerResetSecs)*time.Second),
	}
}

// call sends one JSON-only prompt and decodes the answer into out.
func (c *Claude) call(ctx context.Context, op, modelID, prompt string, images []string, out any) error {
	req := anthropic.MessageRequest{
		Model:     modelID,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt, Images: images}},
	}

	resp, err := resilience.BreakerVal(ctx, c.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, c.backoff, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "oracle: rate limit wait")
			}
			return c.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return eris.Wrapf(err, "oracle: %s", op)
	}
	resp.Usage.LogCost(modelID, op)

	text := cleanJSON(resp.Text())
	if text == "" {
		return eris.Errorf("oracle: %s: empty response", op)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		zap.L().Debug("oracle: unparseable response", zap.String("operation", op), zap.String("text", text))
		return eris.Wrapf(err, "oracle: %s: parse response", op)
	}
	return nil
}

func (c *Claude) CompareImages(ctx context.Context, referenceImage, candidateImage string) (*CompareResult, error) {
	if referenceImage == "" || candidateImage == "" {
		return nil, eris.New("oracle: compare_images: missing image")
	}
	var out CompareResult
	if err := c.call(ctx, "compare_images", c.visionModel, compareImagesPrompt,
		[]string{referenceImage, candidateImage}, &out); err != nil {
		return nil, err
	}
	out.Confidence = clampScore(out.Confidence)
	return &out, nil
}

func (c *Claude) CompareAttributes(ctx context.Context, vision model.VisionResult, pageText string) (*CompareResult, error) {
	prompt := fmt.Sprintf(compareAttributesPrompt, describeVision(vision), Window(pageText, ExcerptWindow))
	var out CompareResult
	if err := c.call(ctx, "compare_attributes", c.model, prompt, nil, &out); err != nil {
		return nil, err
	}
	out.Confidence = clampScore(out.Confidence)
	return &out, nil
}

func (c *Claude) ExtractRecord(ctx context.Context, req RecordRequest) (*RecordExtraction, error) {
	hint := ""
	if req.NameHint != "" {
		hint = fmt.Sprintf(" The product is expected to be %q.", req.NameHint)
	}
	prompt := fmt.Sprintf(extractRecordPrompt, req.URL, hint, Window(req.Content, RecordWindow))

	var out RecordExtraction
	if err := c.call(ctx, "extract_record", c.model, prompt, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Claude) ExtractField(ctx context.Context, content, field string) (*FieldExtraction, error) {
	prompt := fmt.Sprintf(extractFieldPrompt, field, Window(content, RecordWindow))
	var out FieldExtraction
	if err := c.call(ctx, "extract_field", c.model, prompt, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Claude) ExtractClaims(ctx context.Context, text string) ([]Claim, error) {
	prompt := fmt.Sprintf(extractClaimsPrompt, Window(text, ClaimWindow))
	var out struct {
		Claims []Claim `json:"claims"`
	}
	if err := c.call(ctx, "extract_claims", c.model, prompt, nil, &out); err != nil {
		return nil, err
	}

	claims := out.Claims[:0]
	for _, cl := range out.Claims {
		if strings.TrimSpace(cl.Text) != "" {
			claims = append(claims, cl)
		}
	}
	return claims, nil
}

func (c *Claude) VerifyClaim(ctx context.Context, content, claim string) (*ClaimVerdict, error) {
	prompt := fmt.Sprintf(verifyClaimPrompt, claim, Window(content, ClaimWindow))
	var out ClaimVerdict
	if err := c.call(ctx, "verify_claim", c.model, prompt, nil, &out); err != nil {
		return nil, err
	}
	if out.Supported && out.Contradicted {
		// A source cannot do both; treat it as silent.
		out.Supported, out.Contradicted = false, false
	}
	return &out, nil
}

func (c *Claude) CheckEquivalence(ctx context.Context, field string, values []string) (*Equivalence, error) {
	var list strings.Builder
	for _, v := range values {
		fmt.Fprintf(&list, "- %s\n", v)
	}
	prompt := fmt.Sprintf(checkEquivalencePrompt, field, list.String())

	var out Equivalence
	if err := c.call(ctx, "check_equivalence", c.model, prompt, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeImage classifies the product in imageURL. It backs the vision
// classifier and shares this client's limiter and breaker.
func (c *Claude) AnalyzeImage(ctx context.Context, imageURL, name string) (*model.VisionResult, error) {
	if imageURL == "" {
		return nil, eris.New("oracle: analyze_image: missing image")
	}
	var out model.VisionResult
	if err := c.call(ctx, "analyze_image", c.visionModel, fmt.Sprintf(analyzeImagePrompt, name),
		[]string{imageURL}, &out); err != nil {
		return nil, err
	}
	out.Confidence = clampScore(out.Confidence)
	return &out, nil
}

func describeVision(v model.VisionResult) string {
	var b strings.Builder
	writeAttr := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	writeAttr("category", v.Category)
	writeAttr("subcategory", v.Subcategory)
	writeAttr("materials", strings.Join(v.Materials, ", "))
	writeAttr("colors", strings.Join(v.Colors, ", "))
	writeAttr("style", v.Style)
	return b.String()
}

func clampScore(v int) int {
	return max(0, min(100, v))
}

// cleanJSON strips markdown fences and surrounding prose from a model answer.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
