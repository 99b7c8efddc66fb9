package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/pkg/anthropic"
)

const classifyMaxTokens = 4096

// Verdict is one classification result keyed to its position in the input.
type Verdict struct {
	Index     int             `json:"index"`
	Relevance model.Relevance `json:"relevance"`
	Reason    string          `json:"reason"`
}

// Classifier grades candidates for manufacturing relevance with an LLM.
type Classifier struct {
	llm       anthropic.Client
	model     string
	batchSize int
	limiter   *rate.Limiter
}

// NewClassifier creates a classifier. batchSize caps places per request;
// delay is the minimum spacing between consecutive batch requests.
func NewClassifier(llm anthropic.Client, modelName string, batchSize int, delay time.Duration) *Classifier {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Classifier{
		llm:       llm,
		model:     modelName,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Every(delay), 1),
	}
}

const classifyPrompt = `You are classifying places as manufacturing/industrial prospects for B2B sales. For each place below, determine manufacturing relevance.

Return a JSON array with one object per place. Each object must have:
- index: the 0-based index from the list
- relevance: "high" | "medium" | "low" | "none"
- reason: brief explanation (1 short phrase)

Relevance guide:
- high: Clearly a manufacturing facility, factory, machine shop, fabrication, industrial plant
- medium: Likely manufacturing (e.g. general contractor, industrial supplier) or name/summary suggests it
- low: Unclear; could be related to manufacturing
- none: Clearly NOT manufacturing (retail, restaurant, office, etc.)

Places (index | name | types | summary):
%s

Return a JSON array. Example: [{"index":0,"relevance":"high","reason":"Metal fabrication"}]`

// Classify grades the candidates in batches and returns verdicts keyed by
// input index. Indexes missing from the result were dropped by the model.
func (cl *Classifier) Classify(ctx context.Context, candidates []model.Candidate) (map[int]Verdict, error) {
	out := make(map[int]Verdict)

	for start := 0; start < len(candidates); start += cl.batchSize {
		if err := cl.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "classify: rate limit")
		}

		end := min(start+cl.batchSize, len(candidates))
		verdicts, err := cl.classifyBatch(ctx, candidates[start:end], start)
		if err != nil {
			return nil, err
		}
		for _, v := range verdicts {
			out[v.Index] = v
		}
	}

	return out, nil
}

func (cl *Classifier) classifyBatch(ctx context.Context, batch []model.Candidate, offset int) ([]Verdict, error) {
	lines := make([]string, len(batch))
	for i, c := range batch {
		lines[i] = promptLine(offset+i, c)
	}

	temp := 0.2
	resp, err := cl.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       cl.model,
		MaxTokens:   classifyMaxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(classifyPrompt, strings.Join(lines, "\n"))},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "classify: create message")
	}

	text := resp.Text()
	if text == "" {
		return nil, eris.Errorf("classify: empty response (stop reason %s)", resp.StopReason)
	}

	valid := make(map[int]struct{}, len(batch))
	for i := range batch {
		valid[offset+i] = struct{}{}
	}

	verdicts, err := parseVerdicts(text, valid)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("classified batch",
		zap.Int("offset", offset),
		zap.Int("sent", len(batch)),
		zap.Int("graded", len(verdicts)))
	return verdicts, nil
}

// promptLine formats one candidate as "index | name | types | summary".
func promptLine(index int, c model.Candidate) string {
	typesStr := "(no type)"
	if len(c.Types) > 0 {
		b, _ := json.Marshal(c.Types)
		typesStr = string(b)
	} else if c.PrimaryType != "" {
		typesStr = c.PrimaryType
	}
	summary := c.Summary()
	if summary == "" {
		summary = "(no summary)"
	}
	return fmt.Sprintf("%d | %s | %s | %s", index, c.Name, typesStr, summary)
}

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("(?i)\\s*```$")
)

// parseVerdicts decodes the model's JSON, tolerating code fences and object
// wrappers. Unknown indexes are dropped; invalid relevance values are
// coerced to low; reasons are truncated at 200 characters.
func parseVerdicts(text string, valid map[int]struct{}) ([]Verdict, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = fenceOpen.ReplaceAllString(trimmed, "")
	trimmed = fenceClose.ReplaceAllString(trimmed, "")

	var rawItems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &rawItems); err != nil {
		// Some responses wrap the array in an object.
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &wrapper); err != nil {
			return nil, eris.Errorf("classify: invalid JSON in response: %.100s", trimmed)
		}
		found := false
		for _, key := range []string{"results", "places", "data"} {
			if raw, ok := wrapper[key]; ok {
				if err := json.Unmarshal(raw, &rawItems); err == nil {
					found = true
					break
				}
			}
		}
		if !found {
			return nil, eris.New("classify: response did not contain a results array")
		}
	}

	verdicts := make([]Verdict, 0, len(rawItems))
	for _, raw := range rawItems {
		var item struct {
			Index     *int   `json:"index"`
			Relevance string `json:"relevance"`
			Reason    string `json:"reason"`
		}
		if err := json.Unmarshal(raw, &item); err != nil || item.Index == nil {
			continue
		}
		if _, ok := valid[*item.Index]; !ok {
			continue
		}
		rel := model.Relevance(item.Relevance)
		if !rel.Valid() {
			rel = model.RelevanceLow
		}
		reason := item.Reason
		if len(reason) > 200 {
			reason = reason[:200]
		}
		verdicts = append(verdicts, Verdict{Index: *item.Index, Relevance: rel, Reason: reason})
	}

	return verdicts, nil
}
