package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/integratec/plant-crm/internal/model"
	"github.com/integratec/plant-crm/pkg/anthropic"
)

type fakeLLM struct {
	responses []string
	errs      []error
	requests  []anthropic.MessageRequest
}

func (f *fakeLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	call := len(f.requests)
	f.requests = append(f.requests, req)
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}
	text := "[]"
	if call < len(f.responses) {
		text = f.responses[call]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

func candidates(n int) []model.Candidate {
	out := make([]model.Candidate, n)
	for i := range out {
		out[i] = model.Candidate{
			PlaceID: string(rune('a' + i)),
			Name:    "Plant",
			Types:   []string{"manufacturer"},
		}
	}
	return out
}

func TestClassify_SingleBatch(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`[{"index":0,"relevance":"high","reason":"Metal fabrication"},
		  {"index":1,"relevance":"none","reason":"Retail store"}]`,
	}}
	cl := NewClassifier(llm, "test-model", 20, 0)

	verdicts, err := cl.Classify(context.Background(), candidates(2))

	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	assert.Equal(t, model.RelevanceHigh, verdicts[0].Relevance)
	assert.Equal(t, model.RelevanceNone, verdicts[1].Relevance)
	assert.Equal(t, "Metal fabrication", verdicts[0].Reason)
}

func TestClassify_SplitsIntoBatches(t *testing.T) {
	llm := &fakeLLM{responses: []string{
		`[{"index":0,"relevance":"high","reason":"a"},{"index":1,"relevance":"low","reason":"b"}]`,
		`[{"index":2,"relevance":"medium","reason":"c"}]`,
	}}
	cl := NewClassifier(llm, "test-model", 2, 0)

	verdicts, err := cl.Classify(context.Background(), candidates(3))

	require.NoError(t, err)
	require.Len(t, llm.requests, 2)
	assert.Len(t, verdicts, 3)
	assert.Equal(t, model.RelevanceMedium, verdicts[2].Relevance)

	// The second batch's prompt keeps global indexes.
	second := llm.requests[1].Messages[0].Content
	assert.Contains(t, second, "\n2 | Plant")
	assert.NotContains(t, second, "\n0 | Plant")
}

func TestClassify_PromptFormat(t *testing.T) {
	llm := &fakeLLM{responses: []string{`[]`}}
	cl := NewClassifier(llm, "test-model", 20, 0)

	_, err := cl.Classify(context.Background(), []model.Candidate{{
		PlaceID:           "p1",
		Name:              "Acme Foundry",
		Types:             []string{"manufacturer", "establishment"},
		GenerativeSummary: "Iron foundry serving north Texas.",
	}})

	require.NoError(t, err)
	prompt := llm.requests[0].Messages[0].Content
	assert.Contains(t, prompt, `0 | Acme Foundry | ["manufacturer","establishment"] | Iron foundry serving north Texas.`)
}

func TestClassify_PropagatesError(t *testing.T) {
	llm := &fakeLLM{errs: []error{eris.New("anthropic: boom")}}
	cl := NewClassifier(llm, "test-model", 20, 0)

	_, err := cl.Classify(context.Background(), candidates(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestParseVerdicts(t *testing.T) {
	valid := map[int]struct{}{0: {}, 1: {}, 2: {}}

	t.Run("strips code fences", func(t *testing.T) {
		verdicts, err := parseVerdicts("```json\n[{\"index\":0,\"relevance\":\"high\",\"reason\":\"r\"}]\n```", valid)
		require.NoError(t, err)
		require.Len(t, verdicts, 1)
		assert.Equal(t, model.RelevanceHigh, verdicts[0].Relevance)
	})

	t.Run("accepts results wrapper", func(t *testing.T) {
		verdicts, err := parseVerdicts(`{"results":[{"index":1,"relevance":"none","reason":"r"}]}`, valid)
		require.NoError(t, err)
		require.Len(t, verdicts, 1)
		assert.Equal(t, 1, verdicts[0].Index)
	})

	t.Run("accepts places wrapper", func(t *testing.T) {
		verdicts, err := parseVerdicts(`{"places":[{"index":2,"relevance":"low","reason":"r"}]}`, valid)
		require.NoError(t, err)
		assert.Len(t, verdicts, 1)
	})

	t.Run("drops unknown indexes", func(t *testing.T) {
		verdicts, err := parseVerdicts(`[{"index":9,"relevance":"high","reason":"r"}]`, valid)
		require.NoError(t, err)
		assert.Empty(t, verdicts)
	})

	t.Run("coerces invalid relevance to low", func(t *testing.T) {
		verdicts, err := parseVerdicts(`[{"index":0,"relevance":"very high","reason":"r"}]`, valid)
		require.NoError(t, err)
		require.Len(t, verdicts, 1)
		assert.Equal(t, model.RelevanceLow, verdicts[0].Relevance)
	})

	t.Run("truncates long reasons", func(t *testing.T) {
		long := strings.Repeat("x", 300)
		verdicts, err := parseVerdicts(`[{"index":0,"relevance":"high","reason":"`+long+`"}]`, valid)
		require.NoError(t, err)
		require.Len(t, verdicts, 1)
		assert.Len(t, verdicts[0].Reason, 200)
	})

	t.Run("rejects non-json", func(t *testing.T) {
		_, err := parseVerdicts("I cannot classify these places.", valid)
		assert.Error(t, err)
	})

	t.Run("rejects wrapper without array", func(t *testing.T) {
		_, err := parseVerdicts(`{"verdict":"ok"}`, valid)
		assert.Error(t, err)
	})
}
