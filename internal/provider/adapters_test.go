package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscore/internal/cost"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/resilience"
	"github.com/sells-group/leadscore/pkg/anthropic"
	"github.com/sells-group/leadscore/pkg/gemini"
	"github.com/sells-group/leadscore/pkg/perplexity"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Enrich(context.Context, *model.Contact) (*Result, error) {
	return nil, errors.New("stub")
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type fakeGemini struct {
	resp *gemini.Response
	err  error
	req  gemini.Request
}

func (f *fakeGemini) GenerateJSON(_ context.Context, req gemini.Request) (*gemini.Response, error) {
	f.req = req
	return f.resp, f.err
}

var jane = &model.Contact{ID: "c-1", Name: "Jane Doe", Company: "Acme"}

func TestAnthropic_Enrich(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == anthropic.DefaultModel && len(req.System) == 1 && req.Messages[0].Role == "user"
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"industry":"Software","seniority":"VP"}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 1_000_000},
	}, nil)

	p := NewAnthropic(client, "", 0, cost.NewCalculator(cost.DefaultRates()))
	res, err := p.Enrich(context.Background(), jane)
	require.NoError(t, err)

	assert.Equal(t, NameAnthropic, res.Provider)
	assert.Equal(t, "Software", *res.Facts.Industry)
	assert.Equal(t, []string{NameAnthropic}, res.Facts.Sources)
	assert.InDelta(t, 1.00, res.CostUSD, 1e-9)
	client.AssertExpectations(t)
}

func TestAnthropic_UnparseableKeepsCost(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "I could not find anything."}},
		Usage:   anthropic.TokenUsage{InputTokens: 1_000_000},
	}, nil)

	p := NewAnthropic(client, "", 0, cost.NewCalculator(cost.DefaultRates()))
	res, err := p.Enrich(context.Background(), jane)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Nil(t, res.Facts)
	assert.Positive(t, res.CostUSD)
}

func TestAnthropic_TransientError(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset by peer"))

	p := NewAnthropic(client, "", 0, cost.NewCalculator(cost.DefaultRates()))
	_, err := p.Enrich(context.Background(), jane)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestPerplexity_Enrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"recent_news\": [\"Acquired Beta Corp\"]}"}}],
			"usage": {"prompt_tokens": 500, "completion_tokens": 500},
			"citations": ["https://news.example.com/acme"]
		}`))
	}))
	defer srv.Close()

	p := NewPerplexity(perplexity.NewClient("k", perplexity.WithBaseURL(srv.URL)), "", cost.NewCalculator(cost.DefaultRates()))
	res, err := p.Enrich(context.Background(), jane)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acquired Beta Corp"}, res.Facts.RecentNews)
	assert.JSONEq(t, `["https://news.example.com/acme"]`, string(res.Facts.Extra["citations"]))
	assert.InDelta(t, 0.006, res.CostUSD, 1e-9)
}

func TestPerplexity_RateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewPerplexity(perplexity.NewClient("k", perplexity.WithBaseURL(srv.URL)), "", cost.NewCalculator(cost.DefaultRates()))
	_, err := p.Enrich(context.Background(), jane)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGemini_Enrich(t *testing.T) {
	client := &fakeGemini{resp: &gemini.Response{
		Text:         `{"persona_type":"Champion"}`,
		Model:        gemini.DefaultModel,
		InputTokens:  1_000_000,
		OutputTokens: 0,
	}}

	p := NewGemini(client, "", cost.NewCalculator(cost.DefaultRates()))
	res, err := p.Enrich(context.Background(), jane)
	require.NoError(t, err)
	assert.Equal(t, "Champion", *res.Facts.PersonaType)
	assert.InDelta(t, 0.30, res.CostUSD, 1e-9)
	require.NotNil(t, client.req.Schema)
	assert.Contains(t, client.req.Schema.Properties, model.FieldTalkingPoints)
	assert.Contains(t, client.req.Prompt, "Jane Doe")
}

func TestGemini_PermanentError(t *testing.T) {
	client := &fakeGemini{err: errors.New("invalid argument")}
	p := NewGemini(client, "", cost.NewCalculator(cost.DefaultRates()))
	_, err := p.Enrich(context.Background(), jane)
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
