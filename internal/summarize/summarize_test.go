package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infocapsule/digest/internal/domain"
)

func testBatch() domain.Batch {
	return domain.Batch{
		UserID:      "user-1",
		SourceCount: 3,
		Items: []domain.Item{
			{Title: "Story A", Summary: "Something happened", Link: "https://example.com/a", PublishedAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)},
			{Title: "Story B", Summary: "Another thing", Link: "https://example.com/b", PublishedAt: time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC)},
		},
	}
}

func TestParseDigest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Digest
		wantErr bool
	}{
		{
			name:  "plain json",
			input: `{"subject":"InfoCapsule Daily Digest - March 15, 2026 | 3 Sources","content":"<h2>Top</h2>"}`,
			want:  &Digest{Subject: "InfoCapsule Daily Digest - March 15, 2026 | 3 Sources", Content: "<h2>Top</h2>"},
		},
		{
			name:  "fenced json",
			input: "```json\n{\"subject\":\"S\",\"content\":\"C\"}\n```",
			want:  &Digest{Subject: "S", Content: "C"},
		},
		{
			name:  "fence without language tag",
			input: "```\n{\"subject\":\"S\",\"content\":\"C\"}\n```",
			want:  &Digest{Subject: "S", Content: "C"},
		},
		{
			name:    "not json",
			input:   "Here is your digest!",
			wantErr: true,
		},
		{
			name:    "missing content",
			input:   `{"subject":"S"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDigest(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenAISummarizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4.1-mini", req.Model)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "Story A")

		w.Write([]byte(`{"choices":[{"message":{"content":"{\"subject\":\"InfoCapsule Daily Digest\",\"content\":\"<p>hi</p>\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	s := NewOpenAISummarizer(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	digest, err := s.Summarize(context.Background(), testBatch())
	require.NoError(t, err)
	assert.Equal(t, "InfoCapsule Daily Digest", digest.Subject)
	assert.Equal(t, "<p>hi</p>", digest.Content)
}

func TestOpenAISummarizer_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
	}))
	defer srv.Close()

	s := NewOpenAISummarizer(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL})
	_, err := s.Summarize(context.Background(), testBatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOpenAISummarizer_MissingKey(t *testing.T) {
	s := NewOpenAISummarizer(OpenAIConfig{})
	_, err := s.Summarize(context.Background(), testBatch())
	assert.Error(t, err)
}

type fakeBedrock struct {
	body []byte
	err  error
	got  *bedrockruntime.InvokeModelInput
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestBedrockSummarizer(t *testing.T) {
	fake := &fakeBedrock{
		body: []byte(`{"content":[{"type":"text","text":"{\"subject\":\"S\",\"content\":\"C\"}"}],"usage":{"input_tokens":100,"output_tokens":50}}`),
	}
	s := NewBedrockSummarizerWithClient(fake, "anthropic.claude-3-sonnet-20240229-v1:0")

	digest, err := s.Summarize(context.Background(), testBatch())
	require.NoError(t, err)
	assert.Equal(t, "S", digest.Subject)
	assert.Equal(t, "C", digest.Content)

	require.NotNil(t, fake.got)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", *fake.got.ModelId)

	var req bedrockRequest
	require.NoError(t, json.Unmarshal(fake.got.Body, &req))
	assert.Equal(t, "bedrock-2023-05-31", req.AnthropicVersion)
	assert.NotEmpty(t, req.System)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content[0].Text, "Story A")
}

func TestBedrockSummarizer_EmptyResponse(t *testing.T) {
	fake := &fakeBedrock{body: []byte(`{"content":[]}`)}
	s := NewBedrockSummarizerWithClient(fake, "model")

	_, err := s.Summarize(context.Background(), testBatch())
	assert.Error(t, err)
}
