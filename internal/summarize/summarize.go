// Package summarize turns a batch of feed items into a single digest
// email (subject plus HTML body) using an LLM. Two providers are
// supported: OpenAI chat completions and AWS Bedrock (Claude). Both
// share the same prompt and JSON output contract.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/infocapsule/digest/internal/domain"
)

// Digest is the summarizer output: a ready-to-send subject line and
// HTML email body.
type Digest struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// Summarizer generates a digest from a batch of feed items.
type Summarizer interface {
	Summarize(ctx context.Context, batch domain.Batch) (*Digest, error)
}

// systemPrompt instructs the model to return {"subject","content"} JSON.
// The subject format carries the product name, date, and source count.
const systemPrompt = `You are an expert content curator and email newsletter writer specializing in creating concise, actionable daily digests. Your task is to transform RSS feed content into a well-organized, scannable email that busy professionals can read in under 5 minutes while capturing all essential information.

OUTPUT FORMAT:
Return your response as a valid JSON object with exactly two fields:
{
  "subject": "InfoCapsule Daily Digest - [DATE] | [NUMBER] Sources",
  "content": "[HTML-formatted email content]"
}

SUBJECT LINE FORMAT:
- Always include "InfoCapsule" as the app name
- Include current date (use format: Month DD, YYYY)
- Include total number of RSS sources processed
- Example: "InfoCapsule Daily Digest - March 15, 2024 | 23 Sources"

CONTENT FORMATTING (HTML):
- Use proper HTML tags for structure (<h2>, <h3>, <p>, <ul>, <li>, <strong>, <em>)
- Include estimated read times for each section
- Prioritize content by relevance and recency
- Use <strong> tags for key terms and important updates
- Keep paragraphs short (2-3 sentences max)

CONTENT ORGANIZATION:
1. Executive Summary (30 seconds read): 3-4 bullet points highlighting the most critical updates
2. Top Stories (2 minutes read): 5-7 most important articles with headline, 2-sentence summary, key takeaway, source and publication time
3. Quick Hits (1 minute read): 8-10 brief one-line summaries of other notable items, grouped by category
4. Worth Watching (30 seconds read): 2-3 emerging trends and why they matter

WRITING STYLE:
- Professional yet conversational tone
- Focus on "what this means for you" insights
- Use active voice and strong verbs
- Eliminate redundancy across articles

IMPORTANT: Your entire response must be valid JSON. Do not include any text before or after the JSON object.`

// buildUserPrompt serializes the batch items for the model.
func buildUserPrompt(batch domain.Batch) (string, error) {
	payload, err := json.Marshal(batch.Items)
	if err != nil {
		return "", fmt.Errorf("failed to serialize items: %w", err)
	}
	return fmt.Sprintf("Source count: %d\n\nItems:\n%s", batch.SourceCount, payload), nil
}

// parseDigest decodes the model's JSON output into a Digest. Models
// sometimes wrap JSON in markdown code fences despite instructions, so
// fences are stripped first.
func parseDigest(raw string) (*Digest, error) {
	cleaned := stripCodeFence(raw)

	var d Digest
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return nil, fmt.Errorf("model returned invalid digest JSON: %w", err)
	}
	if d.Subject == "" || d.Content == "" {
		return nil, fmt.Errorf("model returned incomplete digest (subject=%q)", d.Subject)
	}
	return &d, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
