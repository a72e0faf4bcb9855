package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lanhoang/maildigest/internal/model"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 1024
)

// systemPrompt instructs the model to emit a self-contained HTML card
// fragment: a category, a 1-5 star importance rating rendered as ★/☆
// glyphs, and a short summary. The composer later reads the rating
// back out of the card text.
const systemPrompt = `You are an efficient HTML email assistant. For each message, do three things:

1. Categorize: pick one of [Academic/Campus, Jobs/Recruiting, Personal/Social, Promotions].
2. Rate: give a 1-5 star importance rating using star glyphs (for example: ★★★★☆).
3. Summarize: write a 30-50 word summary of the core content.

Reply strictly with the following HTML fragment. It is a card snippet; never include <html> or <body> tags. Use a <table> so category and rating align on mobile clients.

<div style="border-bottom: 1px solid #eeeeee; padding: 12px 0px;">
    <p style="margin: 0; padding: 0; font-size: 15px; font-weight: 600; color: #000000;">[subject]</p>
    <table style="width: 100%; margin-top: 8px; font-size: 14px; border-collapse: collapse;">
        <tr>
            <td style="width: 70px; color: #555555; padding: 2px 0;">Category:</td>
            <td style="color: #111111; padding: 2px 0;">[category]</td>
        </tr>
        <tr>
            <td style="color: #555555; padding: 2px 0;">Rating:</td>
            <td style="color: #f39c12; font-size: 18px; font-weight: bold; padding: 2px 0;">[stars]</td>
        </tr>
    </table>
    <p style="margin: 8px 0 0 0; padding: 0; font-size: 14px; color: #333333; line-height: 1.6;">
        [summary]
    </p>
</div>`

// OpenAIClient implements Summarizer against an OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOpenAIClient creates a summarizer client. baseURL may be empty to
// use the public OpenAI endpoint, or point at any compatible service.
func NewOpenAIClient(
	baseURL, apiKey, modelName string, maxTokens int,
) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAIClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     modelName,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}
}

// Summarize sends one message to the chat completions API and returns
// the rendered summary card.
func (c *OpenAIClient) Summarize(
	ctx context.Context, rec model.MessageRecord,
) (string, error) {
	userMsg := fmt.Sprintf(
		"Subject: %s\n\nMessage body:\n%s", rec.Subject, rec.Body,
	)

	reqBody := apiRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		Messages: []apiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMsg},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("calling model endpoint: %v", err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{
			Kind:    model.KindNetworkTimeout,
			Message: fmt.Sprintf("reading response: %v", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &Error{
			Kind:    model.KindUnknown,
			Message: fmt.Sprintf("decoding response: %v", err),
		}
	}

	if len(result.Choices) == 0 {
		return "", &Error{
			Kind:    model.KindUnknown,
			Message: "response contained no choices",
		}
	}

	card := strings.TrimSpace(result.Choices[0].Message.Content)
	if card == "" {
		return "", &Error{
			Kind:    model.KindUnknown,
			Message: "response contained an empty summary",
		}
	}

	return card, nil
}

// --- chat completions API types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
