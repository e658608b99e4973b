package receipts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/odyssey-erp/arap/internal/money"
)

const openAIPrompt = `You read payment receipts (PIX, bank transfer, card slip).
Return a JSON object {"amount": <paid amount as a decimal number or null>, "confidence": <0..1>}.
Use null when the paid amount is not legible. Do not include any other keys.`

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAnalyzer reads receipts with a vision-capable chat model.
type OpenAIAnalyzer struct {
	client chatClient
	model  string
}

// NewOpenAIAnalyzer builds an analyzer backed by the OpenAI API.
func NewOpenAIAnalyzer(apiKey, model string) *OpenAIAnalyzer {
	return newOpenAIAnalyzer(openai.NewClient(apiKey), model)
}

func newOpenAIAnalyzer(client chatClient, model string) *OpenAIAnalyzer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIAnalyzer{client: client, model: model}
}

func (a *OpenAIAnalyzer) Provider() string { return "openai" }

// Analyze sends the image inline as a data URL.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, img Image) (Extraction, error) {
	if len(img.Data) == 0 {
		return Extraction{}, analysisError(a.Provider(), "analyze", errors.New("empty image"))
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0,
		MaxTokens:   200,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openAIPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Extract the paid amount from this receipt."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
	})
	if err != nil {
		return Extraction{}, analysisError(a.Provider(), "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return Extraction{}, analysisError(a.Provider(), "chat completion", errors.New("no choices returned"))
	}
	return parseOpenAIContent(resp.Choices[0].Message.Content)
}

type openAIReading struct {
	Amount     json.RawMessage `json:"amount"`
	Confidence *float64        `json:"confidence"`
}

func parseOpenAIContent(content string) (Extraction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var reading openAIReading
	if err := json.Unmarshal([]byte(content), &reading); err != nil {
		return Extraction{}, analysisError("openai", "decode response", err)
	}
	out := Extraction{Provider: "openai", Confidence: reading.Confidence}
	amount, err := decodeLooseAmount(reading.Amount)
	if err != nil {
		out.Note = err.Error()
		return out, nil
	}
	out.Amount = amount
	return out, nil
}

// decodeLooseAmount accepts a JSON number, a numeric string or null.
func decodeLooseAmount(raw json.RawMessage) (*money.Money, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, nil
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	m, err := money.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("unreadable amount %q", text)
	}
	return &m, nil
}
