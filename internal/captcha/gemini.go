package captcha

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const geminiPrompt = `The image is a text CAPTCHA. Reply with the characters shown in the image and nothing else. ` +
	`Keep the exact letter case. Do not add spaces, quotes or explanations.`

// Gemini implements Service with a Gemini vision model.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed Service.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Solve asks the model to read the image.
func (g *Gemini) Solve(ctx context.Context, png []byte) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(geminiPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return answerFromResponse(resp)
}

// Close releases resources held by the client
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func answerFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return cleanAnswer(strings.Join(parts, "")), nil
}

// cleanAnswer strips wrappers models like to add around short answers.
func cleanAnswer(text string) string {
	text = strings.Trim(strings.TrimSpace(text), "`\"'")
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.Join(strings.Fields(line), ""), "`\"'")
		if line != "" && line != "text" {
			return line
		}
	}
	return ""
}
