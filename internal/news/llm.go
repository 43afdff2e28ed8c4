package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"darkpool/internal/game"
)

// LLMNarrator generates flavor text through an OpenAI-compatible
// chat-completions endpoint. Every call carries its own short deadline so a
// slow provider can never stall the game; callers are expected to wrap it
// in Resilient.
type LLMNarrator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewLLMNarrator(baseURL, apiKey, model string) *LLMNarrator {
	return &LLMNarrator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *LLMNarrator) Headline(direction game.Direction) (string, error) {
	tone := "bearish"
	if direction == game.DirectionUp {
		tone = "bullish"
	}
	return c.complete(fmt.Sprintf(
		"Write one short %s financial news headline about a fictional stock. Plain text, no quotes, under 15 words.", tone))
}

func (c *LLMNarrator) HourlyCommentary(bar game.Bar, pctChange float64) (string, error) {
	return c.complete(fmt.Sprintf(
		"One line of trading-floor commentary: hour %d closed at $%.2f (%+.2f%%) on volume %d. Under 20 words.",
		bar.Hour+1, bar.Close, pctChange, bar.Volume))
}

func (c *LLMNarrator) RoundSummary(stats game.RoundStats) (string, error) {
	return c.complete(fmt.Sprintf(
		"Summarize a trading game round in one dramatic sentence: final price $%.2f, %d of %d players bankrupt, retail lost $%.0f total.",
		stats.FinalPrice, stats.Bankruptcies, stats.Players, stats.RetailLosses))
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *LLMNarrator) complete(prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
