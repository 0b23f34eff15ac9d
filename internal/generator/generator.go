package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/whatsay/whatsay-bot/internal/metrics"
	"github.com/whatsay/whatsay-bot/internal/models"
	"go.uber.org/zap"
)

// ErrGenerationFailed marks a terminal failure of one generation attempt:
// the API call errored or timed out, or its output yielded no usable
// candidates. The caller must not debit a credit or append history for it.
var ErrGenerationFailed = errors.New("generation failed")

// ReplyCount is the number of reply candidates offered per exchange
const ReplyCount = 3

// Request carries everything a single generation attempt needs. Retries
// re-invoke Generate with an identical request.
type Request struct {
	Message  string
	Tone     models.Tone
	Language models.ReplyLanguage
	History  []models.Conversation
}

type Generator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func New(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *Generator {
	return newWithClient(openai.NewClient(apiKey), model, maxTokens, temperature, logger)
}

func newWithClient(client *openai.Client, model string, maxTokens int, temperature float64, logger *zap.Logger) *Generator {
	return &Generator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Generate performs one round trip to the model and returns exactly three
// reply candidates in the requested tone and language.
func (g *Generator) Generate(ctx context.Context, req Request) ([]string, error) {
	resp, err := g.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: g.systemPrompt(req),
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: g.userPrompt(req),
				},
			},
			MaxTokens:   g.maxTokens,
			Temperature: float32(g.temperature),
		},
	)
	if err != nil {
		g.logger.Error("Failed to get completion", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrGenerationFailed)
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	replies, fallback := parseCandidates(raw)
	if fallback {
		metrics.RecordParseFallback()
		g.logger.Warn("Completion parsed via blank-line fallback", zap.String("raw", raw))
	}
	if len(replies) == 0 {
		g.logger.Error("No usable candidates in completion", zap.String("raw", raw))
		return nil, fmt.Errorf("%w: no usable candidates", ErrGenerationFailed)
	}

	return replies, nil
}

func (g *Generator) systemPrompt(req Request) string {
	return fmt.Sprintf(`You are Whatsay, an expert conversation coach. Generate natural, authentic responses in %[1]s.

Rules:
- Sound like the user would naturally speak, not like AI
- Match the %[2]s tone
- Keep responses 1-3 sentences max
- Be culturally appropriate for %[1]s speakers
- Avoid clichés and obvious AI phrasing

Provide 3 distinct options:
1. Safe/balanced - works in most situations
2. Bold/direct - more personality
3. Warm/engaging - builds connection

Format: Return ONLY the 3 responses, numbered 1-3, nothing else.`,
		req.Language.PromptName(), req.Tone.Descriptor())
}

func (g *Generator) userPrompt(req Request) string {
	var sb strings.Builder

	// Up to 3 most recent exchanges, oldest first, as them/you pairs
	history := req.History
	if len(history) > 3 {
		history = history[:3]
	}
	if len(history) > 0 {
		sb.WriteString("Previous conversation context:\n")
		for i := len(history) - 1; i >= 0; i-- {
			conv := history[i]
			if len(conv.Replies) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "- Them: %s\n  You: %s\n", conv.Message, conv.Replies[0])
		}
	}

	fmt.Fprintf(&sb, "\nLAST MESSAGE RECEIVED:\n%q\n\nGenerate 3 %s responses in %s.",
		req.Message, req.Tone.Descriptor(), req.Language.PromptName())
	return sb.String()
}
