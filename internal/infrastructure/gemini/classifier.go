package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/service"
	"vendora/pkg/logger"
)

// Classifier implements the NLU contract. Keyword rules run first; the
// Gemini model is only consulted for text the rules cannot place, and a model
// failure degrades to OTHER instead of surfacing an error, so the
// conversation keeps moving.
type Classifier struct {
	model string
}

func NewClassifier(model string) *Classifier {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Classifier{model: model}
}

const classifyPrompt = `You classify one buyer message from a market chat into exactly one label:
QUERY (asking about products or prices), PURCHASE (wants to buy or pay),
NEGOTIATE (bargaining over price), CANCEL (abandoning the conversation),
CONFIRM (agreeing or confirming receipt), IGNORE (greeting or filler),
OTHER (anything else).
Reply with the label only, no other text.`

func (c *Classifier) Classify(ctx context.Context, text string, sc service.SessionContext) (service.Intent, error) {
	if intent := ruleIntent(text); intent != service.IntentOther {
		return intent, nil
	}

	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		logger.Warn("Gemini client init failed, classifying as OTHER: %v", err)
		return service.IntentOther, nil
	}

	contextLine := fmt.Sprintf("Conversation state: %s.", sc.State)
	if sc.LastItemName != "" {
		contextLine += fmt.Sprintf(" Item under discussion: %s.", sc.LastItemName)
	}
	if sc.Negotiating {
		contextLine += " The buyer is mid-negotiation."
	}

	parts := []*genai.Part{
		genai.NewPartFromText(classifyPrompt),
		genai.NewPartFromText(contextLine),
		genai.NewPartFromText("Message: " + text),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	temp := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
	}

	res, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		logger.Warn("Gemini classify failed, falling back to OTHER: %v", err)
		return service.IntentOther, nil
	}

	intent, err := ParseIntent(res.Text())
	if err != nil {
		logger.Debug("Unparseable intent from model: %v", err)
		return service.IntentOther, nil
	}

	return intent, nil
}

func (c *Classifier) ExtractOffer(text string) int64 {
	return ExtractOffer(text)
}

func (c *Classifier) AcceptSignal(text string) bool {
	return AcceptSignal(text)
}

func (c *Classifier) MatchProducts(ctx context.Context, text string, items []entity.Item) ([]entity.Item, error) {
	return MatchItems(text, items), nil
}
