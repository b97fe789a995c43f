package gemini

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/service"
)

var offerPattern = regexp.MustCompile(`(?i)(?:₦|ngn\s*|n)?(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(k)?`)

// ExtractOffer pulls a numeric price offer out of free text. The last number
// mentioned wins ("I said 15000, ok make it 16000"). Returns 0 when the text
// carries no usable number.
func ExtractOffer(text string) int64 {
	matches := offerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}

	last := matches[len(matches)-1]
	raw := strings.ReplaceAll(last[1], ",", "")

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	if strings.EqualFold(last[2], "k") {
		value *= 1000
	}
	if value < 0 {
		return 0
	}

	return int64(value)
}

var acceptWords = []string{
	"deal", "ok i'll take it", "i'll take it", "i will take it", "i agree",
	"agreed", "send the link", "send link", "let me pay", "i want to pay",
	"ready to pay", "yes oo", "oya", "fine, send", "accepted",
}

// AcceptSignal reports affirmative ready-to-pay language. Deliberately
// conservative: a bare "ok" is not an accept, but "ok deal" is.
func AcceptSignal(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, word := range acceptWords {
		if strings.Contains(normalized, word) {
			return true
		}
	}
	return false
}

var intentKeywords = []struct {
	intent service.Intent
	words  []string
}{
	{service.IntentCancel, []string{"cancel", "forget it", "never mind", "nevermind", "stop", "abort"}},
	{service.IntentNegotiate, []string{"last price", "lastprice", "discount", "reduce", "too expensive", "lower", "abeg", "can you do"}},
	{service.IntentPurchase, []string{"buy", "purchase", "i want to pay", "payment link", "order", "take it"}},
	{service.IntentConfirm, []string{"yes", "confirm", "received", "i got it", "delivered", "no problem"}},
	{service.IntentQuery, []string{"how much", "price of", "do you have", "do you sell", "available", "in stock", "looking for"}},
}

// ruleIntent is the deterministic first pass. It only returns OTHER when no
// keyword matches, which is when the model gets consulted.
func ruleIntent(text string) service.Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return service.IntentIgnore
	}

	for _, entry := range intentKeywords {
		for _, word := range entry.words {
			if strings.Contains(normalized, word) {
				return entry.intent
			}
		}
	}

	return service.IntentOther
}

// ParseIntent maps a model response onto the closed intent set.
func ParseIntent(raw string) (service.Intent, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))

	for _, intent := range []service.Intent{
		service.IntentQuery, service.IntentPurchase, service.IntentNegotiate,
		service.IntentCancel, service.IntentConfirm, service.IntentIgnore,
		service.IntentOther,
	} {
		if strings.Contains(normalized, string(intent)) {
			return intent, nil
		}
	}

	return service.IntentOther, fmt.Errorf("unrecognized intent response: %q", raw)
}

// MatchItems scores catalog items against the text by token overlap with the
// item name plus exact SKU mention. Results come back best-first.
func MatchItems(text string, items []entity.Item) []entity.Item {
	normalized := strings.ToLower(text)
	tokens := strings.Fields(normalized)

	type scored struct {
		item  entity.Item
		score int
	}
	var matches []scored

	for _, item := range items {
		score := 0
		name := strings.ToLower(item.Name)

		if strings.Contains(normalized, name) {
			score += 10
		}
		if item.SKU != "" && strings.Contains(strings.ToUpper(text), strings.ToUpper(item.SKU)) {
			score += 10
		}
		for _, token := range tokens {
			if len(token) >= 3 && strings.Contains(name, token) {
				score++
			}
		}

		if score > 0 {
			matches = append(matches, scored{item: item, score: score})
		}
	}

	// Insertion sort; candidate lists are tiny.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].score > matches[j-1].score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}

	result := make([]entity.Item, len(matches))
	for i, m := range matches {
		result[i] = m.item
	}
	return result
}
