package usecase

import (
	"fmt"
	"sort"
	"strings"

	"chat-orchestrator/internal/domain"
)

// perMessageOverhead approximates the per-message framing cost most
// chat templates add around the content itself.
const perMessageOverhead = 4

// PromptAssembler builds the final message sequence sent to the model,
// merging history, retrieved passages and the new user turn under a
// token budget. Deterministic given identical inputs.
type PromptAssembler interface {
	Assemble(history []domain.Message, passages []domain.RetrievedPassage, newTurn domain.Message, budget int) ([]domain.Message, error)
}

// ContextPromptAssembler renders retrieved passages as one system
// message placed after the instruction block, the way the source
// context engine stacks instructions, context and turns.
type ContextPromptAssembler struct{}

// NewContextPromptAssembler creates the default assembler.
func NewContextPromptAssembler() PromptAssembler {
	return &ContextPromptAssembler{}
}

// Assemble applies the truncation policy: lowest-relevance passages are
// dropped first until the prompt fits the budget; if history alone
// still exceeds it, history is truncated from the oldest turn forward.
// The new user turn is always preserved verbatim.
func (a *ContextPromptAssembler) Assemble(history []domain.Message, passages []domain.RetrievedPassage, newTurn domain.Message, budget int) ([]domain.Message, error) {
	if newTurn.Content == "" {
		return nil, fmt.Errorf("%w: empty user turn", domain.ErrInvalidRequest)
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: non-positive token budget %d", domain.ErrInvalidRequest, budget)
	}

	// Drop order: ascending relevance, ties shedding the later
	// retrieval position first.
	order := make([]int, len(passages))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if passages[order[i]].Score != passages[order[j]].Score {
			return passages[order[i]].Score < passages[order[j]].Score
		}
		return order[i] > order[j]
	})

	dropped := make(map[int]bool)
	next := 0
	for {
		msgs := a.compose(history, passages, dropped, newTurn)
		if EstimateTokens(msgs) <= budget {
			return msgs, nil
		}
		if next >= len(order) {
			break
		}
		dropped[order[next]] = true
		next++
	}

	// All passages gone and still over budget: shed history oldest-first.
	trimmed := history
	for len(trimmed) > 0 {
		trimmed = trimmed[1:]
		msgs := a.compose(trimmed, nil, nil, newTurn)
		if EstimateTokens(msgs) <= budget {
			return msgs, nil
		}
	}

	// Nothing left to shed; the newest user turn survives regardless.
	return []domain.Message{newTurn}, nil
}

func (a *ContextPromptAssembler) compose(history []domain.Message, passages []domain.RetrievedPassage, dropped map[int]bool, newTurn domain.Message) []domain.Message {
	// Leading system turns stay in front of the retrieved context.
	lead := 0
	for lead < len(history) && history[lead].Role == domain.RoleSystem {
		lead++
	}

	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, history[:lead]...)

	var texts []string
	for i, p := range passages {
		if dropped[i] {
			continue
		}
		texts = append(texts, p.Text)
	}
	if len(texts) > 0 {
		msgs = append(msgs, domain.Message{
			Role:    domain.RoleSystem,
			Content: renderPassageBlock(texts),
		})
	}

	msgs = append(msgs, history[lead:]...)
	msgs = append(msgs, newTurn)
	return msgs
}

func renderPassageBlock(texts []string) string {
	var sb strings.Builder
	sb.WriteString("Relevant context (retrieved):\n---\n")
	sb.WriteString(strings.Join(texts, "\n\n"))
	sb.WriteString("\n---\nUse only if relevant. If uncertain, say you are unsure.")
	return sb.String()
}

// EstimateTokens approximates the token length of a message sequence.
// Roughly four characters per token plus framing overhead per message.
func EstimateTokens(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTextTokens(m.Content) + perMessageOverhead
	}
	return total
}

// EstimateTextTokens approximates the token length of raw text.
func EstimateTextTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
