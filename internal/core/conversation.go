package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"poya.com/medplant-engine/internal/knowledge"
	"poya.com/medplant-engine/internal/store"
)

const (
	// Shown as the AI turn when the model replied with blank text.
	oracleFallbackReply = "متاسفانه پاسخی دریافت نشد."
	// Shown as the error turn when the model call failed outright.
	oracleFailureReply = "متاسفانه خطایی رخ داد."

	DefaultOracleTimeout = 45 * time.Second
)

// ConversationEngine merges the two answer sources for each user
// utterance: the generative model is the always-present responder, and the
// knowledge base is a high-confidence overlay that supplements it with a
// provenance-tagged second turn.
type ConversationEngine struct {
	oracle  Oracle
	kb      *knowledge.FactStore
	timeout time.Duration
	logger  *zap.Logger
}

func NewConversationEngine(oracle Oracle, kb *knowledge.FactStore, timeout time.Duration, logger *zap.Logger) *ConversationEngine {
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	return &ConversationEngine{
		oracle:  oracle,
		kb:      kb,
		timeout: timeout,
		logger:  logger,
	}
}

// Respond produces the assistant turns for one user utterance given the
// transcript so far (not including the utterance itself). It never returns
// an error: a failed or timed-out model call becomes a visible error turn.
//
// Turn order is fixed: the AI turn (success or error) always precedes the
// knowledge turn, even though the lookup resolves first.
func (e *ConversationEngine) Respond(ctx context.Context, history []store.Turn, userText string) []store.Turn {
	record, found := e.kb.Lookup(userText)

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	reply, err := e.oracle.Converse(callCtx, userText, oracleHistory(history))

	var turns []store.Turn
	if err != nil {
		e.logger.Warn("model call failed, answering with error turn", zap.Error(err))
		turns = append(turns, store.Turn{
			Role:       store.RoleAssistant,
			Text:       oracleFailureReply,
			Provenance: store.ProvenanceError,
		})
	} else {
		if strings.TrimSpace(reply) == "" {
			reply = oracleFallbackReply
		}
		turns = append(turns, store.Turn{
			Role:       store.RoleAssistant,
			Text:       reply,
			Provenance: store.ProvenanceAI,
		})
	}

	// The knowledge turn joins behind the already-decided AI slot.
	// A lookup miss produces nothing; that is silence, not an error.
	if found {
		provenance := store.ProvenanceKnowledgeBase
		if record.Origin == knowledge.OriginContributed {
			provenance = store.ProvenanceSelfLearned
		}
		turns = append(turns, store.Turn{
			Role:       store.RoleAssistant,
			Text:       renderRecordSummary(record),
			Provenance: provenance,
		})
	}

	return turns
}

// oracleHistory maps the transcript into model context. The leading
// greeting seed and assistant turns that did not come from the model
// (knowledge and error turns) are UI-only and are filtered out.
func oracleHistory(history []store.Turn) []Exchange {
	if len(history) > 0 && history[0].Role == store.RoleAssistant {
		history = history[1:]
	}

	var exchanges []Exchange
	for _, turn := range history {
		switch turn.Role {
		case store.RoleUser:
			exchanges = append(exchanges, Exchange{Role: "user", Text: turn.Text})
		case store.RoleAssistant:
			if turn.Provenance == store.ProvenanceAI {
				exchanges = append(exchanges, Exchange{Role: "model", Text: turn.Text})
			}
		}
	}
	return exchanges
}

// renderRecordSummary builds the fixed composite block for a knowledge
// turn. The output must stay valid input for the markup parser: section
// headings marked with ###, the citation line last.
func renderRecordSummary(rec knowledge.PlantRecord) string {
	return fmt.Sprintf("### %s (%s)\n### خواص درمانی\n%s\n### ایمنی و سمیت\n%s\n\n_منبع: %s_",
		rec.LocalName,
		rec.ScientificName,
		strings.Join(rec.Properties, "، "),
		rec.ClinicalSafety.Toxicity,
		rec.Provenance,
	)
}
