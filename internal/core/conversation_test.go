package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"poya.com/medplant-engine/internal/knowledge"
	"poya.com/medplant-engine/internal/markup"
	"poya.com/medplant-engine/internal/store"
)

type fakeOracle struct {
	reply    string
	err      error
	title    string
	titleErr error

	gotMessage string
	gotHistory []Exchange
}

func (f *fakeOracle) Converse(ctx context.Context, message string, history []Exchange) (string, error) {
	f.gotMessage = message
	f.gotHistory = history
	return f.reply, f.err
}

func (f *fakeOracle) ExtractPlantRecord(ctx context.Context, media []byte, mimeType string) (knowledge.PlantRecord, error) {
	return knowledge.PlantRecord{}, errors.New("not implemented")
}

func (f *fakeOracle) SuggestTitle(ctx context.Context, summary string) (string, error) {
	return f.title, f.titleErr
}

func newTestEngine(t *testing.T, oracle Oracle) (*ConversationEngine, *knowledge.FactStore) {
	t.Helper()
	kb, err := knowledge.NewFactStore(nil, zap.NewNop())
	require.NoError(t, err)
	return NewConversationEngine(oracle, kb, 0, zap.NewNop()), kb
}

func TestRespondOracleSuccessWithKnowledgeHit(t *testing.T) {
	oracle := &fakeOracle{reply: "زنجبیل گیاهی پرخاصیت است."}
	engine, _ := newTestEngine(t, oracle)

	turns := engine.Respond(context.Background(), nil, "زنجبیل")
	require.Len(t, turns, 2)

	assert.Equal(t, store.RoleAssistant, turns[0].Role)
	assert.Equal(t, store.ProvenanceAI, turns[0].Provenance)
	assert.Equal(t, "زنجبیل گیاهی پرخاصیت است.", turns[0].Text)

	// The knowledge turn always follows the AI turn.
	assert.Equal(t, store.ProvenanceKnowledgeBase, turns[1].Provenance)
	assert.Contains(t, turns[1].Text, "### زنجبیل (Zingiber officinale)")
	assert.Contains(t, turns[1].Text, "خواص درمانی")
	assert.Contains(t, turns[1].Text, "_منبع:")
}

func TestRespondContributedRecordIsSelfLearned(t *testing.T) {
	oracle := &fakeOracle{reply: "پاسخ"}
	engine, kb := newTestEngine(t, oracle)
	kb.Teach(knowledge.PlantRecord{ScientificName: "Ocimum basilicum", LocalName: "ریحان"})

	turns := engine.Respond(context.Background(), nil, "ریحان")
	require.Len(t, turns, 2)
	assert.Equal(t, store.ProvenanceSelfLearned, turns[1].Provenance)
	assert.Contains(t, turns[1].Text, knowledge.DefaultContributedProvenance)
}

func TestRespondOracleFailureWithLookupMiss(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("boom")}
	engine, _ := newTestEngine(t, oracle)

	turns := engine.Respond(context.Background(), nil, "basil")
	require.Len(t, turns, 1, "exactly one error turn, no ai turn")
	assert.Equal(t, store.ProvenanceError, turns[0].Provenance)
	assert.Equal(t, oracleFailureReply, turns[0].Text)
}

func TestRespondOracleFailureStillYieldsKnowledgeTurn(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("boom")}
	engine, _ := newTestEngine(t, oracle)

	turns := engine.Respond(context.Background(), nil, "زنجبیل")
	require.Len(t, turns, 2)
	assert.Equal(t, store.ProvenanceError, turns[0].Provenance)
	assert.Equal(t, store.ProvenanceKnowledgeBase, turns[1].Provenance)
}

func TestRespondBlankReplyUsesFallbackPhrase(t *testing.T) {
	oracle := &fakeOracle{reply: "   \n"}
	engine, _ := newTestEngine(t, oracle)

	turns := engine.Respond(context.Background(), nil, "basil")
	require.Len(t, turns, 1)
	assert.Equal(t, store.ProvenanceAI, turns[0].Provenance)
	assert.Equal(t, oracleFallbackReply, turns[0].Text)
}

func TestRespondLookupMissAppendsNoKnowledgeTurn(t *testing.T) {
	oracle := &fakeOracle{reply: "پاسخ"}
	engine, _ := newTestEngine(t, oracle)

	turns := engine.Respond(context.Background(), nil, "basil")
	require.Len(t, turns, 1)
	assert.Equal(t, store.ProvenanceAI, turns[0].Provenance)
}

func TestOracleHistoryFiltering(t *testing.T) {
	history := []store.Turn{
		{Role: store.RoleAssistant, Text: "سلام!", Provenance: store.ProvenanceAI}, // greeting seed
		{Role: store.RoleUser, Text: "سوال اول"},
		{Role: store.RoleAssistant, Text: "پاسخ مدل", Provenance: store.ProvenanceAI},
		{Role: store.RoleAssistant, Text: "### زنجبیل", Provenance: store.ProvenanceKnowledgeBase},
		{Role: store.RoleUser, Text: "سوال دوم"},
		{Role: store.RoleAssistant, Text: "خطا", Provenance: store.ProvenanceError},
		{Role: store.RoleAssistant, Text: "آموخته", Provenance: store.ProvenanceSelfLearned},
	}

	got := oracleHistory(history)
	require.Len(t, got, 3, "seed, knowledge, self-learned and error turns are not model context")
	assert.Equal(t, Exchange{Role: "user", Text: "سوال اول"}, got[0])
	assert.Equal(t, Exchange{Role: "model", Text: "پاسخ مدل"}, got[1])
	assert.Equal(t, Exchange{Role: "user", Text: "سوال دوم"}, got[2])
}

func TestKnowledgeTurnParsesAsMarkup(t *testing.T) {
	oracle := &fakeOracle{reply: "پاسخ"}
	engine, _ := newTestEngine(t, oracle)

	turns := engine.Respond(context.Background(), nil, "Zingiber")
	require.Len(t, turns, 2)

	blocks := markup.Parse(turns[1].Text)
	require.GreaterOrEqual(t, len(blocks), 3)
	assert.Equal(t, "زنجبیل (Zingiber officinale)", blocks[0].Heading)
	assert.Equal(t, "خواص درمانی", blocks[1].Heading)
	assert.Equal(t, "ایمنی و سمیت", blocks[2].Heading)
}
