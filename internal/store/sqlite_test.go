package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserLifecycle(t *testing.T) {
	db := newTestDB(t)

	missing, err := db.GetUserByExternalID("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := db.CreateUser("alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice", created.ExternalUserID)

	fetched, err := db.GetUserByExternalID("alice")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "hash", fetched.PasswordHash)
}

func TestChatLifecycle(t *testing.T) {
	db := newTestDB(t)
	user, err := db.CreateUser("alice", "hash")
	require.NoError(t, err)

	chat, err := db.CreateChat(user.ID, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, chat.ID)
	assert.Nil(t, chat.Title)

	require.NoError(t, db.UpdateChatTitle(chat.ID, user.ID, "گفتگو درباره زنجبیل"))

	fetched, err := db.GetChatByID(chat.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.NotNil(t, fetched.Title)
	assert.Equal(t, "گفتگو درباره زنجبیل", *fetched.Title)

	// Another user cannot see the chat.
	other, err := db.CreateUser("bob", "hash")
	require.NoError(t, err)
	hidden, err := db.GetChatByID(chat.ID, other.ID)
	require.NoError(t, err)
	assert.Nil(t, hidden)

	chats, err := db.GetChatsByUserID(user.ID)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestTurnsPreserveAppendOrder(t *testing.T) {
	db := newTestDB(t)
	user, err := db.CreateUser("alice", "hash")
	require.NoError(t, err)
	chat, err := db.CreateChat(user.ID, nil)
	require.NoError(t, err)

	seq := []Turn{
		{ChatID: chat.ID, Role: RoleAssistant, Text: "سلام", Provenance: ProvenanceAI},
		{ChatID: chat.ID, Role: RoleUser, Text: "زنجبیل چیست؟"},
		{ChatID: chat.ID, Role: RoleAssistant, Text: "پاسخ", Provenance: ProvenanceAI},
		{ChatID: chat.ID, Role: RoleAssistant, Text: "### زنجبیل", Provenance: ProvenanceKnowledgeBase},
	}
	for i := range seq {
		require.NoError(t, db.AppendTurn(&seq[i]))
		assert.NotEmpty(t, seq[i].ID)
	}

	turns, err := db.GetTurnsByChatID(chat.ID)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	for i, turn := range turns {
		assert.Equal(t, seq[i].Text, turn.Text, "turn %d out of order", i)
		assert.Equal(t, seq[i].Provenance, turn.Provenance)
	}
}

func TestTurnProvenanceConstraint(t *testing.T) {
	db := newTestDB(t)
	user, err := db.CreateUser("alice", "hash")
	require.NoError(t, err)
	chat, err := db.CreateChat(user.ID, nil)
	require.NoError(t, err)

	// User turns must not carry provenance, assistant turns must.
	err = db.AppendTurn(&Turn{ChatID: chat.ID, Role: RoleUser, Text: "سوال", Provenance: ProvenanceAI})
	assert.Error(t, err)

	err = db.AppendTurn(&Turn{ChatID: chat.ID, Role: RoleAssistant, Text: "پاسخ"})
	assert.Error(t, err)
}

func TestKVRoundTrip(t *testing.T) {
	db := newTestDB(t)

	_, found, err := db.Get("contributed_plants")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.Put("contributed_plants", `[{"scientificName":"Ocimum basilicum"}]`))
	value, found, err := db.Get("contributed_plants")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, value, "Ocimum basilicum")

	// Writes replace the whole value.
	require.NoError(t, db.Put("contributed_plants", `[]`))
	value, found, err = db.Get("contributed_plants")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `[]`, value)
}
