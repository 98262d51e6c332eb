package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"poya.com/medplant-engine/internal/store"
)

// Every new chat opens with this assistant greeting. It is excluded from
// the model's context when building history.
const greetingText = "سلام! من دستیار POYA هستم. چطور می‌توانم کمک کنم؟"

// ErrChatNotFound is returned when a chat id does not exist for the user.
var ErrChatNotFound = fmt.Errorf("chat not found")

// ChatService owns the durable transcripts and runs the conversation
// engine against them. Turns within one chat are strictly serialized: a
// second message to the same chat waits until the first one's turns have
// all been appended, so a transcript can never interleave two responses.
type ChatService struct {
	dbStore *store.SQLiteStore
	engine  *ConversationEngine
	oracle  Oracle // for title generation
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewChatService(db *store.SQLiteStore, engine *ConversationEngine, oracle Oracle, logger *zap.Logger) *ChatService {
	return &ChatService{
		dbStore:  db,
		engine:   engine,
		oracle:   oracle,
		logger:   logger,
		inflight: make(map[string]*sync.Mutex),
	}
}

func (s *ChatService) chatLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.inflight[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.inflight[chatID] = lock
	}
	return lock
}

func (s *ChatService) GetUserByExternalID(externalUserID string) (*store.User, error) {
	return s.dbStore.GetUserByExternalID(externalUserID)
}

func (s *ChatService) CreateUser(externalUserID, passwordHash string) (*store.User, error) {
	return s.dbStore.CreateUser(externalUserID, passwordHash)
}

// CreateChat opens a chat seeded with the fixed greeting turn and, when a
// first message is given, runs a full conversation round on it.
func (s *ChatService) CreateChat(ctx context.Context, userID int64, firstMessage *string) (*store.Chat, []store.Turn, error) {
	chat, err := s.dbStore.CreateChat(userID, nil) // Title will be generated later
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat in DB: %w", err)
	}

	greeting := store.Turn{
		ChatID:     chat.ID,
		Role:       store.RoleAssistant,
		Text:       greetingText,
		Provenance: store.ProvenanceAI,
	}
	if err := s.dbStore.AppendTurn(&greeting); err != nil {
		return nil, nil, fmt.Errorf("failed to seed chat greeting: %w", err)
	}
	turns := []store.Turn{greeting}

	if firstMessage != nil && *firstMessage != "" {
		appended, err := s.PostMessage(ctx, chat.ID, userID, *firstMessage)
		if err != nil {
			// The chat exists and is usable; surface what we have.
			s.logger.Warn("failed to process first message for new chat",
				zap.String("chat_id", chat.ID), zap.Error(err))
		} else {
			turns = append(turns, appended...)
		}
	}

	return chat, turns, nil
}

func (s *ChatService) GetChats(userID int64) ([]store.Chat, error) {
	return s.dbStore.GetChatsByUserID(userID)
}

func (s *ChatService) GetChatDetails(chatID string, userID int64) (*store.Chat, []store.Turn, error) {
	chat, err := s.dbStore.GetChatByID(chatID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat == nil {
		return nil, nil, nil // Not found
	}

	turns, err := s.dbStore.GetTurnsByChatID(chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get turns for chat: %w", err)
	}
	return chat, turns, nil
}

// PostMessage appends the user turn, runs the engine, appends its turns in
// order, and returns everything appended for this utterance.
func (s *ChatService) PostMessage(ctx context.Context, chatID string, userID int64, userText string) ([]store.Turn, error) {
	chat, err := s.dbStore.GetChatByID(chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	lock := s.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.dbStore.GetTurnsByChatID(chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	// The user turn is committed before any dispatch begins.
	userTurn := store.Turn{
		ChatID: chatID,
		Role:   store.RoleUser,
		Text:   userText,
	}
	if err := s.dbStore.AppendTurn(&userTurn); err != nil {
		return nil, fmt.Errorf("failed to store user turn: %w", err)
	}
	appended := []store.Turn{userTurn}

	for _, turn := range s.engine.Respond(ctx, history, userText) {
		turn.ChatID = chatID
		if err := s.dbStore.AppendTurn(&turn); err != nil {
			return nil, fmt.Errorf("failed to store assistant turn: %w", err)
		}
		appended = append(appended, turn)
	}

	if chat.Title == nil || *chat.Title == "" {
		go s.generateAndSaveChatTitle(chatID, userID, userText)
	}

	return appended, nil
}

func (s *ChatService) generateAndSaveChatTitle(chatID string, userID int64, basisContent string) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultOracleTimeout)
	defer cancel()

	title, err := s.oracle.SuggestTitle(ctx, basisContent)
	if err != nil {
		s.logger.Warn("failed to generate chat title", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return
	}

	if err := s.dbStore.UpdateChatTitle(chatID, userID, title); err != nil {
		s.logger.Warn("failed to save chat title", zap.String("chat_id", chatID), zap.Error(err))
	}
}
