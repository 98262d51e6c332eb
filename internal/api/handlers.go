package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"poya.com/medplant-engine/internal/auth"
	"poya.com/medplant-engine/internal/core"
	"poya.com/medplant-engine/internal/knowledge"
	"poya.com/medplant-engine/internal/store"
)

const analyzeTimeout = 90 * time.Second

type APIHandler struct {
	chatService *core.ChatService
	kb          *knowledge.FactStore
	oracle      core.Oracle
	logger      *zap.Logger
}

func NewAPIHandler(cs *core.ChatService, kb *knowledge.FactStore, oracle core.Oracle, logger *zap.Logger) *APIHandler {
	return &APIHandler{chatService: cs, kb: kb, oracle: oracle, logger: logger}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.chatService.GetUserByExternalID(externalUserID)
		if err != nil {
			h.logger.Error("failed to resolve authenticated user", zap.String("user", externalUserID), zap.Error(err))
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "externalUserID", user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.String("user", req.UserID), zap.Error(err))
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.chatService.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		h.logger.Error("failed to create user", zap.String("user", req.UserID), zap.Error(err))
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.chatService.GetUserByExternalID(req.UserID)
	if err != nil {
		h.logger.Error("failed to load user for login", zap.String("user", req.UserID), zap.Error(err))
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		h.logger.Error("failed to generate JWT", zap.String("user", req.UserID), zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

type CreateChatRequest struct {
	FirstMessage *string `json:"first_message,omitempty"`
}

type CreateChatResponse struct {
	*store.Chat
	Turns []store.Turn `json:"turns,omitempty"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req CreateChatRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	chat, turns, err := h.chatService.CreateChat(r.Context(), userID, req.FirstMessage)
	if err != nil {
		h.logger.Error("failed to create chat", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Failed to create chat", http.StatusInternalServerError)
		return
	}

	resp := CreateChatResponse{
		Chat:  chat,
		Turns: turns,
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	chats, err := h.chatService.GetChats(userID)
	if err != nil {
		h.logger.Error("failed to list chats", zap.Int64("user_id", userID), zap.Error(err))
		http.Error(w, "Failed to list chats", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(chats)
}

type GetChatDetailsResponse struct {
	*store.Chat
	Turns []store.Turn `json:"turns"`
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	chatID := chi.URLParam(r, "chatID")

	chat, turns, err := h.chatService.GetChatDetails(chatID, userID)
	if err != nil {
		h.logger.Error("failed to get chat details", zap.String("chat_id", chatID), zap.Error(err))
		http.Error(w, "Failed to get chat details", http.StatusInternalServerError)
		return
	}
	if chat == nil {
		http.Error(w, "Chat not found", http.StatusNotFound)
		return
	}

	resp := GetChatDetailsResponse{
		Chat:  chat,
		Turns: turns,
	}
	json.NewEncoder(w).Encode(resp)
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

// PostMessageHandler submits one user utterance and returns every turn it
// appended: the user turn, the AI (or error) turn, and optionally the
// knowledge turn, in transcript order.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	chatID := chi.URLParam(r, "chatID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "Message text cannot be empty", http.StatusBadRequest)
		return
	}

	turns, err := h.chatService.PostMessage(r.Context(), chatID, userID, req.Text)
	if err != nil {
		if errors.Is(err, core.ErrChatNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			h.logger.Error("failed to post message", zap.String("chat_id", chatID), zap.Error(err))
			http.Error(w, "Failed to post message", http.StatusInternalServerError)
		}
		return
	}
	json.NewEncoder(w).Encode(turns)
}

// Knowledge base handlers

func (h *APIHandler) ListPlantsHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.kb.ListAll())
}

func (h *APIHandler) LookupPlantHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "Query parameter q is required", http.StatusBadRequest)
		return
	}

	record, found := h.kb.Lookup(query)
	if !found {
		http.Error(w, "Plant not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(record)
}

type TeachPlantRequest struct {
	knowledge.PlantRecord
}

func (h *APIHandler) TeachPlantHandler(w http.ResponseWriter, r *http.Request) {
	var req TeachPlantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	// The store does not validate; the name fields are required here.
	if req.ScientificName == "" || req.LocalName == "" {
		http.Error(w, "scientificName and localName are required", http.StatusBadRequest)
		return
	}

	stored := h.kb.Teach(req.PlantRecord)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(stored)
}

type AnalyzePlantRequest struct {
	// Data is base64 media, with or without a data-URL prefix.
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

var dataURLPrefix = regexp.MustCompile(`^data:(image/\w+|application/pdf);base64,`)

// decodeMediaPayload strips an optional data-URL prefix and decodes the
// base64 body.
func decodeMediaPayload(data string) ([]byte, error) {
	clean := dataURLPrefix.ReplaceAllString(data, "")
	return base64.StdEncoding.DecodeString(clean)
}

// AnalyzePlantHandler extracts a structured plant record from uploaded
// media. It does not store the record; the client reviews it and saves via
// the teach endpoint.
func (h *APIHandler) AnalyzePlantHandler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzePlantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Data == "" {
		http.Error(w, "Media data is required", http.StatusBadRequest)
		return
	}
	if req.MimeType == "" {
		req.MimeType = "image/jpeg"
	}

	media, err := decodeMediaPayload(req.Data)
	if err != nil {
		http.Error(w, "Media data is not valid base64", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()

	record, err := h.oracle.ExtractPlantRecord(ctx, media, req.MimeType)
	if err != nil {
		var notPlant *core.NotPlantDataError
		if errors.As(err, &notPlant) {
			// Irrelevant input is a domain outcome with a user-facing
			// explanation, not a server failure.
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"error": notPlant.Message})
			return
		}
		h.logger.Error("plant analysis failed", zap.Error(err))
		http.Error(w, "Failed to analyze document", http.StatusBadGateway)
		return
	}

	json.NewEncoder(w).Encode(record)
}
