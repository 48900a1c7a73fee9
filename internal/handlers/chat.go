package handlers

import (
	"context"
	"encoding/json"
	"html"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/serverpanel/ai-assistant/internal/i18n"
	"github.com/serverpanel/ai-assistant/internal/middleware"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/pkg/markdown"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 64 << 10

// ChatService is the chat pipeline the handlers drive.
type ChatService interface {
	ProcessChat(ctx context.Context, serverID, userID string, req models.ChatRequest) (string, error)
	GetHistory(ctx context.Context, serverID, userID string) ([]models.ChatExchange, error)
}

// ChatHandler serves the end-user chat endpoints
type ChatHandler struct {
	chat      ChatService
	localizer *i18n.Localizer
	logger    *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat ChatService, localizer *i18n.Localizer, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		chat:      chat,
		localizer: localizer,
		logger:    logger,
	}
}

type chatResponse struct {
	Success      bool   `json:"success"`
	Response     string `json:"response"`
	ResponseHTML string `json:"response_html"`
}

type historyResponse struct {
	Success bool                  `json:"success"`
	History []models.ChatExchange `json:"history"`
}

type chatRequestKey struct{}

// ValidateRequest decodes and validates the chat body before anything
// downstream runs, so rejected requests never reach the rate limiter.
func (h *ChatHandler) ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decodeChatRequest(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chatRequestKey{}, req)))
	})
}

func (h *ChatHandler) decodeChatRequest(w http.ResponseWriter, r *http.Request) (models.ChatRequest, bool) {
	lang := r.Header.Get("Accept-Language")

	var req models.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, h.localizer.Get(lang, i18n.MsgInvalidBody, nil))
		return req, false
	}

	if messageID, data := validateChatRequest(&req); messageID != "" {
		middleware.WriteError(w, http.StatusUnprocessableEntity, h.localizer.Get(lang, messageID, data))
		return req, false
	}
	return req, true
}

// Chat handles POST /servers/{id}/ai/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	lang := r.Header.Get("Accept-Language")

	req, ok := r.Context().Value(chatRequestKey{}).(models.ChatRequest)
	if !ok {
		if req, ok = h.decodeChatRequest(w, r); !ok {
			return
		}
	}

	serverID := mux.Vars(r)["id"]
	userID := middleware.UserIDFromContext(r.Context())

	response, err := h.chat.ProcessChat(r.Context(), serverID, userID, req)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, h.localizer.Get(lang, i18n.MsgRequestFailed, map[string]interface{}{
			"Cause": html.EscapeString(err.Error()),
		}))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, chatResponse{
		Success:      true,
		Response:     response,
		ResponseHTML: markdown.ToHTML(response),
	})
}

// History handles GET /servers/{id}/ai/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	serverID := mux.Vars(r)["id"]
	userID := middleware.UserIDFromContext(r.Context())

	exchanges, err := h.chat.GetHistory(r.Context(), serverID, userID)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"server_id": serverID,
			"user_id":   userID,
		}).Error("Failed to load chat history")
		middleware.WriteError(w, http.StatusInternalServerError,
			h.localizer.Get(r.Header.Get("Accept-Language"), i18n.MsgInternalError, nil))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, historyResponse{Success: true, History: exchanges})
}

// validateChatRequest normalizes req and returns the message id of the
// first violated rule, or "" when the request is acceptable.
func validateChatRequest(req *models.ChatRequest) (string, map[string]interface{}) {
	req.FilePath = strings.TrimSpace(req.FilePath)

	if strings.TrimSpace(req.Message) == "" {
		return i18n.MsgMessageRequired, nil
	}
	if utf8.RuneCountInString(req.Message) > models.MaxMessageLength {
		return i18n.MsgMessageTooLong, map[string]interface{}{"Max": models.MaxMessageLength}
	}
	if utf8.RuneCountInString(req.FilePath) > models.MaxFilePathLength {
		return i18n.MsgFilePathTooLong, map[string]interface{}{"Max": models.MaxFilePathLength}
	}
	return "", nil
}
