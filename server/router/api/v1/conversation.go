package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/kaleow/omnichat/chat"
	"github.com/kaleow/omnichat/store"
)

type conversationResponse struct {
	ID        int32  `json:"id"`
	UID       string `json:"uid"`
	Title     string `json:"title"`
	Model     string `json:"model"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type messageResponse struct {
	ID        int32  `json:"id"`
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Model     string `json:"model,omitempty"`
	CreatedTs int64  `json:"createdTs"`
	Edited    bool   `json:"edited"`
}

func convertConversation(c *store.Conversation) conversationResponse {
	return conversationResponse{
		ID:        c.ID,
		UID:       c.UID,
		Title:     c.Title,
		Model:     c.Model,
		CreatedTs: c.CreatedTs,
		UpdatedTs: c.UpdatedTs,
	}
}

func convertMessage(m *store.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		UID:       m.UID,
		Role:      m.Role,
		Content:   m.Content,
		Type:      string(m.Type),
		ImageURL:  m.ImageURL,
		Model:     m.Model,
		CreatedTs: m.CreatedTs,
		Edited:    m.Edited,
	}
}

func conversationID(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(id), nil
}

// findOwnedConversation loads a conversation and checks it belongs to the
// caller.
func (s *APIV1Service) findOwnedConversation(c echo.Context, id int32) (*store.Conversation, error) {
	uid := userID(c)
	conversations, err := s.Store.ListConversations(c.Request().Context(), &store.FindConversation{
		ID:     &id,
		UserID: &uid,
	})
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return nil, nil
	}
	return conversations[0], nil
}

// ListConversations returns the caller's conversations, most recent first.
func (s *APIV1Service) ListConversations(c echo.Context) error {
	uid := userID(c)
	conversations, err := s.Store.ListConversations(c.Request().Context(), &store.FindConversation{UserID: &uid})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to list conversations")
	}

	response := make([]conversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		response = append(response, convertConversation(conv))
	}
	return c.JSON(http.StatusOK, response)
}

type createConversationRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

// CreateConversation creates an empty conversation. Conversations also come
// into existence implicitly on the first submitted message.
func (s *APIV1Service) CreateConversation(c echo.Context) error {
	request := &createConversationRequest{}
	if err := c.Bind(request); err != nil {
		return errorResponse(c, http.StatusBadRequest, "malformed request body")
	}

	model := request.Model
	if model == "" {
		model = s.Dispatcher.Registry().Default().ID
	}

	now := time.Now().UnixMilli()
	conv, err := s.Store.CreateConversation(c.Request().Context(), &store.Conversation{
		UID:       shortuuid.New(),
		UserID:    userID(c),
		Title:     request.Title,
		Model:     model,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to create conversation")
	}
	return c.JSON(http.StatusOK, convertConversation(conv))
}

// GetConversation returns one conversation with its messages.
func (s *APIV1Service) GetConversation(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid conversation id")
	}
	conv, err := s.findOwnedConversation(c, id)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load conversation")
	}
	if conv == nil {
		return errorResponse(c, http.StatusNotFound, "conversation not found")
	}

	messages, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{ConversationID: &id})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load messages")
	}

	messageList := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		messageList = append(messageList, convertMessage(m))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversation": convertConversation(conv),
		"messages":     messageList,
	})
}

type updateConversationRequest struct {
	Title *string `json:"title"`
	Model *string `json:"model"`
}

// UpdateConversation renames a conversation or switches its model.
func (s *APIV1Service) UpdateConversation(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid conversation id")
	}
	conv, err := s.findOwnedConversation(c, id)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load conversation")
	}
	if conv == nil {
		return errorResponse(c, http.StatusNotFound, "conversation not found")
	}

	request := &updateConversationRequest{}
	if err := c.Bind(request); err != nil {
		return errorResponse(c, http.StatusBadRequest, "malformed request body")
	}
	if request.Title == nil && request.Model == nil {
		return errorResponse(c, http.StatusBadRequest, "nothing to update")
	}

	now := time.Now().UnixMilli()
	updated, err := s.Store.UpdateConversation(c.Request().Context(), &store.UpdateConversation{
		ID:        id,
		Title:     request.Title,
		Model:     request.Model,
		UpdatedTs: &now,
	})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to update conversation")
	}
	return c.JSON(http.StatusOK, convertConversation(updated))
}

// DeleteConversation removes a conversation and its messages.
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid conversation id")
	}
	conv, err := s.findOwnedConversation(c, id)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load conversation")
	}
	if conv == nil {
		return errorResponse(c, http.StatusNotFound, "conversation not found")
	}

	if err := s.Store.DeleteConversation(c.Request().Context(), &store.DeleteConversation{ID: id}); err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to delete conversation")
	}
	s.Sessions.Evict(userID(c), id)
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

// ListMessages returns a conversation's transcript in chronological order.
func (s *APIV1Service) ListMessages(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid conversation id")
	}
	conv, err := s.findOwnedConversation(c, id)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load conversation")
	}
	if conv == nil {
		return errorResponse(c, http.StatusNotFound, "conversation not found")
	}

	messages, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{ConversationID: &id})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load messages")
	}

	response := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, convertMessage(m))
	}
	return c.JSON(http.StatusOK, response)
}

type submitMessageRequest struct {
	Text               string  `json:"text"`
	Model              string  `json:"model"`
	Temperature        float32 `json:"temperature"`
	MaxTokens          int     `json:"max_tokens"`
	CustomInstructions string  `json:"custom_instructions"`
}

// SubmitMessage runs a full conversation turn: append the user message,
// call the provider, persist and return the updated transcript.
func (s *APIV1Service) SubmitMessage(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid conversation id")
	}
	conv, err := s.findOwnedConversation(c, id)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load conversation")
	}
	if conv == nil {
		return errorResponse(c, http.StatusNotFound, "conversation not found")
	}

	request := &submitMessageRequest{}
	if err := c.Bind(request); err != nil {
		return errorResponse(c, http.StatusBadRequest, "malformed request body")
	}
	if request.Text == "" {
		return errorResponse(c, http.StatusBadRequest, "text must not be empty")
	}

	model := request.Model
	if model == "" {
		model = conv.Model
	}
	session, err := s.Sessions.Session(c.Request().Context(), userID(c), id, chat.Settings{
		Model:              model,
		Temperature:        request.Temperature,
		MaxTokens:          request.MaxTokens,
		CustomInstructions: request.CustomInstructions,
	})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to open session")
	}
	if session.State() != chat.StateIdle {
		return errorResponse(c, http.StatusConflict, "a response is already in progress")
	}

	settings := session.Settings()
	settings.Model = model
	settings.Temperature = request.Temperature
	settings.MaxTokens = request.MaxTokens
	settings.CustomInstructions = request.CustomInstructions
	session.UpdateSettings(settings)

	if err := s.llmSemaphore.Acquire(c.Request().Context(), 1); err != nil {
		return errorResponse(c, http.StatusServiceUnavailable, "server is overloaded, try again shortly")
	}
	defer s.llmSemaphore.Release(1)

	if err := session.Submit(c.Request().Context(), request.Text); err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to submit message")
	}

	transcript := session.Messages()
	response := make([]messageResponse, 0, len(transcript))
	for i := range transcript {
		response = append(response, convertMessage(&transcript[i]))
	}
	return c.JSON(http.StatusOK, response)
}

// CancelGeneration aborts the in-flight response for a conversation. Partial
// streamed content is kept.
func (s *APIV1Service) CancelGeneration(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid conversation id")
	}
	session, err := s.Sessions.Session(c.Request().Context(), userID(c), id, chat.Settings{})
	if err != nil {
		if chat.IsNotFound(err) {
			return errorResponse(c, http.StatusNotFound, "conversation not found")
		}
		return errorResponse(c, http.StatusInternalServerError, "failed to open session")
	}
	session.Cancel()
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": true})
}

// ExportConversation renders the transcript as markdown or HTML.
func (s *APIV1Service) ExportConversation(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return errorResponse(c, http.StatusBadRequest, "invalid conversation id")
	}
	conv, err := s.findOwnedConversation(c, id)
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load conversation")
	}
	if conv == nil {
		return errorResponse(c, http.StatusNotFound, "conversation not found")
	}

	messages, err := s.Store.ListMessages(c.Request().Context(), &store.FindMessage{ConversationID: &id})
	if err != nil {
		return errorResponse(c, http.StatusInternalServerError, "failed to load messages")
	}

	switch c.QueryParam("format") {
	case "html":
		page, err := chat.ExportHTML(conv, messages)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, "failed to render transcript")
		}
		return c.HTML(http.StatusOK, page)
	case "", "markdown":
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(chat.ExportMarkdown(conv, messages)))
	default:
		return errorResponse(c, http.StatusBadRequest, "format must be markdown or html")
	}
}
