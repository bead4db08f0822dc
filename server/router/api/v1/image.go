package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/kaleow/omnichat/internal/profile"
	"github.com/kaleow/omnichat/store"
)

type imageRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
	// ConversationID attaches the generated image to a conversation as an
	// assistant image message. Zero leaves the image unattached.
	ConversationID int32 `json:"conversation_id"`
}

type imageResponse struct {
	ImageURL string           `json:"imageUrl"`
	Message  *messageResponse `json:"message,omitempty"`
}

var allowedImageSizes = map[string]bool{
	openai.CreateImageSize256x256:   true,
	openai.CreateImageSize512x512:   true,
	openai.CreateImageSize1024x1024: true,
}

// GenerateImage creates an image from a text prompt via the OpenAI image
// API. Image generation is OpenAI-only; without that credential the
// endpoint reports the missing configuration.
func (s *APIV1Service) GenerateImage(c echo.Context) error {
	request := &imageRequest{}
	if err := c.Bind(request); err != nil {
		return errorResponse(c, http.StatusBadRequest, "malformed request body")
	}
	if request.Prompt == "" {
		return errorResponse(c, http.StatusBadRequest, "prompt must not be empty")
	}

	var conv *store.Conversation
	if request.ConversationID != 0 {
		var err error
		conv, err = s.findOwnedConversation(c, request.ConversationID)
		if err != nil {
			return errorResponse(c, http.StatusInternalServerError, "failed to load conversation")
		}
		if conv == nil {
			return errorResponse(c, http.StatusNotFound, "conversation not found")
		}
	}

	if s.Profile.OpenAIAPIKey == "" {
		s.Metrics.RecordImageRequest(false)
		return errorResponse(c, http.StatusServiceUnavailable,
			"image generation is unavailable: add "+profile.EnvOpenAIAPIKey+" to the server environment")
	}

	size := request.Size
	if !allowedImageSizes[size] {
		size = openai.CreateImageSize1024x1024
	}

	config := openai.DefaultConfig(s.Profile.OpenAIAPIKey)
	if s.Profile.OpenAIBaseURL != "" {
		config.BaseURL = s.Profile.OpenAIBaseURL
	}
	client := openai.NewClientWithConfig(config)

	resp, err := client.CreateImage(c.Request().Context(), openai.ImageRequest{
		Prompt:         request.Prompt,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil || len(resp.Data) == 0 {
		slog.Error("image generation failed", "error", err)
		s.Metrics.RecordImageRequest(false)
		return errorResponse(c, http.StatusInternalServerError, "image generation failed")
	}

	s.Metrics.RecordImageRequest(true)
	response := imageResponse{ImageURL: resp.Data[0].URL}

	if conv != nil {
		now := time.Now().UnixMilli()
		msg, err := s.Store.CreateMessage(c.Request().Context(), &store.Message{
			UID:            uuid.NewString(),
			ConversationID: conv.ID,
			Role:           "assistant",
			Content:        request.Prompt,
			Type:           store.MessageTypeImage,
			ImageURL:       response.ImageURL,
			CreatedTs:      now,
		})
		if err != nil {
			// The image itself was generated; the caller still gets the URL.
			slog.Error("failed to save image message", "error", err)
		} else {
			if _, err := s.Store.UpdateConversation(c.Request().Context(), &store.UpdateConversation{
				ID:        conv.ID,
				UpdatedTs: &now,
			}); err != nil {
				slog.Error("failed to touch conversation", "error", err)
			}
			converted := convertMessage(msg)
			response.Message = &converted
		}
	}

	return c.JSON(http.StatusOK, response)
}
