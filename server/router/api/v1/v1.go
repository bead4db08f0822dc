// Package v1 implements the JSON HTTP API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/kaleow/omnichat/ai/llm"
	"github.com/kaleow/omnichat/chat"
	"github.com/kaleow/omnichat/internal/metrics"
	"github.com/kaleow/omnichat/internal/profile"
	"github.com/kaleow/omnichat/store"
)

type APIV1Service struct {
	Profile    *profile.Profile
	Store      *store.Store
	Dispatcher *llm.Dispatcher
	Sessions   *chat.Manager
	Metrics    *metrics.Exporter

	limiters *userLimiters
	// llmSemaphore caps concurrent provider calls across all users.
	llmSemaphore *semaphore.Weighted
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, dispatcher *llm.Dispatcher, exporter *metrics.Exporter) *APIV1Service {
	return &APIV1Service{
		Profile:    profile,
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    exporter,
		Sessions: chat.NewManager(store, dispatcher,
			chat.WithPersistenceFailureHandler(func(f chat.PersistenceFailure) {
				exporter.RecordProviderError("store", f.Op)
			}),
		),
		limiters:     newUserLimiters(),
		llmSemaphore: semaphore.NewWeighted(16),
	}
}

// RegisterRoutes mounts all v1 endpoints under /api.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")

	api.GET("/models", s.ListModels)
	api.POST("/chat", s.Chat, s.rateLimit)
	api.POST("/image", s.GenerateImage)
	api.POST("/pdf", s.ExtractPDF)

	api.GET("/conversations", s.ListConversations)
	api.POST("/conversations", s.CreateConversation)
	api.GET("/conversations/:id", s.GetConversation)
	api.PATCH("/conversations/:id", s.UpdateConversation)
	api.DELETE("/conversations/:id", s.DeleteConversation)
	api.GET("/conversations/:id/messages", s.ListMessages)
	api.POST("/conversations/:id/messages", s.SubmitMessage, s.rateLimit)
	api.POST("/conversations/:id/cancel", s.CancelGeneration)
	api.GET("/conversations/:id/export", s.ExportConversation)
}

// ListModels returns the model catalog for client pickers.
func (s *APIV1Service) ListModels(c echo.Context) error {
	type modelResponse struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Provider    string `json:"provider"`
		Description string `json:"description"`
		Available   bool   `json:"available"`
	}

	catalog := s.Dispatcher.Registry().Models()
	models := make([]modelResponse, 0, len(catalog))
	for _, m := range catalog {
		models = append(models, modelResponse{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Provider:    string(m.Provider),
			Description: m.Description,
			Available:   s.Dispatcher.Available(m.Provider),
		})
	}
	return c.JSON(http.StatusOK, models)
}

func errorResponse(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}
