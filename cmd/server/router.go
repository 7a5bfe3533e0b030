package main

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/cadence-api/internal/api"
	apiMiddleware "github.com/phrazzld/cadence-api/internal/api/middleware"
	"github.com/phrazzld/cadence-api/internal/platform/musicapi"
)

// setupRouter creates the router with every route and its middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.Trace(app.logger))
	r.Use(middleware.Recoverer)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	contentHandler := api.NewContentHandler(app.contents, app.dispatcher, app.logger)
	artworkHandler := api.NewArtworkHandler(app.thumbnails, app.logger)
	youtubeHandler := api.NewYoutubeHandler(app.oauth, app.stateSigner, app.stateLedger, api.YoutubeHandlerConfig{
		ReturnURL:    app.config.Youtube.ReturnURL,
		SecureCookie: strings.HasPrefix(app.config.Youtube.RedirectURL, "https://"),
	}, app.logger)
	webhookHandler := api.NewWebhookHandler(app.config.Provider.WebhookSecret, musicapi.ParseCallback, app.reconciler, app.logger)
	realtimeHandler := api.NewRealtimeHandler(app.contents, app.hub, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Provider and browser redirects carry no bearer token.
		r.Post("/webhooks/provider", webhookHandler.ProviderCallback)
		r.Get("/youtube/callback", youtubeHandler.Callback)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/contents", contentHandler.CreateContent)
			r.Route("/contents/{"+api.ParamContentID+"}", func(r chi.Router) {
				r.Get("/", contentHandler.GetContent)
				r.Post("/generations", contentHandler.DispatchAll)
				r.Post("/generations/single", contentHandler.DispatchSingle)
				r.Post("/generations/refresh", contentHandler.RefreshGenerations)
				r.Delete("/generations/{"+api.ParamGenerationID+"}", contentHandler.DeleteGeneration)
				r.Delete("/tracks/{"+api.ParamTrackID+"}", contentHandler.DeleteTrack)
				r.Put("/artwork", artworkHandler.UploadArtwork)
				r.Get("/artwork/preview", artworkHandler.PreviewThumbnail)
			})

			r.Get("/youtube", youtubeHandler.GetConnection)
			r.Delete("/youtube", youtubeHandler.Disconnect)
			r.Get("/youtube/authorize", youtubeHandler.Authorize)

			r.Get("/realtime", realtimeHandler.Subscribe)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
