package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/camden-git/annotationsys/config"
	"github.com/camden-git/annotationsys/editor"
	"github.com/camden-git/annotationsys/gateway"
	"github.com/camden-git/annotationsys/media"
	"github.com/camden-git/annotationsys/realtime"
)

const (
	uploadsRoutePrefix    = "/uploads/"
	thumbnailsRoutePrefix = "/thumbnails/"
	requestTimeout        = 60 * time.Second
	jsonBodyLimit         = 100 << 20
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Cfg       config.Config
	Service   gateway.Service
	Session   *editor.Session
	Hub       *realtime.Hub
	Processor *media.Processor
}

// NewRouter builds the complete HTTP handler: the persistence API, the
// editor API and the static media routes.
func NewRouter(d Deps) (http.Handler, error) {
	imageHandler := &ImageHandler{Service: d.Service, Processor: d.Processor, Cfg: d.Cfg}
	annotationHandler := &AnnotationHandler{Service: d.Service}
	projectHandler := &ProjectHandler{Service: d.Service}
	editorHandler := &EditorHandler{Session: d.Session, Hub: d.Hub, Cfg: d.Cfg}

	uploads, err := AssetServer(d.Cfg.MediaStoragePath, d.Cfg.UploadsSubDir, uploadsRoutePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to serve uploads: %w", err)
	}
	thumbnails, err := AssetServer(d.Cfg.MediaStoragePath, d.Cfg.ThumbnailsSubDir, thumbnailsRoutePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to serve thumbnails: %w", err)
	}

	r := chi.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   d.Cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(corsMiddleware.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Get(uploadsRoutePrefix+"*", uploads)
	r.Get(thumbnailsRoutePrefix+"*", thumbnails)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", imageHandler.Health)

		// the websocket outlives any request timeout
		r.Get("/editor/ws", editorHandler.ServeWS)

		// exports stream for as long as the archive takes
		r.Get("/export", projectHandler.Export)

		// uploads carry their own body limit
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Post("/upload", imageHandler.Upload)
			r.Post("/editor/upload", editorHandler.Upload)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/{projectId}/export", projectHandler.Export)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))
				r.Use(MaxBodySize(jsonBodyLimit))
				r.Get("/", projectHandler.ListProjects)
				r.Post("/", projectHandler.CreateProject)
				r.Get("/{projectId}", projectHandler.GetProject)
				r.Put("/{projectId}", projectHandler.UpdateProject)
				r.Delete("/{projectId}", projectHandler.DeleteProject)
				r.Post("/{projectId}/images", projectHandler.AddImage)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Use(MaxBodySize(jsonBodyLimit))

			r.Route("/images", func(r chi.Router) {
				r.Get("/", imageHandler.ListImages)
				r.Get("/{imageId}", imageHandler.GetImage)
				r.Delete("/{imageId}", imageHandler.DeleteImage)
				r.Get("/{imageId}/preview", imageHandler.Preview)
			})

			r.Route("/annotations/{imageId}", func(r chi.Router) {
				r.Get("/", annotationHandler.GetAnnotation)
				r.Post("/", annotationHandler.SaveAnnotation)
				r.Put("/", annotationHandler.UpdateAnnotation)
			})

			r.Route("/editor", func(r chi.Router) {
				r.Get("/state", editorHandler.GetState)
				r.Post("/images/refresh", editorHandler.RefreshImages)
				r.Delete("/images/{imageId}", editorHandler.DeleteImage)
				r.Put("/active", editorHandler.SetActive)
				r.Put("/tool", editorHandler.SetTool)
				r.Put("/brush", editorHandler.SetBrush)
				r.Put("/selection", editorHandler.SetSelection)
				r.Post("/pointer/{action}", editorHandler.Pointer)
				r.Post("/polygon/close", editorHandler.ClosePolygon)
				r.Post("/cancel", editorHandler.Cancel)
				r.Put("/entities/{kind}", editorHandler.ReplaceEntities)
				r.Delete("/entities/{entityId}", editorHandler.DeleteEntity)
				r.Post("/undo", editorHandler.Undo)
				r.Post("/redo", editorHandler.Redo)
				r.Post("/save", editorHandler.Save)
			})
		})
	})

	return r, nil
}
