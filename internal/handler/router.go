package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"storagetree/internal/auth"
	"storagetree/internal/logging"
	"storagetree/internal/metrics"
)

type Handlers struct {
	Folders *FolderHandler
	Files   *FileHandler
	Quota   *StorageQuotaHandler
	Admin   *AdminHandler
}

type RouterConfig struct {
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Auth           *auth.Authenticator
}

func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Get("/folders", h.Folders.GetFolderContent)
		r.Post("/folders", h.Folders.CreateFolder)
		r.Route("/folders/{id}", func(r chi.Router) {
			r.Get("/", h.Folders.GetFolderContent)
			r.Delete("/", h.Folders.DeleteFolder)
			r.Put("/rename", h.Folders.RenameFolder)
			r.Put("/move", h.Folders.MoveFolder)
		})

		r.Post("/files", h.Files.UploadFile)
		r.Route("/files/{id}", func(r chi.Router) {
			r.Get("/", h.Files.DownloadFile)
			r.Delete("/", h.Files.DeleteFile)
			r.Put("/rename", h.Files.RenameFile)
			r.Put("/move", h.Files.MoveFile)
		})

		r.Get("/quota", h.Quota.GetQuotaInfo)

		r.Route("/admin/users", func(r chi.Router) {
			r.Get("/", h.Admin.ListUsers)
			r.Post("/", h.Admin.CreateUser)
			r.Put("/{id}/disk-space", h.Quota.UpdateDiskSpace)
			r.Post("/{id}/recalculate", h.Quota.Recalculate)
		})
	})

	return r
}
