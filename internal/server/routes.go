package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job routes: POST /upload, GET /status/{id}, POST /signal-start/{id},
	// GET /download/{id}, GET /jobs
	mux.HandleFunc("/upload", s.app.JobHandler.UploadHandler)
	mux.HandleFunc("/status/", s.app.JobHandler.StatusHandler)
	mux.HandleFunc("/signal-start/", s.app.JobHandler.SignalStartHandler)
	mux.HandleFunc("/download/", s.app.JobHandler.DownloadHandler)
	mux.HandleFunc("/jobs", s.app.JobHandler.ListHandler)

	// WebSocket route
	mux.HandleFunc("/ws/status/", s.app.StreamHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
