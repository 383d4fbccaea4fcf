package router

import (
	"net/http"

	"docshare/config"
	docHandler "docshare/internal/document"
	"docshare/internal/document/service"
	"docshare/middleware"
	"docshare/socket"

	"github.com/gorilla/mux"
)

func Setup(cfg *config.Config, docService *service.DocumentService, hub *socket.Hub) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"docshare"}`))
	}).Methods(http.MethodGet)

	auth := middleware.Identity(cfg.JWTSecret)

	// WebSocket
	ws := router.Path("/ws").Subrouter()
	ws.Use(auth)
	ws.Methods(http.MethodGet).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, docService.Authorize, w, r, middleware.UserID(r.Context()))
	})

	// REST API, served at the root and under /api.
	h := docHandler.NewDocumentHandler(docService)
	for _, prefix := range []string{"", "/api"} {
		api := router.PathPrefix(prefix + "/documents").Subrouter()
		api.Use(auth)
		api.HandleFunc("", h.GetDocuments).Methods(http.MethodGet)
		api.HandleFunc("", h.CreateDocument).Methods(http.MethodPost)
		api.HandleFunc("/{docId}", h.GetDocument).Methods(http.MethodGet)
		api.HandleFunc("/{docId}", h.UpdateDocument).Methods(http.MethodPut)
		api.HandleFunc("/{docId}", h.DeleteDocument).Methods(http.MethodDelete)
		api.HandleFunc("/{docId}/collaborators", h.AddCollaborator).Methods(http.MethodPost)
		api.HandleFunc("/{docId}/collaborators/{collaboratorId}", h.RemoveCollaborator).Methods(http.MethodDelete)
	}

	return middleware.RequestLogger(middleware.CORSMiddleware(cfg.AllowedOrigins)(router))
}
