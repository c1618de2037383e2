package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/convenehq/convene/internal/handlers"
	"github.com/convenehq/convene/internal/middleware"
)

// RegisterAllRoutes wires every route module onto one router.
func RegisterAllRoutes(ms *handlers.MeetingService, sh *handlers.SocketHandler) *mux.Router {
	router := mux.NewRouter()

	registerMeetingRoutes(router, ms)
	registerSocketRoutes(router, sh)

	return router
}

func registerMeetingRoutes(router *mux.Router, ms *handlers.MeetingService) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware, middleware.ResponseWrapperMiddleware)

	api.HandleFunc("/meetings/{meetingId}/navigate", ms.NavigateMeeting).Methods(http.MethodPost)
	api.HandleFunc("/teams/{teamId}/meeting/end", ms.EndMeeting).Methods(http.MethodPost)
}

func registerSocketRoutes(router *mux.Router, sh *handlers.SocketHandler) {
	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(middleware.AuthMiddleware)
	ws.HandleFunc("", sh.HandleSocket)
}
