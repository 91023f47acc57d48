package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signage-fleet-server/internal/config"
	"signage-fleet-server/internal/middleware"
	"signage-fleet-server/pkg/response"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Pairing       *PairingHandler
	DeviceSession *DeviceSessionHandler
	Devices       *DeviceHandler
	Companies     *CompanyHandler
	Campaigns     *CampaignHandler
	WebSocket     *WebSocketHandler
}

// NewRouter mounts every route of the fleet API.
func NewRouter(cfg *config.Config, h Handlers, sessions middleware.DeviceAuthenticator, db Pinger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	limit := func(fn http.HandlerFunc) http.Handler { return fn }
	if cfg.RateLimit.Enabled && cfg.RateLimit.PairRequestsPerMinute > 0 {
		limiter := httprate.LimitByIP(cfg.RateLimit.PairRequestsPerMinute, time.Minute)
		limit = func(fn http.HandlerFunc) http.Handler { return limiter(fn) }
	}
	api.Handle("/pair", limit(h.Pairing.Pair)).Methods("POST", "OPTIONS")
	api.Handle("/pair/code", limit(h.Pairing.PairWithCode)).Methods("POST", "OPTIONS")
	api.Handle("/pair/link/{token}", limit(h.Pairing.PairWithLink)).Methods("GET", "OPTIONS")

	deviceAPI := api.PathPrefix("/device").Subrouter()
	deviceAPI.Use(middleware.DeviceAuth(sessions, cfg.Server.IsProduction()))
	deviceAPI.HandleFunc("/me", h.DeviceSession.Me).Methods("GET", "OPTIONS")
	deviceAPI.HandleFunc("/socket-ticket", h.DeviceSession.SocketTicket).Methods("GET", "OPTIONS")
	deviceAPI.HandleFunc("/playlist", h.DeviceSession.Playlist).Methods("GET", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.OperatorSecret))

	protected.HandleFunc("/companies", h.Companies.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/companies", h.Companies.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/companies/{id}", h.Companies.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/companies/{id}", h.Companies.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/companies/{id}", h.Companies.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/companies/{id}/sectors", h.Companies.CreateSector).Methods("POST", "OPTIONS")
	protected.HandleFunc("/companies/{id}/sectors/{sectorId}", h.Companies.DeleteSector).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/devices", h.Devices.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices", h.Devices.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/devices/refresh", h.Devices.RefreshCompany).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices/{id}", h.Devices.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/devices/{id}", h.Devices.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/devices/{id}", h.Devices.Delete).Methods("DELETE", "OPTIONS")
	protected.HandleFunc("/devices/{id}/revoke", h.Devices.Revoke).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices/{id}/reactivate", h.Devices.Reactivate).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices/{id}/refresh", h.Devices.Refresh).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices/{id}/pairing-code", h.Pairing.IssuePairingCode).Methods("POST", "OPTIONS")
	protected.HandleFunc("/devices/{id}/magic-link", h.Pairing.IssueMagicLink).Methods("POST", "OPTIONS")

	protected.HandleFunc("/campaigns", h.Campaigns.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/campaigns", h.Campaigns.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/campaigns/{id}", h.Campaigns.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/campaigns/{id}", h.Campaigns.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/campaigns/{id}", h.Campaigns.Delete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/ws/device", h.WebSocket.HandleDevice)
	r.HandleFunc("/ws/admin", h.WebSocket.HandleAdmin)

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler(db)).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
			return
		}
		response.Success(w, map[string]string{"status": "healthy", "service": "signage-fleet-server"})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]interface{}{
		"message": "Signage Fleet Server API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"/api/v1/pair":                 "POST",
			"/api/v1/device/socket-ticket": "GET (device session)",
			"/api/v1/device/playlist":      "GET (device session)",
			"/ws/device":                   "GET ?ticket=",
			"/ws/admin":                    "GET ?token=",
		},
	})
}
