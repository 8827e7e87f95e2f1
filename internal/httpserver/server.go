// Package httpserver exposes the signaling and operations endpoints:
// POST /call for WebRTC offers, POST /dial for outbound Twilio calls,
// /healthz, /metrics and the Twilio webhooks.
package httpserver

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/securebank/fraudcall/internal/audit"
	"github.com/securebank/fraudcall/internal/casestore"
	"github.com/securebank/fraudcall/internal/config"
	"github.com/securebank/fraudcall/internal/fraud"
	"github.com/securebank/fraudcall/internal/metrics"
	"github.com/securebank/fraudcall/internal/rtc"
	"github.com/securebank/fraudcall/internal/telephony"
)

// Server bundles the echo router and its dependencies.
type Server struct {
	Echo  *echo.Echo
	store *casestore.Store
	auth  string
	dial  *telephony.Service
}

// New constructs the HTTP server with routes mounted.
func New(cfg config.Config, store *casestore.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, "X-Auth-Token", echo.HeaderAuthorization},
	}))

	s := &Server{Echo: e, store: store, auth: cfg.AuthPassword}

	var auditor *audit.Uploader
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		a, err := audit.New(audit.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("audit storage disabled: %v", err)
		} else {
			auditor = a
		}
	}

	h := rtc.NewHandler(store, cfg.DeepgramAPIKey).
		WithLLM(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel).
		WithTTS(cfg.MurfAPIKey, cfg.MurfVoiceID, cfg.MurfStyle, cfg.DeepgramTTSModel).
		WithAuditor(auditor)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	e.POST("/call", func(c echo.Context) error {
		if !authOK(c.Request(), s.auth) {
			return c.String(http.StatusUnauthorized, "unauthorized")
		}
		var offer rtc.SessionDescription
		if err := c.Bind(&offer); err != nil {
			log.Printf("invalid offer: %v", err)
			return c.String(http.StatusBadRequest, "invalid offer")
		}
		answer, err := h.HandleOffer(c.Request().Context(), offer)
		if err != nil {
			log.Printf("webrtc handle offer failed: %v", err)
			return c.String(http.StatusInternalServerError, "offer failed")
		}
		return c.JSON(http.StatusOK, answer)
	})

	s.dial = telephony.New(telephony.Config{
		AccountSID:    cfg.TwilioAccountSID,
		AuthToken:     cfg.TwilioAuthToken,
		FromNumber:    cfg.TwilioFromNumber,
		PublicBaseURL: cfg.TwilioPublicBaseURL,
	}, fraud.Greeting)
	if cfg.TwilioAuthToken != "" {
		s.dial.RegisterHandlers(e)
	}

	e.POST("/dial", func(c echo.Context) error {
		if !authOK(c.Request(), s.auth) {
			return c.String(http.StatusUnauthorized, "unauthorized")
		}
		var req struct {
			To string `json:"to"`
		}
		if err := c.Bind(&req); err != nil || req.To == "" {
			return c.String(http.StatusBadRequest, "destination number required")
		}
		sid, err := s.dial.DialCustomer(req.To)
		if err != nil {
			log.Printf("dial failed: %v", err)
			return c.String(http.StatusInternalServerError, "dial failed")
		}
		return c.JSON(http.StatusOK, map[string]string{"callSid": sid})
	})

	return s
}

// authOK checks the shared secret via query param, X-Auth-Token header
// or Authorization bearer. Empty expected means auth is disabled.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if r.URL.Query().Get("password") == expected {
		return true
	}
	if r.Header.Get("X-Auth-Token") == expected {
		return true
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") && authz[7:] == expected {
		return true
	}
	return false
}
