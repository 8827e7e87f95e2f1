// Package telephony places outbound fraud-alert calls through Twilio
// and serves the signed webhooks Twilio calls back into.
package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type Config struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// PublicBaseURL is the externally reachable base for webhook URLs,
	// e.g. https://fraudcall.example.com. Derived from the request when empty.
	PublicBaseURL string
}

// Service wraps the Twilio REST client for outbound dialing and webhook
// handling. Greeting text is spoken before the media stream attaches.
type Service struct {
	cfg      Config
	client   *twilio.RestClient
	greeting string
}

func New(cfg Config, greeting string) *Service {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Service{cfg: cfg, client: client, greeting: greeting}
}

// Enabled reports whether outbound dialing is configured.
func (s *Service) Enabled() bool {
	return s.cfg.AccountSID != "" && s.cfg.AuthToken != "" && s.cfg.FromNumber != ""
}

// DialCustomer places an outbound call to the customer. Twilio fetches
// call instructions from our /twilio/voice webhook once the customer
// answers. Returns the call SID.
func (s *Service) DialCustomer(to string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("telephony: outbound dialing not configured")
	}
	if to == "" {
		return "", fmt.Errorf("telephony: destination number required")
	}
	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(s.cfg.FromNumber)
	params.SetUrl(s.cfg.PublicBaseURL + "/twilio/voice")
	params.SetMethod("POST")
	params.SetStatusCallback(s.cfg.PublicBaseURL + "/twilio/status")
	params.SetStatusCallbackMethod("POST")

	resp, err := s.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	log.Printf("telephony: dialed %s (sid=%s)", to, sid)
	return sid, nil
}

// RegisterHandlers mounts the Twilio webhook routes.
func (s *Service) RegisterHandlers(e *echo.Echo) {
	e.POST("/twilio/voice", s.handleVoice, s.authMiddleware)
	e.POST("/twilio/status", s.handleStatus, s.authMiddleware)
}

// handleVoice answers with TwiML: speak the opening line, then hold the
// line open long enough for the customer to connect via the web client.
func (s *Service) handleVoice(c echo.Context) error {
	params := c.Get("twilioParams").(map[string]string)
	log.Printf("telephony: voice webhook from=%s sid=%s", params["From"], params["CallSid"])

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Say voice="Polly.Matthew">%s</Say>
  <Pause length="60"/>
  <Hangup/>
</Response>`, xmlEscape(s.greeting))

	return c.Blob(http.StatusOK, "text/xml", []byte(twiml))
}

func (s *Service) handleStatus(c echo.Context) error {
	params := c.Get("twilioParams").(map[string]string)
	log.Printf("telephony: call %s status=%s duration=%s",
		params["CallSid"], params["CallStatus"], params["CallDuration"])
	return c.String(http.StatusOK, "OK")
}

// authMiddleware validates X-Twilio-Signature over the form body and
// stashes the parsed params in the echo context.
func (s *Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.AuthToken == "" {
			return c.String(http.StatusInternalServerError, "Missing TWILIO_AUTH_TOKEN")
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to read body")
		}
		formData, err := url.ParseQuery(string(body))
		if err != nil {
			return c.String(http.StatusBadRequest, "Failed to parse form")
		}
		params := make(map[string]string)
		for key, values := range formData {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		signature := c.Request().Header.Get("X-Twilio-Signature")
		requestURL := s.webhookURL(c.Request(), c.Request().URL.Path)
		if !s.validateSignature(signature, requestURL, params) {
			return c.String(http.StatusUnauthorized, "Invalid signature")
		}

		c.Set("twilioParams", params)
		return next(c)
	}
}

func (s *Service) validateSignature(signature, url string, params map[string]string) bool {
	data := url
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(s.cfg.AuthToken))
	mac.Write([]byte(data))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *Service) webhookURL(r *http.Request, path string) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL + path
	}
	scheme := "https"
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
		if strings.Contains(host, "localhost") || strings.Contains(host, "127.0.0.1") {
			scheme = "http"
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
