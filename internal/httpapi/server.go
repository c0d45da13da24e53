package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ehharris/twilio-live-call-routing/internal/callflow"
	"github.com/ehharris/twilio-live-call-routing/internal/observability"
	"github.com/ehharris/twilio-live-call-routing/internal/protocol"
	"github.com/ehharris/twilio-live-call-routing/internal/twiml"
)

// CallFlow handles one webhook leg and produces the voice-response document.
type CallFlow interface {
	Serve(ctx context.Context, ev protocol.Event, token string) *twiml.Response
}

// Server exposes the telephony webhook plus health and metrics endpoints.
type Server struct {
	flow   CallFlow
	logger *logrus.Logger
}

func New(flow CallFlow, logger *logrus.Logger) *Server {
	return &Server{
		flow:   flow,
		logger: logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	// The gateway posts form-encoded webhook events; GET is accepted too so
	// redirect continuations work regardless of the gateway's method.
	r.Post(callflow.WebhookPath, s.handleVoice)
	r.Get(callflow.WebhookPath, s.handleVoice)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	ev := protocol.ParseEvent(r)
	token := r.FormValue("state")

	res := s.flow.Serve(r.Context(), ev, token)
	body, err := res.Render()
	if err != nil {
		s.logger.WithError(err).Error("voice response render failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
