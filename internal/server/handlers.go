package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/law-makers/cvpress/internal/callback"
	"github.com/law-makers/cvpress/internal/engine"
	"github.com/law-makers/cvpress/internal/engine/extract"
	"github.com/law-makers/cvpress/internal/payment"
	"github.com/law-makers/cvpress/internal/pipeline"
	"github.com/law-makers/cvpress/pkg/models"
	"github.com/rs/zerolog"
)

const (
	exportFailed = "Failed to export resume"
	scrapeFailed = "Failed to scrape LinkedIn jobs"
	mpesaFailed  = "Mpesa payment failed"
	cardFailed   = "Payment failed"
)

// statusClientClosedRequest is answered when the caller went away first.
const statusClientClosedRequest = 499

// statusFor maps the engine taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch engine.CodeOf(err) {
	case engine.ErrCodeConfiguration:
		return http.StatusBadRequest
	case engine.ErrCodeBusy:
		return http.StatusServiceUnavailable
	case engine.ErrCodeNavigationTimeout:
		return http.StatusGatewayTimeout
	case engine.ErrCodeNavigation:
		return http.StatusBadGateway
	case engine.ErrCodeCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage describes err without internal detail. Only
// configuration errors, which the caller caused, echo their message.
func publicMessage(err error) string {
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		return "internal error"
	}
	switch ee.Code {
	case engine.ErrCodeConfiguration:
		return ee.Message
	case engine.ErrCodeBusy:
		return "all browser sessions are busy, retry later"
	case engine.ErrCodeNavigationTimeout:
		return "page did not become ready in time"
	case engine.ErrCodeNavigation:
		return "page could not be loaded"
	case engine.ErrCodeExtraction:
		return "page content could not be read"
	case engine.ErrCodeRender:
		return "page could not be rendered"
	case engine.ErrCodeCanceled:
		return "request canceled"
	default:
		return "internal error"
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, label string, err error) {
	status := statusFor(err)
	zerolog.Ctx(r.Context()).Error().
		Err(err).
		Str("code", string(engine.CodeOf(err))).
		Int("status", status).
		Msg(label)
	writeJSON(w, r, status, models.FailureResponse{
		Success: false,
		Error:   label,
		Message: publicMessage(err),
	})
}

// decodeBody reads a JSON body into v. It reports false and writes a 400
// when the body is absent or malformed.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		writeJSON(w, r, http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "Request body too large"})
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeJSON(w, r, http.StatusBadRequest, models.ErrorResponse{Error: "Request body missing"})
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		http.NotFound(w, r)
		return
	}
	var body models.ExportRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	artifact, err := s.deps.Exporter.Export(r.Context(), pipeline.ExportRequest{
		ResumeName: body.ResumeName.String(),
		ResumeID:   body.ResumeID.String(),
		Language:   body.Language.String(),
		Format:     body.Format,
		Landscape:  body.Landscape,
	})
	if err != nil {
		s.fail(w, r, exportFailed, err)
		return
	}
	artifact.ServeHTTP(w, r)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scraper == nil {
		http.NotFound(w, r)
		return
	}
	format, err := extract.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.FailureResponse{Success: false, Error: scrapeFailed, Message: err.Error()})
		return
	}

	records, err := s.deps.Scraper.Scrape(r.Context(), pipeline.ScrapeOptions{Format: format})
	if err != nil {
		s.fail(w, r, scrapeFailed, err)
		return
	}

	jobs := make([]models.Job, len(records))
	for i, rec := range records {
		jobs[i] = models.Job{ID: rec.ID, Content: rec.Content}
	}
	writeJSON(w, r, http.StatusOK, models.ScrapeResponse{
		Success:   true,
		TotalJobs: len(jobs),
		Jobs:      jobs,
	})
}

func (s *Server) handleMpesaPay(w http.ResponseWriter, r *http.Request) {
	var body models.MpesaPayRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	req := payment.PushRequest{
		Phone:      body.Phone.String(),
		Amount:     body.Amount.String(),
		AccountRef: body.AccountRef.String(),
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.ErrorResponse{Error: "Missing parameters"})
		return
	}
	if s.deps.Mpesa == nil {
		writeJSON(w, r, http.StatusInternalServerError, models.ErrorResponse{Error: mpesaFailed})
		return
	}

	resp, err := s.deps.Mpesa.Push(r.Context(), req)
	if err != nil {
		s.paymentFailed(w, r, mpesaFailed, err)
		return
	}

	if s.deps.Callbacks != nil {
		var accepted struct {
			CheckoutRequestID string `json:"CheckoutRequestID"`
		}
		if json.Unmarshal(resp, &accepted) == nil {
			s.deps.Callbacks.Expect(accepted.CheckoutRequestID)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeBody(w, r, resp)
}

func (s *Server) paymentFailed(w http.ResponseWriter, r *http.Request, label string, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg(label)

	var pe *payment.ProviderError
	switch {
	case errors.Is(err, payment.ErrMissingParameters):
		writeJSON(w, r, http.StatusBadRequest, models.ErrorResponse{Error: "Missing parameters"})
	case errors.Is(err, payment.ErrInvalidAmount):
		writeJSON(w, r, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.As(err, &pe) && pe.StatusCode > 0:
		writeJSON(w, r, http.StatusBadGateway, models.ErrorResponse{Error: label + ": " + pe.Message})
	default:
		writeJSON(w, r, http.StatusInternalServerError, models.ErrorResponse{Error: label})
	}
}

func (s *Server) handleMpesaCallback(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Callback body truncated")
	}
	if s.deps.Callbacks == nil {
		zerolog.Ctx(r.Context()).Info().Bytes("payload", payload).Msg("Payment callback received")
		writeJSON(w, r, http.StatusOK, callback.Accepted)
		return
	}
	writeJSON(w, r, http.StatusOK, s.deps.Callbacks.Receive(r.Context(), payload))
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var body models.PayRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	price, err := payment.ParsePrice(body.Price.String())
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	if s.deps.Card == nil {
		writeJSON(w, r, http.StatusInternalServerError, models.ErrorResponse{Error: cardFailed})
		return
	}

	intent, err := s.deps.Card.CreateIntent(r.Context(), price)
	if err != nil {
		s.paymentFailed(w, r, cardFailed, err)
		return
	}
	writeJSON(w, r, http.StatusOK, models.PayResponse{
		ClientSecret: intent.ClientSecret,
		ServerTime:   intent.ServerTime,
	})
}

// dateLayouts are the expiry formats the frontend has been seen to send.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

func parseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// handleCheck reports whether a membership expiring at expDate is still
// active. Unparseable dates count as expired.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var body models.CheckRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	status := "false"
	if exp, ok := parseExpiry(body.ExpDate); ok && s.opts.Now().Before(exp) {
		status = "true"
	}
	writeJSON(w, r, http.StatusOK, models.CheckResponse{Status: status})
}

func (s *Server) handleDate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, models.DateResponse{Date: s.opts.Now().UTC()})
}
