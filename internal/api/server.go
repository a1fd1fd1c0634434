package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"assignment-reminders/internal/bulk"
	"assignment-reminders/internal/config"
	"assignment-reminders/internal/reminder"
	"assignment-reminders/internal/store"
	"assignment-reminders/internal/telemetry"
)

// Server wires HTTP handlers for the reminder API.
type Server struct {
	cfg        config.Config
	dispatcher *reminder.Dispatcher
	bulk       *bulk.Coordinator
	log        zerolog.Logger
}

// New constructs the API server.
func New(cfg config.Config, dispatcher *reminder.Dispatcher, coordinator *bulk.Coordinator, log zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		bulk:       coordinator,
		log:        log,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/assignments/{id}/reminder", s.handleSendReminder)
	r.Post("/reminders/send-bulk", s.handleSendBulk)
	r.Get("/reminders/jobs/{id}", s.handleJobStatus)
	return r
}

type sendReminderRequest struct {
	SentByUserID    string `json:"sent_by_user_id"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

type sendReminderResponse struct {
	Success    bool   `json:"success"`
	ReminderID string `json:"reminder_id"`
}

func (s *Server) handleSendReminder(w http.ResponseWriter, r *http.Request) {
	var req sendReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}
	if req.SentByUserID == "" {
		writeBadRequest(w, "sent_by_user_id is required")
		return
	}

	record, err := s.dispatcher.Send(r.Context(), reminder.SendParams{
		AssignmentID:    chi.URLParam(r, "id"),
		SentByUserID:    req.SentByUserID,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendReminderResponse{Success: true, ReminderID: record.ID})
}

type sendBulkRequest struct {
	AssignmentIDs []string `json:"assignment_ids"`
	SentByUserID  string   `json:"sent_by_user_id"`
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	var req sendBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid json")
		return
	}

	sub, err := s.bulk.Submit(r.Context(), req.AssignmentIDs, req.SentByUserID)
	if err != nil {
		switch {
		case errors.Is(err, bulk.ErrNoItems), errors.Is(err, bulk.ErrTooManyItems), errors.Is(err, bulk.ErrNoSubmitter):
			writeBadRequest(w, err.Error())
		default:
			s.log.Error().Err(err).Msg("bulk submit failed")
			writeErrorBody(w, http.StatusInternalServerError, "INTERNAL", "could not schedule bulk job")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, sub)
}

type jobStatusResponse struct {
	JobID       string           `json:"job_id"`
	Status      string           `json:"status"`
	Progress    int              `json:"progress"`
	TotalItems  int              `json:"total_items"`
	Results     jobStatusResults `json:"results"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

type jobStatusResults struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.bulk.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErrorBody(w, http.StatusNotFound, "JOB_NOT_FOUND", "no such bulk job")
			return
		}
		s.log.Error().Err(err).Msg("job status read failed")
		writeErrorBody(w, http.StatusInternalServerError, "INTERNAL", "could not read job status")
		return
	}

	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:      job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		TotalItems: job.TotalItems,
		Results: jobStatusResults{
			Successful: job.Results.Successful,
			Failed:     job.Results.Failed,
		},
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	})
}

// writeDispatchError maps a dispatch failure onto its transport status.
// Throttling errors advertise the back-off through Retry-After.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	de, ok := reminder.AsError(err)
	if !ok {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("reminder dispatch failed")
		writeErrorBody(w, http.StatusInternalServerError, "INTERNAL", "reminder dispatch failed")
		return
	}
	if de.RetryAfter > 0 {
		seconds := int(de.RetryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeErrorBody(w, de.Code.HTTPStatus(), string(de.Code), de.Detail)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeErrorBody(w, http.StatusBadRequest, "BAD_REQUEST", msg)
}

func writeErrorBody(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
