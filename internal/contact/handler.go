package contact

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lloyd-blog/edge/internal/mail"
	"github.com/lloyd-blog/edge/internal/ratelimit"
)

// maxBodyBytes bounds the size of a submission body.
const maxBodyBytes = 64 << 10

// Messages returned to clients. Details only ever go to the log.
const (
	MsgSuccess     = "Thank you for your message! I'll get back to you soon."
	MsgRateLimited = "Too many requests. Please try again later."
	MsgValidation  = "Validation failed"
	MsgBadRequest  = "Invalid request body"
	MsgSendFailed  = "Failed to send message. Please try again later."
	MsgInternal    = "Internal server error"
)

var errBadBody = errors.New("malformed submission body")

// Handler serves POST /contact.
type Handler struct {
	limiter  ratelimit.Limiter
	composer *mail.Composer
	sender   mail.Sender
	ipHeader string
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a contact Handler. ipHeader names a request header set
// by a trusted reverse proxy (for example CF-Connecting-IP) that carries the
// client address. When empty, clients are keyed by the connection's peer
// address only.
func NewHandler(limiter ratelimit.Limiter, composer *mail.Composer, sender mail.Sender, ipHeader string, logger *zap.Logger) *Handler {
	return &Handler{
		limiter:  limiter,
		composer: composer,
		sender:   sender,
		ipHeader: ipHeader,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes mounts the contact endpoint on the given router.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/contact", h.ServeHTTP)
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors,omitempty"`
}

type validationResponse struct {
	Error  string            `json:"error"`
	Errors map[string]string `json:"errors"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("contact handler panic", zap.Any("panic", rec), zap.Stack("stack"))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: MsgInternal})
		}
	}()

	ip := ClientIP(r, h.ipHeader)
	allowed, err := h.limiter.Check(r.Context(), ip)
	if err != nil {
		log.Error("rate limit check failed", zap.String("client_ip", ip), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: MsgInternal})
		return
	}
	if !allowed {
		log.Info("contact submission rate limited", zap.String("client_ip", ip))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: MsgRateLimited})
		return
	}

	sub, err := parseSubmission(w, r)
	if err != nil {
		log.Info("unreadable contact submission", zap.String("client_ip", ip), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: MsgBadRequest, Errors: map[string]string{}})
		return
	}

	errs, spam := Validate(sub)
	if spam {
		// Look like a success so automated senders learn nothing.
		log.Info("honeypot triggered, dropping submission", zap.String("client_ip", ip))
		writeJSON(w, http.StatusOK, successResponse{Success: true})
		return
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: MsgValidation, Errors: errs})
		return
	}

	clean := SanitizeSubmission(sub)
	id := uuid.New().String()
	msg, err := h.composer.Compose(mail.Contact{
		ID:         id,
		Name:       clean.Name,
		Email:      clean.Email,
		Message:    clean.Message,
		ReceivedAt: h.now(),
	})
	if err != nil {
		log.Error("composing contact email", zap.String("submission_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: MsgSendFailed})
		return
	}

	if err := h.sender.Send(r.Context(), msg); err != nil {
		log.Error("sending contact email", zap.String("submission_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: MsgSendFailed})
		return
	}

	log.Info("contact submission delivered", zap.String("submission_id", id), zap.String("client_ip", ip))
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: MsgSuccess})
}

// ClientIP returns the submitting client's address. A valid IP in the
// trusted header wins; otherwise the host part of RemoteAddr is used. An
// empty header name trusts no header at all.
func ClientIP(r *http.Request, trustedHeader string) string {
	if trustedHeader != "" {
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get(trustedHeader))); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseSubmission(w http.ResponseWriter, r *http.Request) (Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	var sub Submission
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			return sub, fmt.Errorf("%w: %v", errBadBody, err)
		}
		return sub, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return sub, fmt.Errorf("%w: %v", errBadBody, err)
		}
	default:
		if err := r.ParseForm(); err != nil {
			return sub, fmt.Errorf("%w: %v", errBadBody, err)
		}
	}
	return submissionFromForm(r.PostForm), nil
}

func submissionFromForm(v url.Values) Submission {
	field := func(name string) any {
		if !v.Has(name) {
			return nil
		}
		return v.Get(name)
	}
	return Submission{
		Name:     field("name"),
		Email:    field("email"),
		Message:  field("message"),
		Honeypot: field("honeypot"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
