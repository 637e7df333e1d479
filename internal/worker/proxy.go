package worker

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ControlPrefix is the path prefix of the worker's own endpoints. Requests
// under it are never proxied.
const ControlPrefix = "/__worker"

type stateResponse struct {
	State  State    `json:"state"`
	Caches []string `json:"caches"`
}

type errorBody struct {
	Error string `json:"error"`
}

// RegisterRoutes mounts the control endpoints: POST /__worker/message accepts
// a Message and GET /__worker/state reports the lifecycle phase and stores.
func RegisterRoutes(r chi.Router, w *Worker) {
	r.Route(ControlPrefix, func(r chi.Router) {
		r.Post("/message", w.handleMessage)
		r.Get("/state", w.handleState)
	})
}

func (w *Worker) handleMessage(rw http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4<<10)).Decode(&msg); err != nil {
		writeJSON(rw, http.StatusBadRequest, errorBody{Error: "invalid message body"})
		return
	}

	if err := w.HandleMessage(r.Context(), msg); err != nil {
		if errors.Is(err, ErrUnknownMessage) {
			writeJSON(rw, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		w.logger.Error("handling worker message", zap.String("type", string(msg.Type)), zap.Error(err))
		writeJSON(rw, http.StatusInternalServerError, errorBody{Error: "message failed"})
		return
	}
	w.handleState(rw, r)
}

func (w *Worker) handleState(rw http.ResponseWriter, r *http.Request) {
	names, err := w.storage.Names(r.Context())
	if err != nil {
		w.logger.Error("listing caches", zap.Error(err))
		writeJSON(rw, http.StatusInternalServerError, errorBody{Error: "listing caches failed"})
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(rw, http.StatusOK, stateResponse{State: w.State(), Caches: names})
}

// Proxy returns a reverse proxy that forwards every request to the worker's
// origin using w as the transport.
func (w *Worker) Proxy() http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(w.origin)
			pr.SetXForwarded()
			pr.Out.Header.Del("Accept-Encoding")
		},
		Transport: w,
		ErrorHandler: func(rw http.ResponseWriter, r *http.Request, err error) {
			w.logger.Warn("proxying request", zap.String("url", r.URL.String()), zap.Error(err))
			rw.WriteHeader(http.StatusBadGateway)
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
