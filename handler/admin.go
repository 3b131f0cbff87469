package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/txix-open/isp-kit/json"
	"github.com/txix-open/isp-kit/log"

	"admission-service/conf"
)

const (
	adminTokenHeader = "x-admin-token"
)

type ResetRequest struct {
	Policy   string
	Identity string
}

type RateLimitAdmin interface {
	Reset(ctx context.Context, policyName string, identity string) error
	ClearAll(ctx context.Context) error
	Policies() []conf.RateLimitPolicy
}

type Admin struct {
	service RateLimitAdmin
	token   string
	logger  log.Logger
}

// NewAdmin mounts the operational escape hatches: dropping a single rate
// limit window, clearing all of them and listing the active policy table.
// The router is token gated and must never be reachable from end users.
func NewAdmin(service RateLimitAdmin, token string, logger log.Logger) http.Handler {
	admin := Admin{
		service: service,
		token:   token,
		logger:  logger,
	}

	router := mux.NewRouter()
	router.Use(admin.authenticate)
	router.HandleFunc("/internal/rate_limit/reset", admin.reset).Methods(http.MethodPost)
	router.HandleFunc("/internal/rate_limit/clear_all", admin.clearAll).Methods(http.MethodPost)
	router.HandleFunc("/internal/rate_limit/policies", admin.policies).Methods(http.MethodGet)
	return router
}

func (h Admin) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		if h.token == "" || req.Header.Get(adminTokenHeader) != h.token {
			writer.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(writer, req)
	})
}

func (h Admin) reset(writer http.ResponseWriter, req *http.Request) {
	body := ResetRequest{}
	err := json.NewDecoder(req.Body).Decode(&body)
	if err != nil {
		h.writeError(writer, req, http.StatusBadRequest, errors.WithMessage(err, "admin: decode reset request"))
		return
	}
	if body.Policy == "" || body.Identity == "" {
		h.writeError(writer, req, http.StatusBadRequest, errors.New("admin: policy and identity are required"))
		return
	}

	err = h.service.Reset(req.Context(), body.Policy, body.Identity)
	if err != nil {
		h.writeError(writer, req, http.StatusInternalServerError, errors.WithMessage(err, "admin: reset rate limit"))
		return
	}

	h.writeJson(writer, req, map[string]any{"ok": true})
}

func (h Admin) clearAll(writer http.ResponseWriter, req *http.Request) {
	err := h.service.ClearAll(req.Context())
	if err != nil {
		h.writeError(writer, req, http.StatusInternalServerError, errors.WithMessage(err, "admin: clear all rate limits"))
		return
	}

	h.writeJson(writer, req, map[string]any{"ok": true})
}

func (h Admin) policies(writer http.ResponseWriter, req *http.Request) {
	h.writeJson(writer, req, h.service.Policies())
}

func (h Admin) writeJson(writer http.ResponseWriter, req *http.Request, data any) {
	writer.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(writer).Encode(data)
	if err != nil {
		h.logger.Error(req.Context(), errors.WithMessage(err, "admin: write response"))
	}
}

func (h Admin) writeError(writer http.ResponseWriter, req *http.Request, statusCode int, err error) {
	h.logger.Error(req.Context(), err)
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	encodeErr := json.NewEncoder(writer).Encode(map[string]any{"error": http.StatusText(statusCode)})
	if encodeErr != nil {
		h.logger.Error(req.Context(), errors.WithMessage(encodeErr, "admin: write error response"))
	}
}
