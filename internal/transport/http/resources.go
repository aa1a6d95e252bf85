package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/app"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// ResourceAdmin is the minimal interface needed for admin resource endpoints.
type ResourceAdmin interface {
	CreateResource(ctx context.Context, in app.CreateResourceInput) (domain.Resource, error)
	ListResources(ctx context.Context) ([]domain.Resource, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type createResourceRequest struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Capacity    int    `json:"capacity"`
	Overbooking int    `json:"overbooking"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type resourceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Capacity    int       `json:"capacity"`
	Overbooking int       `json:"overbooking"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResourceResponse(r domain.Resource) resourceResponse {
	return resourceResponse{
		ID:          r.ID,
		Name:        r.Name,
		Kind:        string(r.Kind),
		Capacity:    r.Capacity,
		Overbooking: r.Overbooking,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

func HandleListResources(svc ResourceAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListResources(r.Context())
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		resp := make([]resourceResponse, 0, len(list))
		for _, res := range list {
			resp = append(resp, toResourceResponse(res))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func HandleCreateResource(svc ResourceAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createResourceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.CreateResource(r.Context(), app.CreateResourceInput{
			Name:        req.Name,
			Kind:        domain.ResourceKind(req.Kind),
			Capacity:    req.Capacity,
			Overbooking: req.Overbooking,
		})
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, toResourceResponse(res))
	}
}

func HandleSetResourceActive(svc ResourceAdmin, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setActiveRequest
		if err := decodeJSON(r, &req); err != nil || req.Active == nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "body must be {\"active\": true|false}")
			return
		}
		if err := svc.SetActive(r.Context(), mux.Vars(r)["id"], *req.Active); err != nil {
			writeServiceError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
