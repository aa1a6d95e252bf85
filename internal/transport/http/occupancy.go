package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/availability"
	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// OccupancyReader is the minimal interface needed for occupancy queries.
type OccupancyReader interface {
	Occupancy(ctx context.Context, resourceID string, window domain.Interval, step time.Duration) ([]availability.Bucket, error)
}

type bucketResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Peak      int       `json:"peak"`
	Available int       `json:"available"`
}

type occupancyResponse struct {
	ResourceID string           `json:"resource_id"`
	Buckets    []bucketResponse `json:"buckets"`
}

// HandleOccupancy serves GET /resources/{id}/occupancy?from&to&step.
func HandleOccupancy(svc OccupancyReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := requiredWindow(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
			return
		}
		step, err := parseStep(r.URL.Query().Get("step"))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
			return
		}

		resourceID := mux.Vars(r)["id"]
		buckets, err := svc.Occupancy(r.Context(), resourceID, window, step)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}

		resp := occupancyResponse{ResourceID: resourceID, Buckets: make([]bucketResponse, 0, len(buckets))}
		for _, b := range buckets {
			resp.Buckets = append(resp.Buckets, bucketResponse{
				Start:     b.Interval.Start,
				End:       b.Interval.End,
				Peak:      b.Peak,
				Available: b.Available,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
