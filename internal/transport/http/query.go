package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// optionalWindow reads from/to as RFC3339. Both or neither must be given.
func optionalWindow(r *http.Request) (*domain.Interval, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, errors.New("from and to must be given together")
	}
	iv, err := parseWindow(from, to)
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func requiredWindow(r *http.Request) (domain.Interval, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		return domain.Interval{}, errors.New("from and to are required")
	}
	return parseWindow(from, to)
}

func parseWindow(from, to string) (domain.Interval, error) {
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return domain.Interval{}, fmt.Errorf("invalid from: %w", err)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return domain.Interval{}, fmt.Errorf("invalid to: %w", err)
	}
	return domain.NewInterval(start, end), nil
}

// parseStep accepts "minute", "hour" or a Go duration such as "15m".
func parseStep(raw string) (time.Duration, error) {
	switch raw {
	case "", "hour":
		return time.Hour, nil
	case "minute":
		return time.Minute, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid step %q", raw)
	}
	return d, nil
}
