// Package policy holds the booking tunables as an immutable snapshot and
// evaluates the time-based preconditions a request must pass before the
// Coordinator takes any lock.
package policy

import (
	"fmt"
	"time"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// Config mirrors the externally supplied policy fields.
type Config struct {
	OpenHour           int    `json:"open_hour"`
	CloseHour          int    `json:"close_hour"`
	MinNoticeDays      int    `json:"min_notice_days"`
	MinDurationMinutes int    `json:"min_duration_minutes"`
	MaxDurationMinutes int    `json:"max_duration_minutes"`
	TZ                 string `json:"tz"`
}

// Default matches the school's usual opening hours.
func Default() Config {
	return Config{
		OpenHour:           8,
		CloseHour:          18,
		MinNoticeDays:      1,
		MinDurationMinutes: 30,
		MaxDurationMinutes: 240,
		TZ:                 "Europe/Rome",
	}
}

// Snapshot is a validated, immutable view of Config. Safe for concurrent use.
type Snapshot struct {
	cfg Config
	loc *time.Location
}

// New validates cfg and resolves its time zone.
func New(cfg Config) (*Snapshot, error) {
	if cfg.OpenHour < 0 || cfg.CloseHour > 24 || cfg.OpenHour >= cfg.CloseHour {
		return nil, fmt.Errorf("invalid booking window %d-%d", cfg.OpenHour, cfg.CloseHour)
	}
	if cfg.MinNoticeDays < 0 {
		return nil, fmt.Errorf("min_notice_days must be >= 0, got %d", cfg.MinNoticeDays)
	}
	if cfg.MinDurationMinutes <= 0 || cfg.MaxDurationMinutes < cfg.MinDurationMinutes {
		return nil, fmt.Errorf("invalid duration bounds %d-%d", cfg.MinDurationMinutes, cfg.MaxDurationMinutes)
	}
	if cfg.TZ == "" {
		return nil, fmt.Errorf("tz is required")
	}
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("load tz %q: %w", cfg.TZ, err)
	}
	return &Snapshot{cfg: cfg, loc: loc}, nil
}

// MustNew is New for static configuration in tests and defaults.
func MustNew(cfg Config) *Snapshot {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Snapshot) Config() Config {
	return s.cfg
}

func (s *Snapshot) Location() *time.Location {
	return s.loc
}

func (s *Snapshot) MinDuration() time.Duration {
	return time.Duration(s.cfg.MinDurationMinutes) * time.Minute
}

func (s *Snapshot) MaxDuration() time.Duration {
	return time.Duration(s.cfg.MaxDurationMinutes) * time.Minute
}

// EarliestStart is the first admissible start for a request made at now.
// Notice is counted in calendar days of the policy zone: the same wall-clock
// time N days later, which spans 23 or 25 hours when a DST change falls in it.
func (s *Snapshot) EarliestStart(now time.Time) time.Time {
	return now.In(s.loc).AddDate(0, 0, s.cfg.MinNoticeDays)
}

// Window returns the bookable range of the local day containing t.
// A close hour of 24 ends the window at the next local midnight.
func (s *Snapshot) Window(t time.Time) domain.Interval {
	local := t.In(s.loc)
	y, m, d := local.Date()
	return domain.Interval{
		Start: time.Date(y, m, d, s.cfg.OpenHour, 0, 0, 0, s.loc),
		End:   time.Date(y, m, d, s.cfg.CloseHour, 0, 0, 0, s.loc),
	}
}

// Check runs notice, window and duration checks in that order. The interval
// is assumed valid (end after start).
func (s *Snapshot) Check(now time.Time, iv domain.Interval) error {
	if earliest := s.EarliestStart(now); iv.Start.Before(earliest) {
		return domain.Reject(domain.CodePolicyNotice,
			"start must be at or after %s", earliest.Format(time.RFC3339))
	}

	window := s.Window(iv.Start)
	if !window.Contains(iv) {
		return domain.Reject(domain.CodePolicyWindow,
			"interval must fall within %02d:00-%02d:00 %s on a single day",
			s.cfg.OpenHour, s.cfg.CloseHour, s.cfg.TZ)
	}

	if d := iv.Duration(); d < s.MinDuration() || d > s.MaxDuration() {
		return domain.Reject(domain.CodePolicyDuration,
			"duration %s outside [%s, %s]", d, s.MinDuration(), s.MaxDuration())
	}
	return nil
}
