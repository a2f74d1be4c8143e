package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// SessionSaver persists session state changes.
type SessionSaver interface {
	SaveSession(ctx context.Context, sess *domain.Session) error
}

// GeolocationService records what the browser reported about its position.
type GeolocationService struct {
	sessions SessionSaver
	now      func() time.Time
}

// NewGeolocationService creates a new GeolocationService.
func NewGeolocationService(sessions SessionSaver) *GeolocationService {
	return &GeolocationService{sessions: sessions, now: time.Now}
}

// Report stores a granted fix on the session.
func (s *GeolocationService) Report(ctx context.Context, sess *domain.Session, lat, lon, accuracy float64) (*domain.Geolocation, error) {
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return nil, fmt.Errorf("coordinates out of range: %w", domain.ErrInvalidInput)
	}
	if accuracy < 0 {
		return nil, fmt.Errorf("accuracy must not be negative: %w", domain.ErrInvalidInput)
	}
	geo := &domain.Geolocation{
		Status:     domain.GeolocationGranted,
		Location:   &p,
		Accuracy:   accuracy,
		CapturedAt: s.now().UTC(),
	}
	if err := s.store(ctx, sess, geo); err != nil {
		return nil, err
	}
	return geo, nil
}

// Deny records a refusal or failure. The map falls back to another view.
func (s *GeolocationService) Deny(ctx context.Context, sess *domain.Session, status domain.GeolocationStatus, reason string) (*domain.Geolocation, error) {
	switch status {
	case "":
		status = domain.GeolocationDenied
	case domain.GeolocationDenied, domain.GeolocationUnavailable:
	default:
		return nil, fmt.Errorf("status %q is not a refusal: %w", status, domain.ErrInvalidInput)
	}
	reason = truncate(strings.TrimSpace(reason), 200)
	geo := &domain.Geolocation{Status: status, Reason: reason, CapturedAt: s.now().UTC()}
	if err := s.store(ctx, sess, geo); err != nil {
		return nil, err
	}
	return geo, nil
}

// Clear forgets the stored position.
func (s *GeolocationService) Clear(ctx context.Context, sess *domain.Session) error {
	return s.store(ctx, sess, nil)
}

func (s *GeolocationService) store(ctx context.Context, sess *domain.Session, geo *domain.Geolocation) error {
	prev := sess.Geolocation
	sess.Geolocation = geo
	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		sess.Geolocation = prev
		return err
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
