// Package irrigation opens and closes irrigation sessions.
package irrigation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

var ErrSessionNotFound = errors.New("irrigation record does not exist")

// SessionStore is the subset of the Reading Store the tracker needs.
type SessionStore interface {
	LatestReading(ctx context.Context) (model.Reading, error)
	CreateSession(ctx context.Context, s *model.IrrigationSession) error
	Sessions(ctx context.Context) ([]model.IrrigationSession, error)
	UpdateSession(ctx context.Context, id uint, fn func(*model.IrrigationSession) error) (model.IrrigationSession, error)
}

type Tracker struct {
	store  SessionStore
	now    func() time.Time
	logger *log.Logger
}

func NewTracker(s SessionStore, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{store: s, now: time.Now, logger: logger}
}

// StartIfWarranted opens a session on the latest reading when it carries
// temperature and humidity. It returns nil when there is no reading or the
// guard fails.
func (t *Tracker) StartIfWarranted(ctx context.Context) (*model.IrrigationSession, error) {
	latest, err := t.store.LatestReading(ctx)
	if errors.Is(err, store.ErrNotFound) {
		t.logger.Println("irrigation: no sensor data available")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if math.IsNaN(latest.Temperature) || math.IsNaN(latest.Humidity) {
		return nil, nil
	}

	sess := &model.IrrigationSession{
		SensorDataID: &latest.ID,
		StartTime:    t.now().UTC(),
	}
	if err := t.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	t.logger.Printf("irrigation: session %d started from reading %d", sess.ID, latest.ID)
	return sess, nil
}

// Close ends session id with the supplied water usage. An unknown id
// returns ErrSessionNotFound and changes nothing.
func (t *Tracker) Close(ctx context.Context, id uint, waterUsed float64) (model.IrrigationSession, error) {
	sess, err := t.store.UpdateSession(ctx, id, func(s *model.IrrigationSession) error {
		s.Close(t.now().UTC(), waterUsed)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		t.logger.Printf("irrigation: %v: id=%d", ErrSessionNotFound, id)
		return model.IrrigationSession{}, fmt.Errorf("%w: id=%d", ErrSessionNotFound, id)
	}
	if err != nil {
		return model.IrrigationSession{}, err
	}
	t.logger.Printf("irrigation: session %d closed, water used %.2f", id, waterUsed)
	return sess, nil
}

func (t *Tracker) List(ctx context.Context) ([]model.IrrigationSession, error) {
	return t.store.Sessions(ctx)
}
