package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/scheduler"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/webevents"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/classifier"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/pkg/types"
)

type Config struct {
	Interval           time.Duration `yaml:"interval"`
	PondSilence        time.Duration `yaml:"pondSilence"`
	ClassifierInterval time.Duration `yaml:"classifierInterval"`
}

func DefaultConfig() Config {
	return Config{
		Interval:           time.Minute,
		PondSilence:        15 * time.Minute,
		ClassifierInterval: 30 * time.Second,
	}
}

type ClassifierStatus struct {
	Available bool      `json:"available"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

type Watchdog interface {
	Start(ctx context.Context)
	Stop()
}

type watchdogImpl struct {
	ponds      pondmanagement.PondManagement
	bus        messagebus.Bus
	classifier classifier.Client
	web        webevents.WebEvents
	config     Config

	ctx         context.Context
	pondPoller  *scheduler.Poller[[]types.PondNotObserved]
	classPoller *scheduler.Poller[ClassifierStatus]

	mu        sync.Mutex
	available *bool
}

func New(ponds pondmanagement.PondManagement, bus messagebus.Bus, c classifier.Client, web webevents.WebEvents, config Config) Watchdog {
	w := &watchdogImpl{
		ponds:      ponds,
		bus:        bus,
		classifier: c,
		web:        web,
		config:     config,
	}

	w.pondPoller = scheduler.New(config.Interval, w.checkPonds, w.publishNotObserved)
	if c != nil {
		w.classPoller = scheduler.New(config.ClassifierInterval, w.checkClassifier, w.classifierChecked)
	}

	return w
}

func (w *watchdogImpl) Start(ctx context.Context) {
	w.ctx = ctx
	w.pondPoller.Start(ctx)
	if w.classPoller != nil {
		w.classPoller.Start(ctx)
	}
}

func (w *watchdogImpl) Stop() {
	w.pondPoller.Stop()
	if w.classPoller != nil {
		w.classPoller.Stop()
	}
}

func (w *watchdogImpl) checkPonds(ctx context.Context) ([]types.PondNotObserved, error) {
	ponds, err := w.ponds.GetPonds(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	silent := []types.PondNotObserved{}

	for _, p := range ponds {
		latest, err := w.ponds.GetLatestReading(ctx, p.ID)
		if err != nil {
			if errors.Is(err, pondmanagement.ErrNoReadings) {
				// ponds that never reported are not expected to
				continue
			}
			return nil, err
		}

		if !checkLastObservedIsAfter(latest.Timestamp, now, w.config.PondSilence) {
			silent = append(silent, types.PondNotObserved{
				PondID:     p.ID,
				LastSeen:   latest.Timestamp,
				ObservedAt: now,
			})
		}
	}

	return silent, nil
}

func (w *watchdogImpl) publishNotObserved(seq uint64, silent []types.PondNotObserved, err error) {
	logger := logging.GetFromContext(w.ctx)

	if err != nil {
		logger.Error().Err(err).Uint64("seq", seq).Msg("failed to check ponds")
		return
	}

	for i := range silent {
		logger.Debug().Uint("pondID", silent[i].PondID).Msg("pond has not reported in time")

		err = w.bus.PublishOnTopic(w.ctx, &silent[i])
		if err != nil {
			logger.Error().Err(err).Uint("pondID", silent[i].PondID).Msg("failed to publish")
		}
	}
}

func (w *watchdogImpl) checkClassifier(ctx context.Context) (ClassifierStatus, error) {
	status := ClassifierStatus{Available: true, CheckedAt: time.Now().UTC()}

	if err := w.classifier.Health(ctx); err != nil {
		status.Available = false
		status.Error = err.Error()
	}

	return status, nil
}

func (w *watchdogImpl) classifierChecked(seq uint64, status ClassifierStatus, _ error) {
	w.mu.Lock()
	changed := w.available == nil || *w.available != status.Available
	w.available = &status.Available
	w.mu.Unlock()

	if !changed {
		return
	}

	logger := logging.GetFromContext(w.ctx)
	if status.Available {
		logger.Info().Msg("classifier is available")
	} else {
		logger.Warn().Str("reason", status.Error).Msg("classifier is unavailable")
	}

	if w.web != nil {
		if err := w.web.Publish(webevents.EventClassifier, status); err != nil {
			logger.Error().Err(err).Msg("failed to publish classifier status")
		}
	}
}

// checkLastObservedIsAfter reports whether lastObserved lies within the
// allowed silence before now.
func checkLastObservedIsAfter(lastObserved, now time.Time, silence time.Duration) bool {
	return lastObserved.After(now.Add(-silence))
}
