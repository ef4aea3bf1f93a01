package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/thresholds"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/matryer/is"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func TestConfig(t *testing.T) {
	is := setupTest(t)
	config := strings.NewReader(`
notifications:
  - id: researchers
    name: Pond alarms
    type: aquasmart.alarm
    subscribers:
    - endpoint: http://api-notification:8990
      minSeverity: 2
`)
	cfg, err := LoadConfiguration(config)

	is.NoErr(err)
	is.Equal(len(cfg.Notifications), 1)
	is.Equal(cfg.Notifications[0].ID, "researchers")
	is.Equal(cfg.Notifications[0].Subscribers[0].MinSeverity, 2)
}

func TestSendPostsCloudEvent(t *testing.T) {
	is := setupTest(t)

	var received types.Alarm
	var eventType string

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventType = r.Header.Get("Ce-Type")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()

	sender, err := New(&Config{Notifications: []Notification{
		{Type: AlarmEventType, Subscribers: []SubscriberConfig{{Endpoint: s.URL}}},
	}})
	is.NoErr(err)

	alarm := types.Alarm{ID: "a1", PondID: 1, Metric: "do", Severity: types.AlarmSeverityCritical, ObservedAt: time.Now().UTC()}
	is.NoErr(sender.Send(context.Background(), alarm))

	is.Equal(eventType, AlarmEventType)
	is.Equal(received.ID, "a1")
}

func TestAlarmCreatedHandlerRespectsNotificationSettings(t *testing.T) {
	is := setupTest(t)

	sender := &recordingSender{}
	settings := &staticSettings{s: thresholds.DefaultSettings(1)}

	handler := NewAlarmCreatedHandler(sender, settings)

	warning := types.AlarmCreated{Alarm: types.Alarm{ID: "w", PondID: 1, Severity: types.AlarmSeverityWarning}}
	critical := types.AlarmCreated{Alarm: types.Alarm{ID: "c", PondID: 1, Severity: types.AlarmSeverityCritical}}

	handler(context.Background(), delivery(warning), zerolog.Nop())
	handler(context.Background(), delivery(critical), zerolog.Nop())

	is.Equal(len(sender.sent), 1)
	is.Equal(sender.sent[0].ID, "c")
}

type recordingSender struct {
	sent []types.Alarm
}

func (r *recordingSender) Send(ctx context.Context, alarm types.Alarm) error {
	r.sent = append(r.sent, alarm)
	return nil
}

type staticSettings struct {
	s thresholds.Settings
}

func (s *staticSettings) Get(ctx context.Context, pondID uint) (thresholds.Settings, error) {
	return s.s, nil
}

func (s *staticSettings) Save(ctx context.Context, st thresholds.Settings) (thresholds.Settings, error) {
	s.s = st
	return st, nil
}

func delivery(v any) amqp.Delivery {
	b, _ := json.Marshal(v)
	return amqp.Delivery{Body: b}
}

func setupTest(t *testing.T) *is.I {
	is := is.New(t)

	return is
}
