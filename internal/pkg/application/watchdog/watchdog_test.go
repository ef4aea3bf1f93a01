package watchdog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/pondmanagement"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/softsensor"
	"github.com/aquasmart/pond-monitoring/internal/pkg/application/webevents"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/classifier"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/messagebus"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/ponds"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/matryer/is"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

func TestCheckLastObservedIsAfter(t *testing.T) {
	is, _ := testSetup(t)

	observed, err := time.Parse(time.RFC3339, "2006-01-02T15:04:05Z")
	is.NoErr(err)
	now, err := time.Parse(time.RFC3339, "2006-01-02T15:04:15Z")
	is.NoErr(err)

	is.True(checkLastObservedIsAfter(observed, now, 20*time.Second))

	now = now.Add(30 * time.Second)
	is.True(!checkLastObservedIsAfter(observed, now, 20*time.Second))
}

func TestSilentPondIsReported(t *testing.T) {
	is, ctx := testSetup(t)

	repo, err := ponds.NewPondRepository(database.NewSQLiteConnector(zerolog.Logger{}, database.InMemoryDSN(t.Name())))
	is.NoErr(err)

	bus := messagebus.NewLocal(zerolog.Nop())
	pm := pondmanagement.New(repo, bus, softsensor.New(time.UTC))

	silentPond, _, err := pm.Seed(ctx)
	is.NoErr(err)
	is.NoErr(pm.SeedFromFile(ctx, strings.NewReader("name;location;actuators\nQuiet;Lab;\nActive;Lab;\n")))

	all, _ := pm.GetPonds(ctx)
	activePond := all[2]

	_, err = pm.AddReading(ctx, types.SensorReading{PondID: silentPond.ID, Timestamp: time.Now().Add(-time.Hour)})
	is.NoErr(err)
	_, err = pm.AddReading(ctx, types.SensorReading{PondID: activePond.ID, Timestamp: time.Now()})
	is.NoErr(err)

	var mu sync.Mutex
	reported := []uint{}
	bus.RegisterTopicMessageHandler("watchdog.pondNotObserved", func(ctx context.Context, d amqp.Delivery, l zerolog.Logger) {
		evt := types.PondNotObserved{}
		_ = json.Unmarshal(d.Body, &evt)
		mu.Lock()
		reported = append(reported, evt.PondID)
		mu.Unlock()
	})

	cfg := DefaultConfig()
	cfg.Interval = time.Hour

	w := New(pm, bus, nil, nil, cfg)
	w.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(reported)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	is.Equal(reported, []uint{silentPond.ID})
}

func TestClassifierStatusChangesArePublished(t *testing.T) {
	is, ctx := testSetup(t)

	fake := &fakeClassifier{err: errors.New("connection refused")}
	web := &recordingWeb{}

	cfg := DefaultConfig()
	cfg.Interval = time.Hour

	w := New(&noPonds{}, messagebus.NewLocal(zerolog.Nop()), fake, web, cfg).(*watchdogImpl)
	w.ctx = ctx

	status, _ := w.checkClassifier(ctx)
	w.classifierChecked(1, status, nil)
	w.classifierChecked(2, status, nil)

	fake.err = nil
	status, _ = w.checkClassifier(ctx)
	w.classifierChecked(3, status, nil)

	is.Equal(len(web.published), 2)
	is.True(!web.published[0].Available)
	is.True(web.published[1].Available)
}

type fakeClassifier struct {
	err error
}

func (f *fakeClassifier) AnalyzeImage(ctx context.Context, imagePath string) (classifier.Analysis, error) {
	return classifier.Analysis{}, f.err
}
func (f *fakeClassifier) Predict(ctx context.Context, readings []classifier.Features) (types.Prediction, error) {
	return types.Prediction{}, f.err
}
func (f *fakeClassifier) Health(ctx context.Context) error {
	return f.err
}

type recordingWeb struct {
	webevents.WebEvents
	published []ClassifierStatus
}

func (r *recordingWeb) Publish(event string, data any) error {
	r.published = append(r.published, data.(ClassifierStatus))
	return nil
}

type noPonds struct {
	pondmanagement.PondManagement
}

func testSetup(t *testing.T) (*is.I, context.Context) {
	return is.New(t), context.Background()
}
