package healthsessions

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aquasmart/pond-monitoring/internal/pkg/application/diagnosis"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/classifier"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/kvstore"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database/healthscans"
	"github.com/aquasmart/pond-monitoring/pkg/types"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aquasmart/healthsessions")

const (
	HistoryKey    = "health_history"
	HistorySchema = 1

	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

var ErrScanNotFound = fmt.Errorf("health scan not found")
var ErrImageTooLarge = fmt.Errorf("image too large")
var ErrNotAnImage = fmt.Errorf("upload is not an image")
var ErrMissingID = fmt.Errorf("health scan has no id")

type Config struct {
	UploadsDir    string
	MaxImageBytes int64
	HistoryLimit  int
}

type Image struct {
	Filename string
	Content  io.Reader
}

//go:generate moq -rm -out healthsessions_mock.go . HealthSessions

type HealthSessions interface {
	Analyze(ctx context.Context, pondID uint, researcher string, image Image) (types.HealthScan, error)
	Get(ctx context.Context, scanID string) (types.HealthScan, error)
	History(ctx context.Context, limit int) ([]types.HealthScan, error)
	Save(ctx context.Context, scan types.HealthScan) (types.HealthScan, error)
	Sync(ctx context.Context, clientLogs []types.HealthScan) ([]types.HealthScan, error)
}

type service struct {
	repo       healthscans.HealthScanRepository
	cache      kvstore.Store
	classifier classifier.Client
	config     Config
}

func New(repo healthscans.HealthScanRepository, cache kvstore.Store, c classifier.Client, config Config) HealthSessions {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if config.MaxImageBytes <= 0 {
		config.MaxImageBytes = 5 * 1024 * 1024
	}
	if config.UploadsDir == "" {
		config.UploadsDir = "uploads"
	}

	return &service{
		repo:       repo,
		cache:      cache,
		classifier: c,
		config:     config,
	}
}

// Analyze stores the image, asks the classifier for a diagnosis and persists
// the resulting scan together with its risk assessment and remediation plan.
func (s *service) Analyze(ctx context.Context, pondID uint, researcher string, image Image) (types.HealthScan, error) {
	var err error
	ctx, span := tracer.Start(ctx, "analyze-health")
	defer span.End()

	logger := logging.GetFromContext(ctx)

	content, err := io.ReadAll(io.LimitReader(image.Content, s.config.MaxImageBytes+1))
	if err != nil {
		return types.HealthScan{}, err
	}
	if int64(len(content)) > s.config.MaxImageBytes {
		return types.HealthScan{}, ErrImageTooLarge
	}

	mimeType := http.DetectContentType(content)
	if !strings.HasPrefix(mimeType, "image/") {
		return types.HealthScan{}, fmt.Errorf("%w: %s", ErrNotAnImage, mimeType)
	}

	path, err := s.storeImage(image.Filename, content)
	if err != nil {
		return types.HealthScan{}, err
	}

	analysis, err := s.classifier.AnalyzeImage(ctx, path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("image analysis failed")
		return types.HealthScan{}, err
	}

	now := time.Now()
	scan := types.HealthScan{
		ID:         uuid.NewString(),
		Time:       now.Format(TimeLayout),
		Date:       now.Format(DateLayout),
		Researcher: researcher,
		PondID:     pondID,
		Condition:  analysis.Condition,
		Status:     analysis.Status,
		Confidence: analysis.Confidence,
		Advice:     analysis.Advice,
		Img:        "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content),
		Revision:   1,
		UpdatedAt:  now.UTC(),
	}

	scan = Enrich(scan)

	err = s.persist(ctx, scan)
	if err != nil {
		return types.HealthScan{}, err
	}

	logger.Info().Str("scanID", scan.ID).Str("condition", scan.Condition).Float64("confidence", scan.Confidence).Msg("health scan analyzed")

	return scan, nil
}

// Enrich fills in advice when the classifier gave none and attaches the
// behaviours, risk assessment and plan that follow from the condition.
func Enrich(scan types.HealthScan) types.HealthScan {
	condition := diagnosis.ParseCondition(scan.Condition)

	if strings.TrimSpace(scan.Advice) == "" {
		scan.Advice = diagnosis.Advice(condition)
	}
	if len(scan.Behaviors) == 0 {
		scan.Behaviors = diagnosis.Behaviors(condition)
	}

	risk := diagnosis.Classify(condition, scan.Confidence, scan.Status).ToType()
	scan.Risk = &risk
	scan.Plan = diagnosis.Plan(condition)

	return scan
}

func (s *service) storeImage(filename string, content []byte) (string, error) {
	err := os.MkdirAll(s.config.UploadsDir, 0755)
	if err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}

	path, err := filepath.Abs(filepath.Join(s.config.UploadsDir, fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)))
	if err != nil {
		return "", err
	}

	err = os.WriteFile(path, content, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	return path, nil
}

func (s *service) Get(ctx context.Context, scanID string) (types.HealthScan, error) {
	scan, err := s.repo.Get(ctx, scanID)
	if err != nil {
		if errors.Is(err, healthscans.ErrScanNotFound) {
			return types.HealthScan{}, ErrScanNotFound
		}
		return types.HealthScan{}, err
	}
	return Enrich(toType(scan)), nil
}

// History returns the most recent scans, newest first. The cached copy is
// used when it is readable, otherwise the history is rebuilt from the database.
func (s *service) History(ctx context.Context, limit int) ([]types.HealthScan, error) {
	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}

	logs := []types.HealthScan{}
	_, err := s.cache.Get(ctx, HistoryKey, &logs)
	if err == nil {
		return head(logs, limit), nil
	}

	logger := logging.GetFromContext(ctx)

	if errors.Is(err, kvstore.ErrSchemaMismatch) {
		logger.Warn().Err(err).Msg("resetting cached health history")
		if err = s.cache.Delete(ctx, HistoryKey); err != nil {
			logger.Error().Err(err).Msg("could not reset cached health history")
		}
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		logger.Error().Err(err).Msg("could not read cached health history")
	}

	logs, err = s.load(ctx)
	if err != nil {
		return nil, err
	}

	s.updateCache(ctx, logs)

	return head(logs, limit), nil
}

// Save stores a scan sent by a client. An existing scan with the same id is
// replaced and its revision bumped.
func (s *service) Save(ctx context.Context, scan types.HealthScan) (types.HealthScan, error) {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}

	existing, err := s.repo.Get(ctx, scan.ID)
	switch {
	case err == nil:
		scan.Revision = max(scan.Revision, existing.Revision) + 1
	case errors.Is(err, healthscans.ErrScanNotFound):
		scan.Revision = max(scan.Revision, 1)
	default:
		return types.HealthScan{}, err
	}

	scan.UpdatedAt = time.Now().UTC()
	scan = Enrich(scan)

	err = s.persist(ctx, scan)
	if err != nil {
		return types.HealthScan{}, err
	}

	return scan, nil
}

// Sync reconciles a client copy of the history with the server copy. Scans
// where the client holds the winning version are written to the database
// before the merged history is capped for the response.
func (s *service) Sync(ctx context.Context, clientLogs []types.HealthScan) ([]types.HealthScan, error) {
	clientLogs = lo.Map(clientLogs, func(l types.HealthScan, _ int) types.HealthScan {
		l.Revision = max(l.Revision, 1)
		return l
	})

	for _, l := range clientLogs {
		if l.ID == "" {
			return nil, ErrMissingID
		}
	}

	serverLogs, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	merged := Reconcile(clientLogs, serverLogs, 0)

	server := lo.SliceToMap(serverLogs, func(l types.HealthScan) (string, types.HealthScan) { return l.ID, l })
	now := time.Now().UTC()

	for i, m := range merged {
		if existing, ok := server[m.ID]; ok && existing.Revision == m.Revision && existing.UpdatedAt.Equal(m.UpdatedAt) {
			merged[i] = Enrich(m)
			continue
		}

		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = now
		}

		m = Enrich(m)
		if err = s.repo.Save(ctx, fromType(m)); err != nil {
			return nil, err
		}
		merged[i] = m
	}

	merged = head(merged, s.config.HistoryLimit)
	s.updateCache(ctx, merged)

	return merged, nil
}

func (s *service) load(ctx context.Context) ([]types.HealthScan, error) {
	stored, err := s.repo.List(ctx, 0, s.config.HistoryLimit)
	if err != nil {
		return nil, err
	}

	logs := lo.Map(stored, func(h healthscans.HealthScan, _ int) types.HealthScan { return Enrich(toType(h)) })
	return Reconcile(logs, nil, s.config.HistoryLimit), nil
}

func (s *service) persist(ctx context.Context, scan types.HealthScan) error {
	err := s.repo.Save(ctx, fromType(scan))
	if err != nil {
		return err
	}

	s.mergeIntoCache(ctx, scan)
	return nil
}

// mergeIntoCache adds a scan to the cached history, retrying when another
// writer got there first.
func (s *service) mergeIntoCache(ctx context.Context, scan types.HealthScan) {
	logger := logging.GetFromContext(ctx)

	for attempt := 0; attempt < 3; attempt++ {
		cached := []types.HealthScan{}

		meta, err := s.cache.Get(ctx, HistoryKey, &cached)
		if err != nil {
			// a missing or unreadable cache is rebuilt on the next read
			_ = s.cache.Delete(ctx, HistoryKey)
			return
		}

		_, err = s.cache.Put(ctx, HistoryKey, Reconcile([]types.HealthScan{scan}, cached, s.config.HistoryLimit), meta.Revision)
		if err == nil {
			return
		}
		if !errors.Is(err, kvstore.ErrRevisionConflict) {
			logger.Error().Err(err).Msg("could not update cached health history")
			return
		}
	}

	_ = s.cache.Delete(ctx, HistoryKey)
}

func (s *service) updateCache(ctx context.Context, logs []types.HealthScan) {
	logger := logging.GetFromContext(ctx)

	meta, err := s.cache.Get(ctx, HistoryKey, nil)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		if err = s.cache.Delete(ctx, HistoryKey); err != nil {
			logger.Error().Err(err).Msg("could not reset cached health history")
			return
		}
		meta = kvstore.Meta{}
	}

	_, err = s.cache.Put(ctx, HistoryKey, logs, meta.Revision)
	if err != nil {
		logger.Debug().Err(err).Msg("cached health history not updated")
	}
}

func head(logs []types.HealthScan, n int) []types.HealthScan {
	if len(logs) > n {
		return logs[:n]
	}
	return logs
}

func toType(h healthscans.HealthScan) types.HealthScan {
	return types.HealthScan{
		ID:         h.ID,
		Time:       h.Time,
		Date:       h.Date,
		Researcher: h.Researcher,
		PondID:     h.PondID,
		Condition:  h.Condition,
		Status:     h.Status,
		Confidence: h.Confidence,
		Advice:     h.Advice,
		Behaviors:  h.Behaviors,
		Img:        h.Img,
		Revision:   h.Revision,
		UpdatedAt:  h.ModifiedAt,
	}
}

func fromType(s types.HealthScan) *healthscans.HealthScan {
	return &healthscans.HealthScan{
		ID:         s.ID,
		Time:       s.Time,
		Date:       s.Date,
		Researcher: s.Researcher,
		PondID:     s.PondID,
		Condition:  s.Condition,
		Status:     s.Status,
		Confidence: s.Confidence,
		Advice:     s.Advice,
		Behaviors:  s.Behaviors,
		Img:        s.Img,
		Revision:   s.Revision,
		ModifiedAt: s.UpdatedAt,
		ScannedAt:  scannedAt(s),
	}
}

func scannedAt(s types.HealthScan) time.Time {
	if t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.Time, time.Local); err == nil {
		return t.UTC()
	}
	return s.UpdatedAt
}

