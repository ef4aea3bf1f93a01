package healthscans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	. "github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/repositories/database"
)

type HealthScan struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ScannedAt  time.Time `gorm:"index"`
	Time       string
	Date       string
	Researcher string
	PondID     uint `gorm:"index"`
	Condition  string
	Status     string
	Confidence float64
	Advice     string
	Behaviors  []string `gorm:"serializer:json"`
	Img        string   `gorm:"type:text"`

	Revision   uint64
	ModifiedAt time.Time
}

//go:generate moq -rm -out healthscanrepository_mock.go . HealthScanRepository

type HealthScanRepository interface {
	Save(ctx context.Context, scan *HealthScan) error
	Get(ctx context.Context, scanID string) (HealthScan, error)
	List(ctx context.Context, pondID uint, limit int) ([]HealthScan, error)
}

var ErrScanNotFound = fmt.Errorf("health scan not found")

type healthScanRepository struct {
	db *gorm.DB
}

func NewHealthScanRepository(connect ConnectorFunc) (HealthScanRepository, error) {
	impl, _, err := connect()
	if err != nil {
		return nil, err
	}

	err = impl.AutoMigrate(&HealthScan{})
	if err != nil {
		return nil, err
	}

	return &healthScanRepository{db: impl}, nil
}

// Save inserts the scan or replaces the stored copy with the same id.
func (r *healthScanRepository) Save(ctx context.Context, scan *HealthScan) error {
	if scan.ScannedAt.IsZero() {
		scan.ScannedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Save(scan).Error
}

func (r *healthScanRepository) Get(ctx context.Context, scanID string) (HealthScan, error) {
	scan := HealthScan{}

	err := r.db.WithContext(ctx).Where(&HealthScan{ID: scanID}).First(&scan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return HealthScan{}, ErrScanNotFound
		}
		return HealthScan{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return scan, nil
}

// List returns scans newest first. A zero pondID matches all ponds.
func (r *healthScanRepository) List(ctx context.Context, pondID uint, limit int) ([]HealthScan, error) {
	var scans []HealthScan

	query := r.db.WithContext(ctx)
	if pondID != 0 {
		query = query.Where("pond_id = ?", pondID)
	}

	err := query.Order("scanned_at desc").Limit(limit).Find(&scans).Error
	if err != nil {
		return []HealthScan{}, fmt.Errorf("%w: %s", ErrRepositoryError, err.Error())
	}

	return scans, nil
}
