package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

// Service handles property snapshot operations
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a new snapshot service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// DetectChanges compares current property state with the most recent snapshot before today
func (s *Service) DetectChanges(ctx context.Context, property *models.Property) ([]models.PropertyChange, error) {
	var lastSnapshot models.PropertySnapshot
	result := s.db.WithContext(ctx).Where("property_id = ? AND snapshot_at < ?", property.ID, s.today()).
		Order("snapshot_at DESC").
		First(&lastSnapshot)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return Compare(nil, property), nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	return Compare(&lastSnapshot, property), nil
}

// Compare lists what changed between a snapshot and the current property.
// A nil snapshot means the property is new.
func Compare(last *models.PropertySnapshot, property *models.Property) []models.PropertyChange {
	if last == nil {
		return []models.PropertyChange{{
			PropertyID: property.ID,
			ChangeType: models.ChangeTypeNew,
			NewValue:   "New property detected",
		}}
	}

	changes := []models.PropertyChange{}

	if property.Price != last.Price {
		magnitude := float64(property.Price - last.Price)
		changes = append(changes, models.PropertyChange{
			PropertyID:      property.ID,
			ChangeType:      models.ChangeTypePrice,
			OldValue:        fmt.Sprintf("%d", last.Price),
			NewValue:        fmt.Sprintf("%d", property.Price),
			ChangeMagnitude: &magnitude,
		})
	}

	if string(property.Status) != last.Status {
		changes = append(changes, models.PropertyChange{
			PropertyID: property.ID,
			ChangeType: models.ChangeTypeStatus,
			OldValue:   last.Status,
			NewValue:   string(property.Status),
		})
	}

	if property.Bedrooms != last.Bedrooms {
		magnitude := float64(property.Bedrooms - last.Bedrooms)
		changes = append(changes, models.PropertyChange{
			PropertyID:      property.ID,
			ChangeType:      models.ChangeTypeBedrooms,
			OldValue:        fmt.Sprintf("%d", last.Bedrooms),
			NewValue:        fmt.Sprintf("%d", property.Bedrooms),
			ChangeMagnitude: &magnitude,
		})
	}

	if fmt.Sprintf("%.2f", property.AreaSqft) != fmt.Sprintf("%.2f", last.AreaSqft) {
		magnitude := property.AreaSqft - last.AreaSqft
		changes = append(changes, models.PropertyChange{
			PropertyID:      property.ID,
			ChangeType:      models.ChangeTypeArea,
			OldValue:        fmt.Sprintf("%.2f", last.AreaSqft),
			NewValue:        fmt.Sprintf("%.2f", property.AreaSqft),
			ChangeMagnitude: &magnitude,
		})
	}

	if property.PropertyType != last.PropertyType {
		changes = append(changes, models.PropertyChange{
			PropertyID: property.ID,
			ChangeType: models.ChangeTypeType,
			OldValue:   last.PropertyType,
			NewValue:   property.PropertyType,
		})
	}

	if property.CoverImageURL != last.CoverImageURL {
		changes = append(changes, models.PropertyChange{
			PropertyID: property.ID,
			ChangeType: models.ChangeTypeImage,
			OldValue:   last.CoverImageURL,
			NewValue:   property.CoverImageURL,
		})
	}

	return changes
}

// Record writes today's snapshot of a property and the changes since the previous one.
// Re-running on the same day replaces both, so repeated syncs do not duplicate changes.
func (s *Service) Record(ctx context.Context, property *models.Property) ([]models.PropertyChange, error) {
	changes, err := s.DetectChanges(ctx, property)
	if err != nil {
		return nil, fmt.Errorf("detect changes for %s: %w", property.ID, err)
	}

	now := s.now().UTC()
	snapshot := &models.PropertySnapshot{
		PropertyID:    property.ID,
		SnapshotAt:    s.today(),
		Price:         property.Price,
		Bedrooms:      property.Bedrooms,
		AreaSqft:      property.AreaSqft,
		PropertyType:  property.PropertyType,
		CoverImageURL: property.CoverImageURL,
		Status:        string(property.Status),
		HasChanged:    len(changes) > 0,
	}
	if len(changes) > 0 {
		snapshot.ChangeNote = changeNote(changes)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.PropertySnapshot
		result := tx.Where("property_id = ? AND snapshot_at = ?", property.ID, snapshot.SnapshotAt).First(&existing)

		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			if err := tx.Create(snapshot).Error; err != nil {
				return err
			}
		} else if result.Error != nil {
			return result.Error
		} else {
			snapshot.ID = existing.ID
			snapshot.CreatedAt = existing.CreatedAt
			if err := tx.Save(snapshot).Error; err != nil {
				return err
			}
			if err := tx.Where("snapshot_id = ?", snapshot.ID).Delete(&models.PropertyChange{}).Error; err != nil {
				return err
			}
		}

		if len(changes) == 0 {
			return nil
		}
		for i := range changes {
			changes[i].SnapshotID = snapshot.ID
			changes[i].DetectedAt = now
		}
		return tx.Create(&changes).Error
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		logging.ForComponent("snapshot").Debugf("Detected %d changes for property %s", len(changes), property.ID)
	}
	return changes, nil
}

func changeNote(changes []models.PropertyChange) string {
	notes := make([]string, 0, len(changes))
	for _, change := range changes {
		if change.ChangeType == models.ChangeTypeNew {
			notes = append(notes, change.ChangeType)
			continue
		}
		notes = append(notes, fmt.Sprintf("%s: %s -> %s", change.ChangeType, change.OldValue, change.NewValue))
	}
	return strings.Join(notes, "; ")
}

// GetPropertyHistory retrieves snapshot history for a property
func (s *Service) GetPropertyHistory(propertyID string, limit int) ([]models.PropertySnapshot, error) {
	var snapshots []models.PropertySnapshot
	query := s.db.Where("property_id = ?", propertyID).Order("snapshot_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}

	return snapshots, nil
}

// GetRecentChanges retrieves recent property changes
func (s *Service) GetRecentChanges(limit int) ([]models.PropertyChange, error) {
	var changes []models.PropertyChange
	query := s.db.Order("detected_at DESC").Order("id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&changes).Error; err != nil {
		return nil, err
	}

	return changes, nil
}
