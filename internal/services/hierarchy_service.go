package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/repository"
)

// CreatePropertyInput carries the fields needed to create a property.
// CountyID must reference an existing county.
type CreatePropertyInput struct {
	CountyID     string
	ParcelNumber *string
	Address      *string
	OwnerName    *string
	Geometry     models.Geometry
	TaxStatus    models.TaxStatus
}

// PropertyPatch is a partial update. Nil fields are left untouched.
// CountyID is present only so a disallowed parent change can be detected
// and rejected; moving a property must go through MoveProperty.
type PropertyPatch struct {
	CountyID      *string
	ParcelNumber  *string
	Address       *string
	OwnerName     *string
	Geometry      models.Geometry
	TaxLienStatus *string
	AssessedValue *float64
	MarketValue   *float64
	LienAmount    *float64
	SaleDate      *time.Time
}

// HierarchyService keeps property, county, and state statistics consistent
// across structural changes. Every operation runs inside one store
// transaction: either the property write and both ancestor writes commit,
// or none do.
type HierarchyService interface {
	// CreateProperty inserts a property under its county and increments the
	// county's and state's statistics. Returns ErrCountyNotFound when the
	// parent county does not exist.
	CreateProperty(ctx context.Context, input CreatePropertyInput) (*models.Property, error)

	// DeleteProperty removes a property and decrements ancestor statistics.
	// Deleting a missing property is a no-op returning false.
	DeleteProperty(ctx context.Context, id string) (bool, error)

	// MoveProperty reparents a property onto a new county, transferring its
	// full statistic contribution between the old and new ancestor chains.
	MoveProperty(ctx context.Context, id, newCountyID string) (*models.Property, error)

	// UpdateProperty applies a field patch. Changes to assessed value or
	// lien status shift ancestor statistics by the difference in the same
	// transaction. Parent changes are rejected with ErrParentImmutable.
	UpdateProperty(ctx context.Context, id string, patch PropertyPatch) (*models.Property, error)

	// GetProperty returns a property by id, or nil, nil when missing.
	GetProperty(ctx context.Context, id string) (*models.Property, error)
}

type hierarchyService struct {
	store repository.Store
	log   *logger.Logger
	clock clockwork.Clock
}

// NewHierarchyService creates a new HierarchyService instance.
func NewHierarchyService(store repository.Store, log *logger.Logger, clock clockwork.Clock) HierarchyService {
	return &hierarchyService{
		store: store,
		log:   log,
		clock: clock,
	}
}

func (s *hierarchyService) CreateProperty(ctx context.Context, input CreatePropertyInput) (*models.Property, error) {
	now := s.clock.Now().UTC()

	property := &models.Property{
		ID:           uuid.New().String(),
		CountyID:     input.CountyID,
		ParcelNumber: input.ParcelNumber,
		Address:      input.Address,
		OwnerName:    input.OwnerName,
		Geometry:     input.Geometry,
		TaxStatus:    input.TaxStatus,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		county, err := tx.GetCounty(ctx, input.CountyID)
		if err != nil {
			return err
		}
		if county == nil {
			return fmt.Errorf("%w: %s", ErrCountyNotFound, input.CountyID)
		}

		state, err := tx.GetState(ctx, county.StateID)
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("%w: %s", ErrStateNotFound, county.StateID)
		}

		property.StateID = county.StateID
		if err := tx.InsertProperty(ctx, property); err != nil {
			return err
		}

		d := deltaFor(property)
		applyDelta(&county.Statistics, d, now)
		county.UpdatedAt = now
		if err := tx.PutCounty(ctx, county); err != nil {
			return err
		}

		applyDelta(&state.Statistics, d, now)
		state.UpdatedAt = now
		return tx.PutState(ctx, state)
	})
	if err != nil {
		s.log.Error("Failed to create property", err, map[string]interface{}{
			"county_id": input.CountyID,
		})
		return nil, err
	}

	s.log.Info("Property created", map[string]interface{}{
		"property_id": property.ID,
		"county_id":   property.CountyID,
		"state_id":    property.StateID,
		"lien_status": property.TaxStatus.TaxLienStatus,
	})
	return property, nil
}

func (s *hierarchyService) DeleteProperty(ctx context.Context, id string) (bool, error) {
	now := s.clock.Now().UTC()
	deleted := false

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		property, err := tx.GetProperty(ctx, id)
		if err != nil {
			return err
		}
		if property == nil {
			// Idempotent: deleting a missing property is not an error.
			return nil
		}

		county, err := tx.GetCounty(ctx, property.CountyID)
		if err != nil {
			return err
		}
		if county == nil {
			return fmt.Errorf("%w: %s", ErrCountyNotFound, property.CountyID)
		}

		state, err := tx.GetState(ctx, county.StateID)
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("%w: %s", ErrStateNotFound, county.StateID)
		}

		if _, err := tx.DeleteProperty(ctx, id); err != nil {
			return err
		}

		d := deltaFor(property).negate()
		applyDelta(&county.Statistics, d, now)
		county.UpdatedAt = now
		if err := tx.PutCounty(ctx, county); err != nil {
			return err
		}

		applyDelta(&state.Statistics, d, now)
		state.UpdatedAt = now
		if err := tx.PutState(ctx, state); err != nil {
			return err
		}

		deleted = true
		return nil
	})
	if err != nil {
		s.log.Error("Failed to delete property", err, map[string]interface{}{
			"property_id": id,
		})
		return false, err
	}

	if deleted {
		s.log.Info("Property deleted", map[string]interface{}{
			"property_id": id,
		})
	}
	return deleted, nil
}

func (s *hierarchyService) MoveProperty(ctx context.Context, id, newCountyID string) (*models.Property, error) {
	now := s.clock.Now().UTC()
	var moved *models.Property

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		property, err := tx.GetProperty(ctx, id)
		if err != nil {
			return err
		}
		if property == nil {
			return fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
		}

		if property.CountyID == newCountyID {
			moved = property
			return nil
		}

		oldCounty, err := tx.GetCounty(ctx, property.CountyID)
		if err != nil {
			return err
		}
		if oldCounty == nil {
			return fmt.Errorf("%w: %s", ErrCountyNotFound, property.CountyID)
		}

		newCounty, err := tx.GetCounty(ctx, newCountyID)
		if err != nil {
			return err
		}
		if newCounty == nil {
			return fmt.Errorf("%w: %s", ErrCountyNotFound, newCountyID)
		}

		// Moving never changes the property's value or lien status, so the
		// exact contribution leaves the old chain and enters the new one.
		d := deltaFor(property)

		applyDelta(&oldCounty.Statistics, d.negate(), now)
		oldCounty.UpdatedAt = now
		if err := tx.PutCounty(ctx, oldCounty); err != nil {
			return err
		}

		applyDelta(&newCounty.Statistics, d, now)
		newCounty.UpdatedAt = now
		if err := tx.PutCounty(ctx, newCounty); err != nil {
			return err
		}

		// Same state: the two county deltas cancel at the state level, so
		// the state row is left untouched.
		if oldCounty.StateID != newCounty.StateID {
			oldState, err := tx.GetState(ctx, oldCounty.StateID)
			if err != nil {
				return err
			}
			if oldState == nil {
				return fmt.Errorf("%w: %s", ErrStateNotFound, oldCounty.StateID)
			}

			newState, err := tx.GetState(ctx, newCounty.StateID)
			if err != nil {
				return err
			}
			if newState == nil {
				return fmt.Errorf("%w: %s", ErrStateNotFound, newCounty.StateID)
			}

			applyDelta(&oldState.Statistics, d.negate(), now)
			oldState.UpdatedAt = now
			if err := tx.PutState(ctx, oldState); err != nil {
				return err
			}

			applyDelta(&newState.Statistics, d, now)
			newState.UpdatedAt = now
			if err := tx.PutState(ctx, newState); err != nil {
				return err
			}

			property.StateID = newCounty.StateID
		}

		property.CountyID = newCountyID
		property.UpdatedAt = now
		if err := tx.UpdateProperty(ctx, property); err != nil {
			return err
		}

		moved = property
		return nil
	})
	if err != nil {
		s.log.Error("Failed to move property", err, map[string]interface{}{
			"property_id":   id,
			"new_county_id": newCountyID,
		})
		return nil, err
	}

	s.log.Info("Property moved", map[string]interface{}{
		"property_id": id,
		"county_id":   moved.CountyID,
		"state_id":    moved.StateID,
	})
	return moved, nil
}

func (s *hierarchyService) UpdateProperty(ctx context.Context, id string, patch PropertyPatch) (*models.Property, error) {
	now := s.clock.Now().UTC()
	var updated *models.Property

	err := s.store.RunInTransaction(ctx, func(tx repository.Tx) error {
		property, err := tx.GetProperty(ctx, id)
		if err != nil {
			return err
		}
		if property == nil {
			return fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
		}

		if patch.CountyID != nil && *patch.CountyID != property.CountyID {
			return fmt.Errorf("%w: property %s", ErrParentImmutable, id)
		}

		before := deltaFor(property)
		applyPatch(property, patch)
		property.UpdatedAt = now

		// Value or lien changes shift the ancestors by the difference; the
		// property count term of the diff is always zero.
		diff := deltaFor(property).minus(before)
		if !diff.isZero() {
			county, err := tx.GetCounty(ctx, property.CountyID)
			if err != nil {
				return err
			}
			if county == nil {
				return fmt.Errorf("%w: %s", ErrCountyNotFound, property.CountyID)
			}

			state, err := tx.GetState(ctx, county.StateID)
			if err != nil {
				return err
			}
			if state == nil {
				return fmt.Errorf("%w: %s", ErrStateNotFound, county.StateID)
			}

			applyDelta(&county.Statistics, diff, now)
			county.UpdatedAt = now
			if err := tx.PutCounty(ctx, county); err != nil {
				return err
			}

			applyDelta(&state.Statistics, diff, now)
			state.UpdatedAt = now
			if err := tx.PutState(ctx, state); err != nil {
				return err
			}
		}

		if err := tx.UpdateProperty(ctx, property); err != nil {
			return err
		}

		updated = property
		return nil
	})
	if err != nil {
		s.log.Error("Failed to update property", err, map[string]interface{}{
			"property_id": id,
		})
		return nil, err
	}

	s.log.Info("Property updated", map[string]interface{}{
		"property_id": id,
	})
	return updated, nil
}

func (s *hierarchyService) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	var property *models.Property
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		property, err = tx.GetProperty(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load property %s: %w", id, err)
	}
	return property, nil
}

// applyPatch copies non-nil patch fields onto the property.
func applyPatch(p *models.Property, patch PropertyPatch) {
	if patch.ParcelNumber != nil {
		p.ParcelNumber = patch.ParcelNumber
	}
	if patch.Address != nil {
		p.Address = patch.Address
	}
	if patch.OwnerName != nil {
		p.OwnerName = patch.OwnerName
	}
	if len(patch.Geometry) > 0 {
		p.Geometry = patch.Geometry
	}
	if patch.TaxLienStatus != nil {
		p.TaxStatus.TaxLienStatus = *patch.TaxLienStatus
	}
	if patch.AssessedValue != nil {
		p.TaxStatus.AssessedValue = *patch.AssessedValue
	}
	if patch.MarketValue != nil {
		p.TaxStatus.MarketValue = *patch.MarketValue
	}
	if patch.LienAmount != nil {
		p.TaxStatus.LienAmount = patch.LienAmount
	}
	if patch.SaleDate != nil {
		p.TaxStatus.SaleDate = patch.SaleDate
	}
}
