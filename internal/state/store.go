package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imamik/webui-gke/internal/provisioning"
)

// Store implements provisioning.StateStore on a GORM database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps an already migrated database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec provisioning.ResourceRecord) (*ResourceRow, error) {
	r := rec.Resource
	scope, err := json.Marshal(r.Scope)
	if err != nil {
		return nil, err
	}
	descriptor, err := json.Marshal(r.Descriptor)
	if err != nil {
		return nil, err
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return nil, err
	}
	deps, err := json.Marshal(r.DependsOn)
	if err != nil {
		return nil, err
	}
	policy := r.Policy
	if policy == "" {
		policy = provisioning.PolicyEphemeral
	}

	return &ResourceRow{
		Key:        r.Key(),
		GroupName:  rec.Group,
		Kind:       string(r.Kind),
		Type:       r.Type,
		Name:       r.Name,
		Scope:      string(scope),
		Identity:   r.Identity,
		Descriptor: string(descriptor),
		Outputs:    string(outputs),
		Policy:     string(policy),
		DependsOn:  string(deps),
	}, nil
}

func fromRow(row *ResourceRow) (*provisioning.ResourceRecord, error) {
	rec := &provisioning.ResourceRecord{
		Resource: provisioning.ManagedResource{
			Ref: provisioning.Ref{
				Kind: provisioning.Kind(row.Kind),
				Type: row.Type,
				Name: row.Name,
			},
			Identity: row.Identity,
			Policy:   provisioning.Policy(row.Policy),
		},
		Group:     row.GroupName,
		UpdatedAt: row.UpdatedAt,
	}

	fields := []struct {
		name string
		raw  string
		dst  interface{}
	}{
		{"scope", row.Scope, &rec.Resource.Scope},
		{"descriptor", row.Descriptor, &rec.Resource.Descriptor},
		{"outputs", row.Outputs, &rec.Outputs},
		{"depends_on", row.DependsOn, &rec.Resource.DependsOn},
	}
	for _, f := range fields {
		if f.raw == "" || f.raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("corrupt %s for %s: %w", f.name, row.Key, err)
		}
	}

	return rec, nil
}

// GetResource implements provisioning.StateStore.
func (s *Store) GetResource(ctx context.Context, key string) (*provisioning.ResourceRecord, error) {
	var row ResourceRow
	if err := s.db.WithContext(ctx).First(&row, "resource_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state for %s: %w", key, err)
	}
	return fromRow(&row)
}

// ListResources implements provisioning.StateStore.
func (s *Store) ListResources(ctx context.Context, group string) ([]provisioning.ResourceRecord, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC").Order("resource_key ASC")
	if group != "" {
		q = q.Where("group_name = ?", group)
	}

	var rows []ResourceRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list state: %w", err)
	}

	out := make([]provisioning.ResourceRecord, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// PutResource implements provisioning.StateStore. Records are upserted by key;
// the creation time and row id of an existing record are preserved.
func (s *Store) PutResource(ctx context.Context, rec provisioning.ResourceRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", rec.Resource.Key(), err)
	}
	now := s.now()
	row.ID = "res-" + uuid.NewString()
	row.CreatedAt = now
	row.UpdatedAt = now

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resource_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"group_name", "kind", "type", "name", "scope", "identity",
			"descriptor", "outputs", "policy", "depends_on", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to write state for %s: %w", row.Key, err)
	}
	return nil
}

// DeleteResource implements provisioning.StateStore. Deleting a missing key is a no-op.
func (s *Store) DeleteResource(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&ResourceRow{}, "resource_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete state for %s: %w", key, err)
	}
	return nil
}

// GetTarget implements provisioning.StateStore.
func (s *Store) GetTarget(ctx context.Context, environment string) (*provisioning.DeploymentTarget, error) {
	var row TargetRow
	if err := s.db.WithContext(ctx).First(&row, "environment = ?", environment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read deployment target: %w", err)
	}
	return &provisioning.DeploymentTarget{
		Environment: row.Environment,
		Cluster:     row.Cluster,
		Namespace:   row.Namespace,
		Release:     row.Release,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,

		DataInitialized: row.Initialized,
	}, nil
}

// PutTarget implements provisioning.StateStore. The target is created once and
// updated on later runs; it is never deleted by this package.
func (s *Store) PutTarget(ctx context.Context, t provisioning.DeploymentTarget) error {
	now := s.now()
	row := &TargetRow{
		Environment: t.Environment,
		Cluster:     t.Cluster,
		Namespace:   t.Namespace,
		Release:     t.Release,
		Initialized: t.DataInitialized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "environment"}},
		DoUpdates: clause.AssignmentColumns([]string{"cluster", "namespace", "release", "data_initialized", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to write deployment target: %w", err)
	}
	return nil
}

var _ provisioning.StateStore = (*Store)(nil)
