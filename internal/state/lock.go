package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/imamik/webui-gke/internal/provisioning"
)

const runLockName = "run"

// Lock is a held run lock. Release it when the run ends.
type Lock struct {
	store  *Store
	Holder string
	Host   string
	PID    int
}

// LockInfo describes the current holder of a lock another run is waiting on.
type LockInfo struct {
	Holder     string
	Host       string
	PID        int
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Lock acquires the run lock. A lock older than ttl is considered abandoned
// and taken over. A live lock held by someone else yields an error wrapping
// provisioning.ErrStateLocked.
func (s *Store) Lock(ctx context.Context, ttl time.Duration) (*Lock, error) {
	host, _ := os.Hostname()
	lock := &Lock{
		store:  s,
		Holder: uuid.NewString(),
		Host:   host,
		PID:    os.Getpid(),
	}

	var held *LockInfo
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LockRow
		err := tx.First(&existing, "name = ?", runLockName).Error
		switch {
		case err == nil:
			if s.now().Before(existing.ExpiresAt) {
				held = &LockInfo{
					Holder:     existing.Holder,
					Host:       existing.Host,
					PID:        existing.PID,
					AcquiredAt: existing.AcquiredAt,
					ExpiresAt:  existing.ExpiresAt,
				}
				return provisioning.ErrStateLocked
			}
			if err := tx.Delete(&LockRow{}, "name = ? AND holder = ?", runLockName, existing.Holder).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		now := s.now()
		return tx.Create(&LockRow{
			Name:       runLockName,
			Holder:     lock.Holder,
			Host:       lock.Host,
			PID:        lock.PID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}).Error
	})

	if err != nil {
		if held != nil {
			return nil, fmt.Errorf("%w: held by pid %d on %s since %s", provisioning.ErrStateLocked,
				held.PID, held.Host, held.AcquiredAt.Format(time.RFC3339))
		}
		if isUniqueViolation(err) {
			return nil, provisioning.ErrStateLocked
		}
		return nil, fmt.Errorf("failed to acquire state lock: %w", err)
	}

	return lock, nil
}

// Release drops the lock if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.store.db.WithContext(ctx).Delete(&LockRow{}, "name = ? AND holder = ?", runLockName, l.Holder).Error; err != nil {
		return fmt.Errorf("failed to release state lock: %w", err)
	}
	return nil
}

// ForceUnlock removes any lock regardless of holder.
func (s *Store) ForceUnlock(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&LockRow{}, "name = ?", runLockName).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
