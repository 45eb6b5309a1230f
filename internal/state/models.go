package state

import "time"

// ResourceRow is the persistence model for provisioning.ResourceRecord.
// Table name: resources
type ResourceRow struct {
	Key        string    `gorm:"column:resource_key;primaryKey;type:text;not null"`
	ID         string    `gorm:"type:text;not null;uniqueIndex"`
	GroupName  string    `gorm:"column:group_name;type:text;not null;index"`
	Kind       string    `gorm:"type:text;not null"`
	Type       string    `gorm:"type:text;not null"`
	Name       string    `gorm:"type:text;not null"`
	Scope      string    `gorm:"type:text"` // JSON encoded provisioning.Scope
	Identity   string    `gorm:"type:text"`
	Descriptor string    `gorm:"type:text"` // JSON encoded map[string]string
	Outputs    string    `gorm:"type:text"` // JSON encoded map[string]string
	Policy     string    `gorm:"type:text;not null"`
	DependsOn  string    `gorm:"type:text"` // JSON encoded []string
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (ResourceRow) TableName() string { return "resources" }

// TargetRow is the persistence model for provisioning.DeploymentTarget.
// Table name: deployment_targets
type TargetRow struct {
	Environment string    `gorm:"primaryKey;type:text;not null"`
	Cluster     string    `gorm:"type:text;not null"`
	Namespace   string    `gorm:"type:text;not null"`
	Release     string    `gorm:"type:text;not null"`
	Initialized bool      `gorm:"column:data_initialized;not null;default:false"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (TargetRow) TableName() string { return "deployment_targets" }

// LockRow is the single-row run lock.
// Table name: locks
type LockRow struct {
	Name       string    `gorm:"primaryKey;type:text;not null"`
	Holder     string    `gorm:"type:text;not null"`
	Host       string    `gorm:"type:text"`
	PID        int       `gorm:"not null"`
	AcquiredAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null"`
}

func (LockRow) TableName() string { return "locks" }
