package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate surfaces a unique-constraint violation; materialization
	// treats it as losing a benign race.
	ErrDuplicate = errors.New("duplicate record")
)

// Repositories is the aggregate handed to services.
type Repositories struct {
	db *gorm.DB

	Organization *OrganizationRepository
	Template     *TemplateRepository
	Checklist    *ChecklistRepository
	Defect       *DefectRepository
}

// NewRepositories creates the repository aggregate.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		Organization: NewOrganizationRepository(db),
		Template:     NewTemplateRepository(db),
		Checklist:    NewChecklistRepository(db),
		Defect:       NewDefectRepository(db),
	}
}

// Transaction runs fn with a repository aggregate bound to one database
// transaction. Write paths that touch several tables go through here.
func (r *Repositories) Transaction(ctx context.Context, fn func(txRepos *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// translate maps gorm errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}
