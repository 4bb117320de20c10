package postgres

import (
	"context"

	"github.com/frahmantamala/iam-service/internal/auth"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

const credentialColumns = `SELECT id, username, email, password_hash, is_active FROM users`

// FindByLogin prefers a username match so an email-shaped username still
// resolves to its own account.
func (r *Repository) FindByLogin(ctx context.Context, login string) (*auth.Credentials, error) {
	var found []auth.Credentials
	query := credentialColumns + ` WHERE username = ? OR email = ? ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END LIMIT 1`
	if err := r.db.WithContext(ctx).Raw(query, login, login, login).Scan(&found).Error; err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *Repository) FindByID(ctx context.Context, userID int64) (*auth.Credentials, error) {
	var found []auth.Credentials
	if err := r.db.WithContext(ctx).Raw(credentialColumns+` WHERE id = ?`, userID).Scan(&found).Error; err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}
