package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bsn-realtime/internal/domain"
	bsn_errors "bsn-realtime/pkg/errors"
)

type SQLUserRepository struct {
	db      DBTX
	dialect Dialect
}

func NewUserRepository(db DBTX, dialect Dialect) UserRepository {
	return &SQLUserRepository{db: db, dialect: dialect}
}

func (r *SQLUserRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(`
        SELECT id, username, display_name, avatar_url FROM users WHERE id = $1
    `), id).Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, bsn_errors.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Upsert writes the profile mirror row. The user service owns the data.
func (r *SQLUserRepository) Upsert(ctx context.Context, u *domain.User) error {
	if u.ID == "" || u.Username == "" {
		return fmt.Errorf("%w: user id and username are required", bsn_errors.ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, r.dialect.rebind(`
        INSERT INTO users (id, username, display_name, avatar_url)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET
            username = excluded.username,
            display_name = excluded.display_name,
            avatar_url = excluded.avatar_url
    `), u.ID, u.Username, u.DisplayName, u.AvatarURL)
	if isUniqueViolation(err) {
		return bsn_errors.ErrConflict
	}
	return err
}
