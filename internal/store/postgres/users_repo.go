package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

type UserRepo struct {
	db *bun.DB
}

func NewUserRepo(db *bun.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) CreateUser(ctx context.Context, user domain.User, profile domain.Profile) (domain.User, error) {
	var out domain.User
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u := user
		if _, err := tx.NewInsert().Model(&u).Exec(ctx); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return store.ErrEmailTaken
			}
			return err
		}

		p := profile
		p.UserID = u.ID
		if _, err := tx.NewInsert().Model(&p).Exec(ctx); err != nil {
			return err
		}

		out = u
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return out, nil
}

func (r *UserRepo) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var user domain.User
	err := r.db.NewSelect().
		Model(&user).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (r *UserRepo) FindUserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var user domain.User
	err := r.db.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (r *UserRepo) FindProfileByUserID(ctx context.Context, userID uuid.UUID) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.NewSelect().
		Model(&profile).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, store.ErrNotFound
		}
		return domain.Profile{}, err
	}
	return profile, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, firstName, lastName string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Profile)(nil)).
		Set("first_name = ?", firstName).
		Set("last_name = ?", lastName).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
