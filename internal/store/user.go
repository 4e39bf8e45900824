package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/studyshelf/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Firstname,
		&user.Lastname,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Grade,
		&user.Role,
		&user.IsApproved,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, firstname, lastname, username, email, password_hash, grade, role, is_approved
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT id, firstname, lastname, username, email, password_hash, grade, role, is_approved
		FROM users
		WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, username))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, firstname, lastname, username, email, password_hash, grade, role, is_approved
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT id, firstname, lastname, username, email, password_hash, grade, role, is_approved
		FROM users
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		var user types.User
		if err := rows.Scan(
			&user.ID,
			&user.Firstname,
			&user.Lastname,
			&user.Username,
			&user.Email,
			&user.PasswordHash,
			&user.Grade,
			&user.Role,
			&user.IsApproved,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	const query = `
		INSERT INTO users (firstname, lastname, username, email, password_hash, grade, role, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Firstname,
		user.Lastname,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Grade,
		user.Role,
		user.IsApproved,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// SetApproval flips the approval flag for a user.
func (r *UserRepository) SetApproval(ctx context.Context, id int, approved bool) error {
	const query = `UPDATE users SET is_approved = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, approved, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMaterialsByOwner reports how many materials a user has authored.
// Used to block dismissal of users who still own materials.
func (r *UserRepository) CountMaterialsByOwner(ctx context.Context, ownerID int) (int, error) {
	const query = `SELECT COUNT(1) FROM materials WHERE owner_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
