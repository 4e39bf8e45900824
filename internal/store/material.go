package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/studyshelf/apiserver/types"
)

// MaterialRepository handles persistence for teaching materials.
type MaterialRepository struct {
	db *sql.DB
}

func NewMaterialRepository(db *sql.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

func (r *MaterialRepository) GetByID(ctx context.Context, id int) (types.Material, error) {
	const query = `
		SELECT id, title, description, thumbnail, files, grade, owner_id, path, created_at, updated_at
		FROM materials
		WHERE id = $1`
	var material types.Material
	var path sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&material.ID,
		&material.Title,
		&material.Description,
		&material.Thumbnail,
		pq.Array(&material.Files),
		&material.Grade,
		&material.OwnerID,
		&path,
		&material.CreatedAt,
		&material.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Material{}, ErrNotFound
		}
		return types.Material{}, err
	}
	material.Path = path.String
	return material, nil
}

// ListByPath returns every material filed under a path, in no particular
// order. Visibility filtering and ordering are the authorization engine's
// job, not the store's.
func (r *MaterialRepository) ListByPath(ctx context.Context, path string) ([]types.Material, error) {
	const query = `
		SELECT id, title, description, thumbnail, files, grade, owner_id, path, created_at, updated_at
		FROM materials
		WHERE path = $1`
	rows, err := r.db.QueryContext(ctx, query, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]types.Material, 0)
	for rows.Next() {
		var material types.Material
		var rowPath sql.NullString
		if err := rows.Scan(
			&material.ID,
			&material.Title,
			&material.Description,
			&material.Thumbnail,
			pq.Array(&material.Files),
			&material.Grade,
			&material.OwnerID,
			&rowPath,
			&material.CreatedAt,
			&material.UpdatedAt,
		); err != nil {
			return nil, err
		}
		material.Path = rowPath.String
		materials = append(materials, material)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return materials, nil
}

func (r *MaterialRepository) Create(ctx context.Context, material types.Material) (types.Material, error) {
	material.CreatedAt = time.Now()
	material.UpdatedAt = nil

	const query = `
		INSERT INTO materials (title, description, thumbnail, files, grade, owner_id, path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		material.Title,
		material.Description,
		material.Thumbnail,
		pq.Array(material.Files),
		material.Grade,
		material.OwnerID,
		material.Path,
		material.CreatedAt,
	).Scan(&material.ID); err != nil {
		return types.Material{}, err
	}
	return material, nil
}

// Update rewrites a material's editable fields and stamps updated_at.
func (r *MaterialRepository) Update(ctx context.Context, material types.Material) (types.Material, error) {
	now := time.Now()
	material.UpdatedAt = &now

	const query = `
		UPDATE materials
		SET title = $1,
			description = $2,
			thumbnail = $3,
			files = $4,
			grade = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		material.Title,
		material.Description,
		material.Thumbnail,
		pq.Array(material.Files),
		material.Grade,
		material.UpdatedAt,
		material.ID,
	)
	if err != nil {
		return types.Material{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Material{}, err
	}
	if affected == 0 {
		return types.Material{}, ErrNotFound
	}
	return material, nil
}

// UpdateFiles rewrites only the attachment list and stamps updated_at.
func (r *MaterialRepository) UpdateFiles(ctx context.Context, id int, files []string) error {
	const query = `
		UPDATE materials
		SET files = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, pq.Array(files), time.Now(), id)
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

func (r *MaterialRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM materials WHERE id = $1`
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
