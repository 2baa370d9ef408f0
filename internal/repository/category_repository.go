package repository

import (
	"context"
	"database/sql"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
)

func (q *queries) CreateCategory(ctx context.Context, category *entity.Category) error {
	query := `INSERT INTO categories (name, description, created_at) VALUES (?, ?, ?)`
	res, err := q.db.ExecContext(ctx, query, category.Name, nullString(category.Description), category.CreatedAt)
	if err != nil {
		return mapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	category.ID = id
	return nil
}

func (q *queries) GetCategory(ctx context.Context, id int64) (*entity.Category, error) {
	query := `SELECT id, name, description, created_at FROM categories WHERE id = ?`

	category := &entity.Category{}
	var description sql.NullString
	err := q.db.QueryRowContext(ctx, query, id).Scan(&category.ID, &category.Name, &description, &category.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	category.Description = description.String
	return category, nil
}

func (q *queries) ListCategories(ctx context.Context) ([]entity.Category, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []entity.Category{}
	for rows.Next() {
		var (
			category    entity.Category
			description sql.NullString
		)
		if err := rows.Scan(&category.ID, &category.Name, &description, &category.CreatedAt); err != nil {
			return nil, err
		}
		category.Description = description.String
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (q *queries) DeleteCategory(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}

// AddProductCategory returns ErrDuplicate when the pair already exists and
// ErrNotFound when either side is missing.
func (q *queries) AddProductCategory(ctx context.Context, link *entity.ProductCategory) error {
	query := `INSERT INTO product_categories (product_id, category_id) VALUES (?, ?)`
	res, err := q.db.ExecContext(ctx, query, link.ProductID, link.CategoryID)
	if err != nil {
		return mapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
