package repository

import (
	"context"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"strings"
)

const productColumns = `p.id, p.name, p.description, p.price, p.stock, p.created_by, p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, product *entity.Product, extra ...any) error {
	dest := append([]any{&product.ID, &product.Name, &product.Description, &product.Price, &product.Stock,
		&product.CreatedBy, &product.CreatedAt, &product.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

func (q *queries) CreateProduct(ctx context.Context, product *entity.Product) error {
	query := `INSERT INTO products (name, description, price, stock, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := q.db.ExecContext(ctx, query, product.Name, product.Description, product.Price, product.Stock,
		product.CreatedBy, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return mapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	product.ID = id
	return nil
}

func (q *queries) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = ?`

	product := &entity.Product{}
	if err := scanProduct(q.db.QueryRowContext(ctx, query, id), product); err != nil {
		return nil, mapError(err)
	}
	return product, nil
}

func (q *queries) ListProducts(ctx context.Context, filter ProductFilter) ([]entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p`
	var (
		where []string
		args  []any
	)

	// Filter
	if filter.CategoryID != 0 {
		query += ` JOIN product_categories pc ON pc.product_id = p.id`
		where = append(where, `pc.category_id = ?`)
		args = append(args, filter.CategoryID)
	}
	if filter.Search != "" {
		where = append(where, `p.name LIKE ?`)
		args = append(args, "%"+filter.Search+"%")
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY p.id`

	// Apply pagination
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []entity.Product{}
	for rows.Next() {
		var product entity.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (q *queries) UpdateProduct(ctx context.Context, product *entity.Product) error {
	query := `UPDATE products SET name = ?, description = ?, price = ?, stock = ?, updated_at = ? WHERE id = ?`
	_, err := q.db.ExecContext(ctx, query, product.Name, product.Description, product.Price, product.Stock,
		product.UpdatedAt, product.ID)
	return mapError(err)
}

// DeleteProduct removes the product and its cart lines. Products referenced by
// order items are protected by a RESTRICT foreign key and yield ErrReferenced.
func (q *queries) DeleteProduct(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}
