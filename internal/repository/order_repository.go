package repository

import (
	"context"
	"database/sql"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"strings"
	"time"
)

const orderColumns = `id, user_id, total_price, payment_status, tracking_code, payment_authority, created_at, updated_at`

func scanOrder(row rowScanner, order *entity.Order) error {
	var (
		status    string
		authority sql.NullString
	)
	err := row.Scan(&order.ID, &order.UserID, &order.TotalPrice, &status, &order.TrackingCode, &authority,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return err
	}

	order.PaymentStatus, err = entity.ParsePaymentStatusCode(status)
	if err != nil {
		return err
	}
	order.PaymentAuthority = authority.String
	return nil
}

func (q *queries) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE tracking_code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// InsertOrder stores the order header. A tracking code collision yields ErrDuplicate.
func (q *queries) InsertOrder(ctx context.Context, order *entity.Order) error {
	query := `INSERT INTO orders (user_id, total_price, payment_status, tracking_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := q.db.ExecContext(ctx, query, order.UserID, order.TotalPrice, order.PaymentStatus.Code(),
		order.TrackingCode, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return mapError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = id
	return nil
}

// InsertOrderItems stores the snapshot lines and sets their ids in place.
func (q *queries) InsertOrderItems(ctx context.Context, orderID int64, items []entity.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, quantity, price) VALUES (?, ?, ?, ?)`
	for i := range items {
		res, err := q.db.ExecContext(ctx, query, orderID, items[i].ProductID, items[i].Quantity, items[i].Price)
		if err != nil {
			return mapError(err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		items[i].ID = id
		items[i].OrderID = orderID
	}
	return nil
}

func (q *queries) getOrderWhere(ctx context.Context, where string, arg any) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where

	order := &entity.Order{}
	if err := scanOrder(q.db.QueryRowContext(ctx, query, arg), order); err != nil {
		return nil, mapError(err)
	}

	items, err := q.listOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []entity.OrderItem{}
	}
	return order, nil
}

func (q *queries) GetOrder(ctx context.Context, id int64) (*entity.Order, error) {
	return q.getOrderWhere(ctx, `id = ?`, id)
}

func (q *queries) GetOrderByTrackingCode(ctx context.Context, code string) (*entity.Order, error) {
	return q.getOrderWhere(ctx, `tracking_code = ?`, code)
}

func (q *queries) GetOrderByAuthority(ctx context.Context, authority string) (*entity.Order, error) {
	return q.getOrderWhere(ctx, `payment_authority = ?`, authority)
}

// ListOrdersByUser returns the user's orders, newest first, with their items.
func (q *queries) ListOrdersByUser(ctx context.Context, userID int64) ([]entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ? ORDER BY id DESC`

	rows, err := q.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []entity.Order{}
	var ids []int64
	for rows.Next() {
		var order entity.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := q.listOrderItems(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []entity.OrderItem{}
		}
	}
	return orders, nil
}

// listOrderItems loads the items of the given orders grouped by order id.
func (q *queries) listOrderItems(ctx context.Context, orderIDs ...int64) (map[int64][]entity.OrderItem, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(orderIDs)), ", ")
	query := `SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id IN (` + placeholders + `) ORDER BY oi.id`

	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[int64][]entity.OrderItem, len(orderIDs))
	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	return items, rows.Err()
}

func (q *queries) SetOrderAuthority(ctx context.Context, id int64, authority string, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE orders SET payment_authority = ?, updated_at = ? WHERE id = ?`, authority, at, id)
	if err != nil {
		return mapError(err)
	}
	return affectedOne(res)
}

func (q *queries) UpdatePaymentStatus(ctx context.Context, id int64, from, to entity.PaymentStatus, at time.Time) (bool, error) {
	query := `UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ? AND payment_status = ?`
	res, err := q.db.ExecContext(ctx, query, to.Code(), at, id, from.Code())
	if err != nil {
		return false, mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
