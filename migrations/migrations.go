package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var retryDelay = time.Second

// schema is applied in order; tables come before the tables referencing them.
var schema = []struct {
	table string
	query string
}{
	{"products", `
		CREATE TABLE IF NOT EXISTS products (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			price BIGINT UNSIGNED NOT NULL,
			stock INT UNSIGNED NOT NULL,
			created_by BIGINT NOT NULL,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{"categories", `
		CREATE TABLE IF NOT EXISTS categories (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			description TEXT NULL,
			created_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`},
	{"product_categories", `
		CREATE TABLE IF NOT EXISTS product_categories (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			product_id BIGINT NOT NULL,
			category_id BIGINT NOT NULL,
			UNIQUE KEY product_category_uq (product_id, category_id),
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE,
			FOREIGN KEY (category_id) REFERENCES categories(id) ON DELETE CASCADE
		) ENGINE=InnoDB;
	`},
	{"carts", `
		CREATE TABLE IF NOT EXISTS carts (
			id CHAR(36) NOT NULL PRIMARY KEY,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB;
	`},
	{"cart_items", `
		CREATE TABLE IF NOT EXISTS cart_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			cart_id CHAR(36) NOT NULL,
			product_id BIGINT NOT NULL,
			quantity SMALLINT UNSIGNED NOT NULL,
			UNIQUE KEY cart_product_uq (cart_id, product_id),
			FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
			FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
		) ENGINE=InnoDB;
	`},
	{"orders", `
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			total_price BIGINT UNSIGNED NOT NULL,
			payment_status CHAR(1) NOT NULL DEFAULT 'P',
			tracking_code CHAR(16) NOT NULL UNIQUE,
			payment_authority VARCHAR(255) NULL UNIQUE,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			KEY orders_user_idx (user_id)
		) ENGINE=InnoDB;
	`},
	{"order_items", `
		CREATE TABLE IF NOT EXISTS order_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity SMALLINT UNSIGNED NOT NULL,
			price BIGINT UNSIGNED NOT NULL,
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE,
			FOREIGN KEY (product_id) REFERENCES products(id)
		) ENGINE=InnoDB;
	`},
}

// AutoMigrate creates any missing table. Each statement is retried up to
// retries more times, a second apart, before giving up.
func AutoMigrate(ctx context.Context, db *sql.DB, retries int) error {
	for _, s := range schema {
		_, err := db.ExecContext(ctx, s.query)
		for i := 0; err != nil && i < retries; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			_, err = db.ExecContext(ctx, s.query)
		}
		if err != nil {
			return fmt.Errorf("create table %s: %w", s.table, err)
		}
	}
	return nil
}
