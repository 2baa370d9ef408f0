package entity

import "time"

// MaxItemQuantity is the largest quantity a single cart or order line can hold.
const MaxItemQuantity = 32767

// Cart is an anonymous shopping cart identified by a random UUID.
// Items and TotalPrice are filled on read; TotalPrice uses live product prices.
type Cart struct {
	ID         string     `json:"id"`
	Items      []CartItem `json:"items"`
	TotalPrice int64      `json:"total_price"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"last_update"`
}

type CartItem struct {
	ID         int64   `json:"id"`
	CartID     string  `json:"-"`
	ProductID  int64   `json:"product_id"`
	Product    Product `json:"product"`
	Quantity   int     `json:"quantity"`
	TotalPrice int64   `json:"total_price"`
}

// Subtotal is quantity times the current unit price of the product.
func (i CartItem) Subtotal() int64 {
	return int64(i.Quantity) * i.Product.Price
}

// Priced fills the computed totals of the cart and its items.
func (c *Cart) Priced() *Cart {
	c.TotalPrice = 0
	for i := range c.Items {
		c.Items[i].TotalPrice = c.Items[i].Subtotal()
		c.TotalPrice += c.Items[i].TotalPrice
	}
	return c
}

/*
CREATE TABLE carts (
	id CHAR(36) NOT NULL PRIMARY KEY,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL
);

CREATE TABLE cart_items (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	cart_id CHAR(36) NOT NULL,
	product_id BIGINT NOT NULL,
	quantity SMALLINT UNSIGNED NOT NULL,
	UNIQUE KEY cart_product_uq (cart_id, product_id),
	FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE,
	FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
);
*/
