package api

import (
	"github.com/daniyalizadpanahi/swiftorder/internal/auth"
	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Cart    *CartHandler
	Order   *OrderHandler
	Catalog *CatalogHandler
	Payment *PaymentHandler
}

// Register mounts every route. Carts, catalog reads and the payment callback
// are public; orders and payment initiation need a bearer token; catalog
// writes also need the catalog:write capability.
func Register(e *echo.Echo, secret []byte, h Handlers) {
	e.POST("/carts", h.Cart.CreateCart)
	e.GET("/carts/:cart_id", h.Cart.GetCart)
	e.DELETE("/carts/:cart_id", h.Cart.DeleteCart)
	e.GET("/carts/:cart_id/items", h.Cart.ListItems)
	e.POST("/carts/:cart_id/items", h.Cart.AddItem)
	e.DELETE("/carts/:cart_id/items", h.Cart.ClearCart)
	e.GET("/carts/:cart_id/items/:item_id", h.Cart.GetItem)
	e.PATCH("/carts/:cart_id/items/:item_id", h.Cart.UpdateItem)
	e.DELETE("/carts/:cart_id/items/:item_id", h.Cart.RemoveItem)

	e.GET("/products", h.Catalog.ListProducts)
	e.GET("/products/:id", h.Catalog.GetProduct)
	e.GET("/categories", h.Catalog.ListCategories)
	e.GET("/categories/:id/products", h.Catalog.ProductsByCategory)

	e.GET("/payments/verify", h.Payment.Verify)

	// per route, so unknown paths stay 404 instead of 401
	authenticated := auth.Middleware(secret)
	e.POST("/orders", h.Order.CreateOrder, authenticated)
	e.GET("/orders", h.Order.ListOrders, authenticated)
	e.GET("/orders/:id", h.Order.GetOrder, authenticated)
	e.GET("/orders/track/:code", h.Order.TrackOrder, authenticated)
	e.POST("/payments/initiate", h.Payment.Initiate, authenticated)

	admin := e.Group("/admin", authenticated, auth.Require(auth.CatalogWrite))
	admin.POST("/products", h.Catalog.CreateProduct)
	admin.PUT("/products/:id", h.Catalog.UpdateProduct)
	admin.DELETE("/products/:id", h.Catalog.DeleteProduct)
	admin.POST("/products/:id/categories", h.Catalog.AddProductToCategory)
	admin.POST("/categories", h.Catalog.CreateCategory)
	admin.DELETE("/categories/:id", h.Catalog.DeleteCategory)
}
