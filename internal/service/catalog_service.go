package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/daniyalizadpanahi/swiftorder/internal/entity"
	"github.com/daniyalizadpanahi/swiftorder/internal/repository"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxNameLength   = 255
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var ErrAlreadyInCategory = &Error{Code: ECONFLICT, Message: "Product is already in this category"}

// ProductInput is the writable part of a product.
type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
}

func (in *ProductInput) validate() error {
	verr := ValidationError{}
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		verr.Add("name", "This field may not be blank.")
	case utf8.RuneCountInString(in.Name) > maxNameLength:
		verr.Add("name", "Ensure this field has no more than 255 characters.")
	}
	if in.Price < 0 {
		verr.Add("price", "Ensure this value is greater than or equal to 0.")
	}
	if in.Stock < 0 {
		verr.Add("stock", "Ensure this value is greater than or equal to 0.")
	}
	if len(verr) > 0 {
		return verr
	}
	return nil
}

type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Page selects a slice of a listing. Zero values mean the first default-sized page.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// CatalogService reads and administers products and categories.
type CatalogService struct {
	store repository.Store
	cache *ProductCache
	now   func() time.Time
}

// NewCatalogService creates a new instance of CatalogService. cache may be nil.
func NewCatalogService(store repository.Store, cache *ProductCache) *CatalogService {
	return &CatalogService{store: store, cache: cache, now: time.Now}
}

func (s *CatalogService) ListProducts(ctx context.Context, search string, page Page) ([]entity.Product, error) {
	page = page.normalize()
	products, err := s.store.ListProducts(ctx, repository.ProductFilter{
		Search: strings.TrimSpace(search),
		Offset: page.Offset,
		Limit:  page.Limit,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Error listing products")
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetProduct reads through the product cache.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*entity.Product, error) {
	if product, ok := s.cache.Get(ctx, id); ok {
		return product, nil
	}

	product, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting product by ID %d", id)
		return nil, fmt.Errorf("get product: %w", err)
	}

	s.cache.Set(ctx, product)
	return product, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, ownerID int64, in ProductInput) (*entity.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product := &entity.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		CreatedBy:   ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		logger.Error().Err(err).Msg("Error creating product")
		return nil, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

// UpdateProduct replaces the writable fields. Existing orders keep the price
// they were placed at; carts see the new price immediately.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*entity.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	product.Name = in.Name
	product.Description = in.Description
	product.Price = in.Price
	product.Stock = in.Stock
	product.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		logger.Error().Err(err).Msgf("Error updating product %d", id)
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.cache.Invalidate(ctx, id)
	return product, nil
}

// DeleteProduct removes a product that no order references. Cart lines
// holding it are removed with it.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	err := s.store.DeleteProduct(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrProductNotFound
	case errors.Is(err, repository.ErrReferenced):
		logger.Warn().Msgf("Refusing to delete product %d referenced by orders", id)
		return ErrProductInUse
	case err != nil:
		logger.Error().Err(err).Msgf("Error deleting product %d", id)
		return fmt.Errorf("delete product: %w", err)
	}

	s.cache.Invalidate(ctx, id)
	return nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]entity.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error listing categories")
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *CatalogService) CreateCategory(ctx context.Context, in CategoryInput) (*entity.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ValidationError{"name": {"This field may not be blank."}}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, ValidationError{"name": {"Ensure this field has no more than 255 characters."}}
	}

	category := &entity.Category{Name: name, Description: in.Description, CreatedAt: s.now().UTC()}
	err := s.store.CreateCategory(ctx, category)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrCategoryExists
	}
	if err != nil {
		logger.Error().Err(err).Msg("Error creating category")
		return nil, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	err := s.store.DeleteCategory(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrCategoryNotFound
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error deleting category %d", id)
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (s *CatalogService) ProductsByCategory(ctx context.Context, categoryID int64, page Page) ([]entity.Product, error) {
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	page = page.normalize()
	products, err := s.store.ListProducts(ctx, repository.ProductFilter{
		CategoryID: categoryID,
		Offset:     page.Offset,
		Limit:      page.Limit,
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing products of category %d", categoryID)
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) AddProductToCategory(ctx context.Context, productID, categoryID int64) (*entity.ProductCategory, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}

	link := &entity.ProductCategory{ProductID: productID, CategoryID: categoryID}
	err := s.store.AddProductCategory(ctx, link)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrAlreadyInCategory
	}
	if err != nil {
		logger.Error().Err(err).Msgf("Error adding product %d to category %d", productID, categoryID)
		return nil, fmt.Errorf("add product category: %w", err)
	}
	return link, nil
}
