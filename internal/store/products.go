package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, price, compare_at_price, category, image,
	is_hot, is_active, sort_order, purchase_limit, created_at`

type CreateProductRequest struct {
	// ID is generated when empty.
	ID             string
	Name           string
	Description    *string
	Price          decimal.Decimal
	CompareAtPrice decimal.NullDecimal
	Category       *string
	Image          *string
	IsHot          bool
	SortOrder      int
	PurchaseLimit  *int
}

func CreateProduct(ctx context.Context, db sqlx.QueryerContext, req CreateProductRequest) (*models.Product, error) {
	if req.Price.IsNegative() {
		return nil, database.ErrInvalidPrice
	}
	if req.CompareAtPrice.Valid && req.CompareAtPrice.Decimal.IsNegative() {
		return nil, database.ErrInvalidPrice
	}
	if req.PurchaseLimit != nil && *req.PurchaseLimit < 1 {
		return nil, database.ErrInvalidQuantity
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	product := &models.Product{}

	query := `
		INSERT INTO products (id, name, description, price, compare_at_price, category, image,
			is_hot, is_active, sort_order, purchase_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10, NOW())
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, db, product, query,
		req.ID, req.Name, req.Description, req.Price, req.CompareAtPrice,
		req.Category, req.Image, req.IsHot, req.SortOrder, req.PurchaseLimit)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrProductExists
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db sqlx.QueryerContext, id string) (*models.Product, error) {
	product := &models.Product{}

	err := sqlx.GetContext(ctx, db, product,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func SetProductActive(ctx context.Context, db sqlx.ExecerContext, id string, active bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE products SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set product active: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

// DeleteProduct removes the product and, by cascade, all of its cards.
func DeleteProduct(ctx context.Context, db sqlx.ExecerContext, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func ListProducts(ctx context.Context, db *sqlx.DB, page, pageSize int, activeOnly bool) (*OffsetPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	err := db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM products WHERE is_active OR NOT $1`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	var products []models.Product
	err = db.SelectContext(ctx, &products,
		`SELECT `+productColumns+`
		 FROM products
		 WHERE is_active OR NOT $1
		 ORDER BY sort_order, created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		activeOnly, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}
