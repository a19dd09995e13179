package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/models"
	"github.com/samber/lo"
)

const cardColumns = `id, product_id, card_key, is_used, reserved_order_id, reserved_at, used_at, created_at`

// ReserveCardTx claims the lowest-id free card of the product for orderID.
// Concurrent callers skip rows another transaction has already locked, so two
// reservations never observe the same card.
func ReserveCardTx(ctx context.Context, tx *sqlx.Tx, productID, orderID string) (*models.Card, error) {
	card := &models.Card{}

	query := `
		UPDATE cards
		SET reserved_order_id = $2,
		    reserved_at = NOW()
		WHERE id = (
			SELECT id FROM cards
			WHERE product_id = $1
			  AND is_used = FALSE
			  AND reserved_order_id IS NULL
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		  AND is_used = FALSE
		  AND reserved_order_id IS NULL
		RETURNING ` + cardColumns

	err := tx.GetContext(ctx, card, query, productID, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrExhausted
		}
		return nil, fmt.Errorf("reserve card: %w", err)
	}

	return card, nil
}

// ReserveCardsTx reserves n cards for the order. Running short of stock
// returns ErrExhausted; the caller's rollback undoes the partial claims.
func ReserveCardsTx(ctx context.Context, tx *sqlx.Tx, productID, orderID string, n int) ([]models.Card, error) {
	if n < 1 {
		return nil, database.ErrInvalidQuantity
	}

	cards := make([]models.Card, 0, n)
	for i := 0; i < n; i++ {
		card, err := ReserveCardTx(ctx, tx, productID, orderID)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}
	return cards, nil
}

func ReserveCard(ctx context.Context, db *sqlx.DB, productID, orderID string) (*models.Card, error) {
	var card *models.Card

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		card, err = ReserveCardTx(ctx, tx, productID, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return card, nil
}

// ConsumeCardsTx marks every card reserved by the order as used. Cards stay
// linked to the order through reserved_order_id.
func ConsumeCardsTx(ctx context.Context, tx *sqlx.Tx, orderID string) ([]models.Card, error) {
	var cards []models.Card

	query := `
		UPDATE cards
		SET is_used = TRUE,
		    used_at = NOW()
		WHERE reserved_order_id = $1
		  AND is_used = FALSE
		RETURNING ` + cardColumns

	if err := tx.SelectContext(ctx, &cards, query, orderID); err != nil {
		return nil, fmt.Errorf("consume cards: %w", err)
	}
	if len(cards) == 0 {
		return nil, database.ErrNotReserved
	}

	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func ConsumeCards(ctx context.Context, db *sqlx.DB, orderID string) ([]models.Card, error) {
	var cards []models.Card

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		cards, err = ConsumeCardsTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cards, nil
}

// ReleaseCardsTx returns the order's unused cards to the free pool. Releasing
// an order that holds nothing is a no-op.
func ReleaseCardsTx(ctx context.Context, tx *sqlx.Tx, orderID string) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE cards
		 SET reserved_order_id = NULL,
		     reserved_at = NULL
		 WHERE reserved_order_id = $1
		   AND is_used = FALSE`,
		orderID)
	if err != nil {
		return 0, fmt.Errorf("release cards: %w", err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return released, nil
}

func ReleaseCards(ctx context.Context, db *sqlx.DB, orderID string) (int64, error) {
	var released int64

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var err error
		released, err = ReleaseCardsTx(ctx, tx, orderID)
		return err
	})

	return released, err
}

// RestockCardsTx puts the cards consumed by a refunded order back on sale.
func RestockCardsTx(ctx context.Context, tx *sqlx.Tx, orderID string) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE cards
		 SET is_used = FALSE,
		     used_at = NULL,
		     reserved_order_id = NULL,
		     reserved_at = NULL
		 WHERE reserved_order_id = $1
		   AND is_used = TRUE`,
		orderID)
	if err != nil {
		return 0, fmt.Errorf("restock cards: %w", err)
	}

	restocked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return restocked, nil
}

func CardStatsFor(ctx context.Context, db sqlx.QueryerContext, productID string) (*models.CardStats, error) {
	stats := &models.CardStats{}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_used = FALSE AND reserved_order_id IS NULL) AS free,
			COUNT(*) FILTER (WHERE is_used = FALSE AND reserved_order_id IS NOT NULL) AS reserved,
			COUNT(*) FILTER (WHERE is_used = TRUE) AS used
		FROM cards
		WHERE product_id = $1`

	if err := sqlx.GetContext(ctx, db, stats, query, productID); err != nil {
		return nil, fmt.Errorf("card stats: %w", err)
	}

	return stats, nil
}

func ListCardsByOrder(ctx context.Context, db sqlx.QueryerContext, orderID string) ([]models.Card, error) {
	var cards []models.Card

	err := sqlx.SelectContext(ctx, db, &cards,
		`SELECT `+cardColumns+` FROM cards WHERE reserved_order_id = $1 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	return cards, nil
}

// AddCards bulk-loads keys for a product. Blank lines and duplicates within
// the batch are dropped; the number of inserted cards is returned.
func AddCards(ctx context.Context, db *sqlx.DB, productID string, keys []string) (int, error) {
	cleaned := lo.Uniq(lo.Filter(lo.Map(keys, func(k string, _ int) string {
		return strings.TrimSpace(k)
	}), func(k string, _ int) bool {
		return k != ""
	}))
	if len(cleaned) == 0 {
		return 0, nil
	}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sqlx.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)",
			productID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return database.ErrProductNotFound
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("cards", "product_id", "card_key"))
		if err != nil {
			return fmt.Errorf("prepare copy: %w", err)
		}

		for _, key := range cleaned {
			if _, err := stmt.ExecContext(ctx, productID, key); err != nil {
				stmt.Close()
				return fmt.Errorf("copy card: %w", err)
			}
		}

		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			if database.IsForeignKeyViolation(err) {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("flush copy: %w", err)
		}

		return stmt.Close()
	})
	if err != nil {
		return 0, err
	}

	return len(cleaned), nil
}
