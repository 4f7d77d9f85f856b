package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id VARCHAR(128) NOT NULL,
		total DECIMAL(12,2) NOT NULL,
		status VARCHAR(32) NOT NULL,
		receipt_url VARCHAR(512) NOT NULL DEFAULT '',
		payment_intent_id VARCHAR(255) NOT NULL,
		created_at DATETIME(3) NOT NULL,
		INDEX idx_orders_user (user_id, created_at),
		UNIQUE KEY uk_orders_payment_intent (payment_intent_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		product_variant_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		INDEX idx_order_products_order (order_id),
		CONSTRAINT fk_order_products_order FOREIGN KEY (order_id) REFERENCES orders (id) ON DELETE CASCADE
	)`,
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the order tables when they do not exist yet.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) (int64, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, total, status, receipt_url, payment_intent_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.UserID, order.Total.StringFixed(2), order.Status, order.ReceiptURL,
		order.PaymentIntentID, order.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("order id: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_products (order_id, product_id, product_variant_id, quantity)
			VALUES (?, ?, ?, ?)`,
			orderID, item.ProductID, item.ProductVariantID, item.Quantity,
		)
		if err != nil {
			return 0, fmt.Errorf("insert order product: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit order: %w", err)
	}
	return orderID, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.total, o.status, o.receipt_url, o.payment_intent_id, o.created_at,
		       p.product_id, p.product_variant_id, p.quantity
		FROM orders o
		LEFT JOIN order_products p ON p.order_id = o.id
		WHERE o.user_id = ?
		ORDER BY o.created_at DESC, o.id DESC, p.id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			o         domain.Order
			total     decimal.Decimal
			productID sql.NullInt64
			variantID sql.NullInt64
			quantity  sql.NullInt64
		)
		if err := rows.Scan(&o.ID, &o.UserID, &total, &o.Status, &o.ReceiptURL, &o.PaymentIntentID,
			&o.CreatedAt, &productID, &variantID, &quantity); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		i, seen := index[o.ID]
		if !seen {
			o.Total = total
			orders = append(orders, o)
			i = len(orders) - 1
			index[o.ID] = i
		}
		if productID.Valid {
			orders[i].Items = append(orders[i].Items, domain.OrderItem{
				ProductID:        productID.Int64,
				ProductVariantID: variantID.Int64,
				Quantity:         int(quantity.Int64),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

// Ping backs the service health checks.
func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}
