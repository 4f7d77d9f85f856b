package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/storefront?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func TestCreateOrder_WritesOrderProducts(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	require.NoError(t, adapter.EnsureSchema(ctx))
	require.NoError(t, adapter.Ping(ctx))

	userID := "test-user-" + uuid.NewString()
	defer db.ExecContext(ctx, `DELETE FROM orders WHERE user_id = ?`, userID)

	order := domain.Order{
		UserID:          userID,
		Total:           decimal.RequireFromString("125.34"),
		Status:          domain.OrderStatusSucceeded,
		PaymentIntentID: "pi_" + uuid.NewString(),
		Items: []domain.OrderItem{
			{ProductID: 1, ProductVariantID: 11, Quantity: 2},
			{ProductID: 2, ProductVariantID: 21, Quantity: 1},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	id, err := adapter.CreateOrder(ctx, order)
	require.NoError(t, err)
	assert.Positive(t, id)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_products WHERE order_id = ?`, id).Scan(&count))
	assert.Equal(t, 2, count)

	orders, err := adapter.ListOrders(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, id, orders[0].ID)
	assert.True(t, orders[0].Total.Equal(order.Total))
	assert.Equal(t, order.Items, orders[0].Items)
}

func TestCreateOrder_DuplicatePaymentIntentRollsBack(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	require.NoError(t, adapter.EnsureSchema(ctx))

	userID := "test-user-" + uuid.NewString()
	defer db.ExecContext(ctx, `DELETE FROM orders WHERE user_id = ?`, userID)

	order := domain.Order{
		UserID:          userID,
		Total:           decimal.NewFromInt(5),
		Status:          domain.OrderStatusSucceeded,
		PaymentIntentID: "pi_" + uuid.NewString(),
		Items:           []domain.OrderItem{{ProductID: 1, ProductVariantID: 11, Quantity: 1}},
		CreatedAt:       time.Now(),
	}

	_, err := adapter.CreateOrder(ctx, order)
	require.NoError(t, err)
	_, err = adapter.CreateOrder(ctx, order)
	assert.Error(t, err)

	orders, err := adapter.ListOrders(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestListOrders_NewestFirst(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	require.NoError(t, adapter.EnsureSchema(ctx))

	userID := "test-user-" + uuid.NewString()
	defer db.ExecContext(ctx, `DELETE FROM orders WHERE user_id = ?`, userID)

	base := time.Now().UTC().Truncate(time.Millisecond)
	older, err := adapter.CreateOrder(ctx, domain.Order{
		UserID: userID, Total: decimal.NewFromInt(1), Status: domain.OrderStatusSucceeded,
		PaymentIntentID: "pi_" + uuid.NewString(), CreatedAt: base.Add(-time.Hour),
	})
	require.NoError(t, err)
	newer, err := adapter.CreateOrder(ctx, domain.Order{
		UserID: userID, Total: decimal.NewFromInt(2), Status: domain.OrderStatusSucceeded,
		PaymentIntentID: "pi_" + uuid.NewString(), CreatedAt: base,
	})
	require.NoError(t, err)

	orders, err := adapter.ListOrders(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer, orders[0].ID)
	assert.Equal(t, older, orders[1].ID)
	assert.Empty(t, orders[1].Items)
}
