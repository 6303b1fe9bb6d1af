package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:orderstest?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  buyer_id TEXT NOT NULL,
  buyer_email TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  payment_intent_id TEXT,
  fulfillment_status TEXT NOT NULL DEFAULT 'pending',
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	subOrders := `
CREATE TABLE IF NOT EXISTS sub_orders (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  seller_store_id TEXT NOT NULL,
  seller_account_id TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  total_tax TEXT NOT NULL,
  total_shipping TEXT NOT NULL,
  transfer_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	lineItems := `
CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  sub_order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  seller_store_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  tax_rate_percent TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (order_id, product_id)
);`
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(subOrders).Error)
	require.NoError(t, db.Exec(lineItems).Error)
	require.NoError(t, db.Exec("DELETE FROM order_line_items").Error)
	require.NoError(t, db.Exec("DELETE FROM sub_orders").Error)
	require.NoError(t, db.Exec("DELETE FROM orders").Error)
	return db
}

func seedOrder(t *testing.T, db *gorm.DB) *models.Order {
	t.Helper()

	orderID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()
	subA := uuid.New()
	subB := uuid.New()

	order := &models.Order{
		ID:                orderID,
		BuyerID:           uuid.New(),
		BuyerEmail:        "buyer@example.com",
		Currency:          "usd",
		PaymentStatus:     enums.PaymentStatusUnpaid,
		FulfillmentStatus: enums.FulfillmentStatusPending,
		SubOrders: []models.SubOrder{
			{
				ID:              subA,
				OrderID:         orderID,
				SellerStoreID:   sellerA,
				SellerAccountID: "acct_a",
				TotalAmount:     decimal.NewFromInt(100),
				TotalTax:        decimal.NewFromInt(10),
				TotalShipping:   decimal.NewFromInt(15),
			},
			{
				ID:              subB,
				OrderID:         orderID,
				SellerStoreID:   sellerB,
				SellerAccountID: "acct_b",
				TotalAmount:     decimal.NewFromInt(50),
				TotalTax:        decimal.NewFromInt(5),
				TotalShipping:   decimal.NewFromInt(5),
			},
		},
		Items: []models.OrderLineItem{
			{
				ID:             uuid.New(),
				OrderID:        orderID,
				SubOrderID:     subA,
				ProductID:      uuid.New(),
				SellerStoreID:  sellerA,
				Quantity:       2,
				UnitPrice:      decimal.NewFromInt(50),
				TaxRatePercent: decimal.NewFromInt(10),
				Status:         enums.OrderItemStatusPending,
			},
			{
				ID:             uuid.New(),
				OrderID:        orderID,
				SubOrderID:     subB,
				ProductID:      uuid.New(),
				SellerStoreID:  sellerB,
				Quantity:       1,
				UnitPrice:      decimal.NewFromInt(50),
				TaxRatePercent: decimal.NewFromInt(10),
				Status:         enums.OrderItemStatusPending,
			},
		},
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestFindOrderByIDPreloadsRelations(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	seeded := seedOrder(t, db)

	found, err := repo.FindOrderByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Len(t, found.Items, 2)
	require.Len(t, found.SubOrders, 2)
	assert.Len(t, found.SubOrders[0].Items, 1)
}

func TestFindOrderByIDNotFound(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindOrderByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkOrderPaidIsIdempotent(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	seeded := seedOrder(t, db)
	ctx := context.Background()

	changed, err := repo.MarkOrderPaid(ctx, seeded.ID, "pi_123")
	require.NoError(t, err)
	assert.True(t, changed)

	// redelivered confirmation matches no rows
	changed, err = repo.MarkOrderPaid(ctx, seeded.ID, "pi_123")
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindOrderByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, found.PaymentStatus)
	require.NotNil(t, found.PaymentIntentID)
	assert.Equal(t, "pi_123", *found.PaymentIntentID)
}

func TestMarkOrderFailedNeverDowngradesPaid(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	seeded := seedOrder(t, db)
	ctx := context.Background()

	_, err := repo.MarkOrderPaid(ctx, seeded.ID, "pi_123")
	require.NoError(t, err)

	changed, err := repo.MarkOrderFailed(ctx, seeded.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindOrderByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, found.PaymentStatus)
}

func TestSetSubOrderTransferOnlyOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	seeded := seedOrder(t, db)
	ctx := context.Background()

	subOrderID := seeded.SubOrders[0].ID

	changed, err := repo.SetSubOrderTransfer(ctx, subOrderID, "tr_1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.SetSubOrderTransfer(ctx, subOrderID, "tr_2")
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindOrderByID(ctx, seeded.ID)
	require.NoError(t, err)
	sub := found.SubOrderForSeller(seeded.SubOrders[0].SellerStoreID)
	require.NotNil(t, sub)
	require.NotNil(t, sub.TransferID)
	assert.Equal(t, "tr_1", *sub.TransferID)
}

func TestCancelLineItemOnlyWhenPending(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	seeded := seedOrder(t, db)
	ctx := context.Background()

	itemID := seeded.Items[0].ID

	changed, err := repo.CancelLineItem(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.CancelLineItem(ctx, itemID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateFulfillmentStatusVersionGuard(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	seeded := seedOrder(t, db)
	ctx := context.Background()

	ok, err := repo.UpdateFulfillmentStatus(ctx, seeded.ID, enums.FulfillmentStatusPartiallyCancelled, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// stale version loses
	ok, err = repo.UpdateFulfillmentStatus(ctx, seeded.ID, enums.FulfillmentStatusCancelled, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindOrderByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.FulfillmentStatusPartiallyCancelled, found.FulfillmentStatus)
	assert.Equal(t, int64(1), found.Version)
}
