package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	"github.com/mercaline/marketplace-backend/pkg/outbox/payloads"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:outboxtest?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(ddl).Error)
	require.NoError(t, db.Exec("DELETE FROM outbox_events").Error)
	return db
}

func insertEvent(t *testing.T, db *gorm.DB, repo *Repository) models.OutboxEvent {
	t.Helper()

	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
	}
	require.NoError(t, repo.Insert(db, row))
	return row
}

func TestEmitQueuesEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, logger.New(logger.Options{ServiceName: "test"}))

	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Version:       1,
		Data: payloads.OrderPaidEvent{
			OrderID:          orderID,
			BuyerEmail:       "buyer@example.com",
			Currency:         "usd",
			TotalAmountCents: 11500,
			SellerCount:      2,
		},
	}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, event)
	}))

	rows, err := repo.FetchUnpublished(10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderPaid, rows[0].EventType)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())

	var data payloads.OrderPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "buyer@example.com", data.BuyerEmail)
	assert.Equal(t, int64(11500), data.TotalAmountCents)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}

func TestMarkPublishedRemovesFromBacklog(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertEvent(t, db, repo)
	require.NoError(t, repo.MarkPublished(row.ID))

	rows, err := repo.FetchUnpublished(10, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMarkFailedIncrementsAttempts(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertEvent(t, db, repo)
	require.NoError(t, repo.MarkFailed(row.ID, errors.New("publish timeout")))
	require.NoError(t, repo.MarkFailed(row.ID, errors.New("publish timeout")))

	rows, err := repo.FetchUnpublished(10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "publish timeout", *rows[0].LastError)
}

func TestFetchUnpublishedSkipsExhaustedEvents(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertEvent(t, db, repo)
	require.NoError(t, repo.MarkFailed(row.ID, errors.New("publish timeout")))
	require.NoError(t, repo.MarkFailed(row.ID, errors.New("publish timeout")))

	rows, err := repo.FetchUnpublished(10, 2)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
