package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCheckoutSettled,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   "session-1",
			Actor:         &ActorRef{UserID: "user-1", Role: "buyer"},
			Data:          map[string]string{"session_id": "session-1"},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	var envelope PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != 1 || envelope.EventID == "" || envelope.Actor == nil || envelope.Actor.UserID != "user-1" {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("cart.viewed"),
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   "s",
	})
	if err == nil {
		t.Fatal("expected unknown event type to fail")
	}
}

func TestMarkFailedDefersNextAttempt(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	row := models.OutboxEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "o-1",
		Payload:       json.RawMessage(`{}`),
	}
	if err := repo.Insert(conn, row); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	if err != nil || len(rows) != 1 {
		t.Fatalf("fetch: %v (%d rows)", err, len(rows))
	}

	if err := repo.MarkFailedTx(conn, rows[0].ID, errors.New("boom"), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected deferred row to be skipped, got %d", len(rows))
	}
}

func TestDLQRequeueResetsAttempts(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)

	row := models.OutboxEvent{
		EventType:     enums.EventCheckoutExpired,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   "s-1",
		Payload:       json.RawMessage(`{}`),
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.MarkTerminalTx(conn, row.ID, errors.New("max"), 5); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}
	long := string(make([]byte, 2000))
	if err := dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
	}); err != nil {
		t.Fatalf("insert dlq: %v", err)
	}

	parked, err := dlq.List(context.Background(), enums.EventCheckoutExpired, 10)
	if err != nil || len(parked) != 1 {
		t.Fatalf("list: %v (%d rows)", err, len(parked))
	}
	if len(*parked[0].ErrorMessage) != maxDLQErrorLen {
		t.Fatalf("expected error message truncated to %d, got %d", maxDLQErrorLen, len(*parked[0].ErrorMessage))
	}

	found, err := dlq.Requeue(context.Background(), row.ID)
	if err != nil || !found {
		t.Fatalf("requeue: found=%v err=%v", found, err)
	}
	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected requeued row to be fetchable: %v (%d rows)", err, len(rows))
	}
}

func TestDeletePublishedBeforeHonoursCutoffAndLimit(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(time.Hour)

	for _, publishedAt := range []*time.Time{&old, &old, &old, &recent, nil} {
		row := models.OutboxEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "o-1",
			Payload:       json.RawMessage(`{}`),
			PublishedAt:   publishedAt,
		}
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	deleted, err := repo.DeletePublishedBefore(conn, cutoff, 2)
	if err != nil || deleted != 2 {
		t.Fatalf("first batch: deleted=%d err=%v", deleted, err)
	}
	deleted, err = repo.DeletePublishedBefore(conn, cutoff, 2)
	if err != nil || deleted != 1 {
		t.Fatalf("second batch: deleted=%d err=%v", deleted, err)
	}

	var remaining int64
	if err := conn.Model(&models.OutboxEvent{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("recent and unpublished rows must survive, %d left", remaining)
	}
}

func TestTruncateDLQErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "₹ declined"
	got := truncateDLQError(msg)
	if len(got) != maxDLQErrorLen-1 || !utf8.ValidString(got) {
		t.Fatalf("expected cut before the rupee sign, got %d bytes (valid=%v)", len(got), utf8.ValidString(got))
	}
	if short := "timeout"; truncateDLQError(short) != short {
		t.Fatal("short messages must pass through")
	}
}

func TestDLQInsertRequiresEventID(t *testing.T) {
	conn := newTestDB(t)
	if err := NewDLQRepository(conn).InsertTx(conn, models.OutboxDLQ{}); err == nil {
		t.Fatal("expected missing event id to be rejected")
	}
}
