package test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"caseflow/moderation"
	"caseflow/notify"
)

func seedModerator(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()

	var moderatorID string
	err := pool.QueryRow(ctx, `
        INSERT INTO users (email, full_name, password_hash, role)
        VALUES ($1, 'Mona Moderator', 'x', 'moderator') RETURNING id
    `, fmt.Sprintf("mona-%d@example.com", time.Now().UnixNano())).Scan(&moderatorID)
	if err != nil {
		t.Fatalf("seed moderator: %v", err)
	}
	return moderatorID
}

// Resolving a moderation request must land the resolution outbox entry in
// the same transaction, so the requester's moderation toggle can fire.
func TestModerationResolveEnqueuesOutbox(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := setupPool(t, ctx)
	seed := seedWorkflow(t, ctx, pool)
	moderatorID := seedModerator(t, ctx, pool)
	svc := moderation.NewService(moderation.NewRepository(pool))

	req, err := svc.Create(ctx, seed.requesterID, seed.caseID, "requester and owner share a manager")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	resolved, err := svc.Resolve(ctx, moderatorID, req.ID, moderation.StatusApproved, "reviewed, no conflict")
	if err != nil {
		t.Fatalf("resolve request: %v", err)
	}
	if resolved.Status != moderation.StatusApproved {
		t.Fatalf("expected approved, got %s", resolved.Status)
	}

	var count int
	err = pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM outbox
        WHERE topic = $1 AND payload->>'request_id' = $2
    `, moderation.OutboxTopicResolved, req.ID).Scan(&count)
	if err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one resolution outbox entry, got %d", count)
	}

	if _, err := svc.Resolve(ctx, moderatorID, req.ID, moderation.StatusRejected, "flip"); err == nil {
		t.Fatal("expected second resolve to fail")
	}
}

// A message that fails mid-delivery must roll its partial notification
// inserts back and stay pending, without poisoning the rest of the batch
// or re-delivering the messages that already went out.
func TestDispatcherRecoversFromFailedDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := setupPool(t, ctx)
	seed := seedWorkflow(t, ctx, pool)

	if _, err := pool.Exec(ctx, `DELETE FROM outbox WHERE status = 'pending'`); err != nil {
		t.Fatalf("clear outbox: %v", err)
	}

	// The malformed case id makes recipient resolution fail with a cast
	// error, aborting that message's subtransaction.
	if _, err := pool.Exec(ctx, `
        INSERT INTO outbox (topic, payload) VALUES
        ('case.created', '{"case_id":"not-a-uuid"}'::jsonb)
    `); err != nil {
		t.Fatalf("seed poisoned message: %v", err)
	}
	if _, err := pool.Exec(ctx, `
        INSERT INTO outbox (topic, payload) VALUES ('case.created', $1::jsonb)
    `, fmt.Sprintf(`{"case_id":%q}`, seed.caseID)); err != nil {
		t.Fatalf("seed valid message: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := notify.NewDispatcher(pool, notify.NewRepository(pool), logger)

	if _, err := dispatcher.RunOnce(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	var pending, attempts int
	err := pool.QueryRow(ctx, `
        SELECT COUNT(*), COALESCE(MAX(attempts), 0) FROM outbox
        WHERE status = 'pending' AND topic = 'case.created'
    `).Scan(&pending, &attempts)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 1 || attempts != 1 {
		t.Fatalf("expected the failed message pending with one attempt, got pending=%d attempts=%d", pending, attempts)
	}

	countNotifications := func() int {
		var n int
		if err := pool.QueryRow(ctx, `
            SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND topic = 'case.created'
        `, seed.requesterID).Scan(&n); err != nil {
			t.Fatalf("count notifications: %v", err)
		}
		return n
	}

	// Default settings enable both channels, one insert per channel.
	delivered := countNotifications()
	if delivered != 2 {
		t.Fatalf("expected 2 notifications for the valid message, got %d", delivered)
	}

	if _, err := dispatcher.RunOnce(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := countNotifications(); n != delivered {
		t.Fatalf("expected no duplicate deliveries, got %d after retry", n)
	}
	err = pool.QueryRow(ctx, `
        SELECT COALESCE(MAX(attempts), 0) FROM outbox
        WHERE status = 'pending' AND topic = 'case.created'
    `).Scan(&attempts)
	if err != nil {
		t.Fatalf("count retries: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected a second attempt on the failed message, got %d", attempts)
	}
}
