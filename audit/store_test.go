package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vouchbank/core/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err != ErrPathRequired {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

func TestRecordAdjustmentHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	entries := []events.PointsAdjusted{
		{GuildID: "g1", UserID: "u1", Delta: 2, Balance: 2, Reason: "admin"},
		{GuildID: "g1", UserID: "u1", Delta: -1, Balance: 1, Reason: "redeem"},
		{GuildID: "g1", UserID: "u2", Delta: 1, Balance: 1, Reason: "vouch"},
	}
	for i, e := range entries {
		if err := store.RecordEvent(ctx, e.Event(), at.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	history, err := store.AdjustmentHistory(ctx, "g1", "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history rows = %d", len(history))
	}
	// Newest first.
	if history[0].Delta != -1 || history[0].Reason != "redeem" {
		t.Fatalf("history[0] = %+v", history[0])
	}
	if history[1].Delta != 2 || history[1].Balance != 2 {
		t.Fatalf("history[1] = %+v", history[1])
	}

	count, err := store.EventCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("event count = %d", count)
	}
}

func TestRecordRedemptionHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	evt := events.RewardRedeemed{
		GuildID: "g1", UserID: "u1", Name: "Sticker", Cost: 5, Balance: 1, Via: "session",
	}
	if err := store.RecordEvent(ctx, evt.Event(), at); err != nil {
		t.Fatal(err)
	}

	history, err := store.RedemptionHistory(ctx, "g1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d", len(history))
	}
	row := history[0]
	if row.Reward != "Sticker" || row.Cost != 5 || row.Balance != 1 || row.Via != "session" {
		t.Fatalf("row = %+v", row)
	}

	// Other guilds see nothing.
	other, err := store.RedemptionHistory(ctx, "g2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("cross-guild rows = %d", len(other))
	}
}

func TestExportRedemptions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		evt := events.RewardRedeemed{
			GuildID: "g1", UserID: "u1", Name: "Sticker", Cost: 1, Balance: uint64(3 - i), Via: "shop",
		}
		if err := store.RecordEvent(ctx, evt.Event(), time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "redemptions.parquet")
	rows, err := store.ExportRedemptions(ctx, "g1", path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 3 {
		t.Fatalf("rows = %d", rows)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("empty export file")
	}
}
