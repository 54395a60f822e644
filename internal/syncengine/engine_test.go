package syncengine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/deltacache"
	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/localstate"
	"puntoventa/backend/internal/notify"
	"puntoventa/backend/internal/queue"
	"puntoventa/backend/internal/statestore"
	"puntoventa/backend/internal/store/memory"
)

type stubConn struct {
	online atomic.Bool
}

func (c *stubConn) IsOnline() bool { return c.online.Load() }

type harness struct {
	engine *Engine
	remote *memory.Store
	queue  *queue.Queue
	deltas *deltacache.Cache
	state  *statestore.Store
	rec    *notify.Recorder
	conn   *stubConn
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	remote := memory.New()
	remote.SeedInventory(domain.InventoryItem{ProductID: "A1", Name: "Cuaderno A4", UnitPrice: decimal.NewFromFloat(2.50), Quantity: 10})
	remote.SeedInventory(domain.InventoryItem{ProductID: "B2", Name: "Lapicero Azul", UnitPrice: decimal.NewFromFloat(0.80), Quantity: 300})
	remote.SeedInventory(domain.InventoryItem{ProductID: "C3", Name: "Mochila Escolar", UnitPrice: decimal.NewFromFloat(18.90), Quantity: 45})

	local := localstate.NewMemory()
	state := statestore.New()
	pending := queue.New(local)
	deltas := deltacache.New(local, state)
	rec := &notify.Recorder{}
	conn := &stubConn{}
	conn.online.Store(true)

	engine := New(remote, pending, deltas, state, rec, 10*time.Second)
	engine.SetConnectivity(conn)

	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("initial reload failed: %v", err)
	}

	return &harness{engine: engine, remote: remote, queue: pending, deltas: deltas, state: state, rec: rec, conn: conn}
}

func saleInput(productID string, qty int, price float64) domain.SaleInput {
	return domain.SaleInput{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.NewFromFloat(price),
		SaleDate:  "2026-03-14",
	}
}

func TestSubmitSaleOnlineWritesThrough(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.engine.SubmitSale(ctx, saleInput("A1", 3, 2.50))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Synced || len(result.SaleIDs) != 1 {
		t.Fatalf("expected synced result with one sale id, got %+v", result)
	}
	if h.remote.SaleCount() != 1 {
		t.Fatalf("expected 1 remote sale, got %d", h.remote.SaleCount())
	}
	if qty, _ := h.remote.InventoryQty("A1"); qty != 7 {
		t.Fatalf("expected remote stock 7 after write-down, got %d", qty)
	}
	if qty, _ := h.state.StockQty("A1"); qty != 7 {
		t.Fatalf("expected snapshot stock 7 after write-down, got %d", qty)
	}
	if count, _ := h.queue.Count(ctx); count != 0 {
		t.Fatalf("online sale must not be queued, got %d pending", count)
	}
}

func TestSubmitSaleOfflineCapturesLocally(t *testing.T) {
	h := newHarness(t)
	h.conn.online.Store(false)
	ctx := context.Background()

	result, err := h.engine.SubmitSale(ctx, saleInput("A1", 3, 2.50))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Synced || result.OfflineID == "" {
		t.Fatalf("expected local capture with offline id, got %+v", result)
	}

	if h.remote.SaleCount() != 0 {
		t.Fatalf("offline sale must not reach the remote store")
	}
	if count, _ := h.queue.Count(ctx); count != 1 {
		t.Fatalf("expected 1 queued sale, got %d", count)
	}

	snapshot, _ := h.deltas.Snapshot(ctx)
	if snapshot["A1"] != 7 {
		t.Fatalf("expected delta 10-3=7, got %d", snapshot["A1"])
	}

	warnings := h.rec.BySeverity(notify.Warning)
	if len(warnings) != 1 {
		t.Fatalf("expected offline-capture notice, got %v", warnings)
	}
	if len(h.rec.Badges) == 0 || h.rec.Badges[len(h.rec.Badges)-1] != 1 {
		t.Fatalf("expected badge 1 after capture, got %v", h.rec.Badges)
	}
}

func TestSubmitSaleOnlineFailureFallsBackToQueue(t *testing.T) {
	h := newHarness(t)
	h.remote.FailInsertFor("A1", true)
	ctx := context.Background()

	result, err := h.engine.SubmitSale(ctx, saleInput("A1", 3, 2.50))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Synced {
		t.Fatalf("expected fallback capture, got synced result")
	}
	if count, _ := h.queue.Count(ctx); count != 1 {
		t.Fatalf("expected failed online attempt queued, got %d", count)
	}
}

func TestOfflineSaleThenSyncReconciles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.conn.online.Store(false)
	if _, err := h.engine.SubmitSale(ctx, saleInput("A1", 3, 2.50)); err != nil {
		t.Fatalf("offline submit failed: %v", err)
	}

	h.conn.online.Store(true)
	report, err := h.engine.SyncPendingSales(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 0 {
		t.Fatalf("expected 1 succeeded, got %+v", report)
	}

	if qty, _ := h.remote.InventoryQty("A1"); qty != 7 {
		t.Fatalf("expected remote stock 7 after reconciliation, got %d", qty)
	}
	if count, _ := h.queue.Count(ctx); count != 0 {
		t.Fatalf("expected empty queue after full sync, got %d", count)
	}
	snapshot, _ := h.deltas.Snapshot(ctx)
	if len(snapshot) != 0 {
		t.Fatalf("expected delta cache cleared, got %v", snapshot)
	}

	if successes := h.rec.BySeverity(notify.Success); len(successes) != 1 {
		t.Fatalf("expected one aggregate success notice, got %v", successes)
	}
	if len(h.rec.Badges) == 0 || h.rec.Badges[len(h.rec.Badges)-1] != 0 {
		t.Fatalf("expected badge reset to 0, got %v", h.rec.Badges)
	}
}

func TestSyncPartialFailureRetainsFailedSubsetInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.conn.online.Store(false)
	if _, err := h.engine.SubmitSale(ctx, saleInput("A1", 2, 2.50)); err != nil {
		t.Fatalf("offline submit A1 failed: %v", err)
	}
	if _, err := h.engine.SubmitSale(ctx, saleInput("B2", 5, 0.80)); err != nil {
		t.Fatalf("offline submit B2 failed: %v", err)
	}

	h.conn.online.Store(true)
	h.remote.FailInsertFor("A1", true)

	report, err := h.engine.SyncPendingSales(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 1 {
		t.Fatalf("expected succeeded=1 failed=1, got %+v", report)
	}

	remaining, _ := h.queue.ListAll(ctx)
	if len(remaining) != 1 || remaining[0].Lines[0].ProductID != "A1" {
		t.Fatalf("expected only the A1 sale retained, got %+v", remaining)
	}

	snapshot, _ := h.deltas.Snapshot(ctx)
	if _, exists := snapshot["B2"]; exists {
		t.Fatalf("expected B2 delta cleared after its sale synced")
	}
	if _, exists := snapshot["A1"]; !exists {
		t.Fatalf("expected A1 delta kept while its sale stays queued")
	}

	if errs := h.rec.BySeverity(notify.Error); len(errs) != 1 {
		t.Fatalf("expected one aggregate failure notice, got %v", errs)
	}
	if len(h.rec.Badges) == 0 || h.rec.Badges[len(h.rec.Badges)-1] != 1 {
		t.Fatalf("expected badge 1 after partial sync, got %v", h.rec.Badges)
	}
}

func TestSyncWhileOfflineIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.conn.online.Store(false)
	if _, err := h.engine.SubmitSale(ctx, saleInput("A1", 1, 2.50)); err != nil {
		t.Fatalf("offline submit failed: %v", err)
	}
	before, _ := h.queue.ListAll(ctx)

	for i := 0; i < 2; i++ {
		report, err := h.engine.SyncPendingSales(ctx)
		if err != nil {
			t.Fatalf("offline sync returned error: %v", err)
		}
		if report.Succeeded != 0 || report.Failed != 0 {
			t.Fatalf("offline sync must not touch anything, got %+v", report)
		}
	}

	after, _ := h.queue.ListAll(ctx)
	if len(after) != len(before) || after[0].OfflineID != before[0].OfflineID {
		t.Fatalf("offline sync mutated the queue: before %+v after %+v", before, after)
	}
	if errs := h.rec.BySeverity(notify.Error); len(errs) != 2 {
		t.Fatalf("expected an offline-sync notice per attempt, got %v", errs)
	}
	if h.remote.SaleCount() != 0 {
		t.Fatalf("offline sync must not write remotely")
	}
}

func TestSyncEmptyQueueIsANoOp(t *testing.T) {
	h := newHarness(t)

	report, err := h.engine.SyncPendingSales(context.Background())
	if err != nil {
		t.Fatalf("empty sync failed: %v", err)
	}
	if report.Succeeded != 0 || report.Failed != 0 {
		t.Fatalf("expected zero report, got %+v", report)
	}
	if infos := h.rec.BySeverity(notify.Info); len(infos) != 1 {
		t.Fatalf("expected nothing-to-sync notice, got %v", infos)
	}
}

func TestGroupedSaleLinesFailIndependently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.conn.online.Store(false)
	result, err := h.engine.SubmitGroupedSale(ctx, domain.GroupedSaleInput{
		SaleDate: "2026-03-14",
		Lines: []domain.SaleLine{
			{ProductID: "A1", Quantity: 1, UnitPrice: decimal.NewFromFloat(2.50)},
			{ProductID: "B2", Quantity: 2, UnitPrice: decimal.NewFromFloat(0.80)},
			{ProductID: "C3", Quantity: 1, UnitPrice: decimal.NewFromFloat(18.90)},
		},
	})
	if err != nil {
		t.Fatalf("grouped submit failed: %v", err)
	}
	if result.Synced || result.GroupID == "" {
		t.Fatalf("expected offline capture with group id, got %+v", result)
	}

	h.conn.online.Store(true)
	h.remote.FailInsertFor("B2", true)

	report, err := h.engine.SyncPendingSales(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("expected succeeded=2 failed=1, got %+v", report)
	}

	remaining, _ := h.queue.ListAll(ctx)
	if len(remaining) != 1 {
		t.Fatalf("expected one retained pending sale, got %d", len(remaining))
	}
	retained := remaining[0]
	if retained.GroupID != result.GroupID {
		t.Fatalf("retained lines must keep their group id")
	}
	if len(retained.Lines) != 1 || retained.Lines[0].ProductID != "B2" {
		t.Fatalf("expected only the failed B2 line retained, got %+v", retained.Lines)
	}

	// Synced lines carry the shared group id on their remote rows.
	sales, _, err := h.remote.ReloadSalesAndInventory(ctx)
	if err != nil {
		t.Fatalf("remote reload failed: %v", err)
	}
	for _, row := range sales {
		if row.GroupID != result.GroupID {
			t.Fatalf("remote row missing group id: %+v", row)
		}
	}
}

func TestInsertSucceedsButInventoryUpdateFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.conn.online.Store(false)
	if _, err := h.engine.SubmitSale(ctx, saleInput("A1", 3, 2.50)); err != nil {
		t.Fatalf("offline submit failed: %v", err)
	}

	h.conn.online.Store(true)
	h.remote.FailInventoryUpdateFor("A1", true)

	report, err := h.engine.SyncPendingSales(ctx)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	// The sale row exists remotely, so the sale counts as synced even though
	// remote stock is now stale.
	if report.Succeeded != 1 || report.Failed != 0 {
		t.Fatalf("expected the sale to count as succeeded, got %+v", report)
	}
	if report.ReconcileRetries != 1 {
		t.Fatalf("expected the stale-stock window surfaced, got %+v", report)
	}
	if h.remote.SaleCount() != 1 {
		t.Fatalf("expected remote sale row present")
	}
	if qty, _ := h.remote.InventoryQty("A1"); qty != 10 {
		t.Fatalf("expected remote stock untouched at 10, got %d", qty)
	}
	if count, _ := h.queue.Count(ctx); count != 0 {
		t.Fatalf("succeeded sale must leave the queue, got %d pending", count)
	}
	if warnings := h.rec.BySeverity(notify.Warning); len(warnings) == 0 {
		t.Fatalf("expected a stale-stock warning")
	}
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.engine.SubmitSale(ctx, saleInput("A1", 3, 2.50))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := h.engine.DeleteSale(ctx, result.SaleIDs[0]); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if h.remote.SaleCount() != 0 {
		t.Fatalf("expected remote sale removed")
	}
	if qty, _ := h.remote.InventoryQty("A1"); qty != 10 {
		t.Fatalf("expected stock restored to 10, got %d", qty)
	}
	if len(h.state.Sales()) != 0 {
		t.Fatalf("expected snapshot row removed")
	}
}

func TestUpdateAndDeleteAreOnlineOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.engine.SubmitSale(ctx, saleInput("A1", 3, 2.50))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	h.conn.online.Store(false)
	if _, err := h.engine.UpdateSale(ctx, result.SaleIDs[0], domain.SaleUpdateRequest{}); err == nil {
		t.Fatalf("expected offline update to be rejected")
	}
	if err := h.engine.DeleteSale(ctx, result.SaleIDs[0]); err == nil {
		t.Fatalf("expected offline delete to be rejected")
	}
	if count, _ := h.queue.Count(ctx); count != 0 {
		t.Fatalf("rejected edits must not be queued")
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.SubmitSale(ctx, saleInput("A1", 0, 2.50)); err == nil {
		t.Fatalf("expected zero quantity rejected")
	}

	bad := saleInput("A1", 1, 2.50)
	bad.Discount = decimal.NewFromFloat(99)
	if _, err := h.engine.SubmitSale(ctx, bad); err == nil {
		t.Fatalf("expected oversized discount rejected")
	}

	if _, err := h.engine.SubmitGroupedSale(ctx, domain.GroupedSaleInput{}); err == nil {
		t.Fatalf("expected empty grouped sale rejected")
	}
}
