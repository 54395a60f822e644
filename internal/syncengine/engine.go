// Package syncengine owns the offline capture path and the reconciliation
// pass that replays queued sales against the remote service. Remote-call
// failures never propagate out of a pass; they become queue retention and
// aggregate notices.
package syncengine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"puntoventa/backend/internal/deltacache"
	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/notify"
	"puntoventa/backend/internal/queue"
	"puntoventa/backend/internal/statestore"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/xid"
)

// Connectivity reports whether the terminal currently believes it is online.
type Connectivity interface {
	IsOnline() bool
}

type Engine struct {
	remote      store.Remote
	queue       *queue.Queue
	deltas      *deltacache.Cache
	state       *statestore.Store
	notifier    notify.Notifier
	passTimeout time.Duration

	// syncMu serializes reconciliation passes: two overlapping triggers
	// (settle timer + manual) must not interleave their read-then-write
	// stock updates. Sales captured mid-pass land in the next snapshot.
	syncMu sync.Mutex

	reportMu   sync.Mutex
	lastReport domain.SyncReport
	lastSync   time.Time

	connMu sync.RWMutex
	conn   Connectivity
}

func New(remote store.Remote, q *queue.Queue, deltas *deltacache.Cache, state *statestore.Store, notifier notify.Notifier, passTimeout time.Duration) *Engine {
	return &Engine{
		remote:      remote,
		queue:       q,
		deltas:      deltas,
		state:       state,
		notifier:    notifier,
		passTimeout: passTimeout,
	}
}

// SetConnectivity wires the monitor in after construction; the monitor also
// depends on the engine, so one side has to attach late.
func (e *Engine) SetConnectivity(conn Connectivity) {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	e.conn = conn
}

func (e *Engine) online() bool {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	if e.conn == nil {
		return true
	}
	return e.conn.IsOnline()
}

// Reload pulls fresh snapshots of sales and inventory into the state store.
func (e *Engine) Reload(ctx context.Context) error {
	sales, items, err := e.remote.ReloadSalesAndInventory(ctx)
	if err != nil {
		return fmt.Errorf("reload sales and inventory: %w", err)
	}
	e.state.Replace(sales, items)
	return nil
}

// LastReport returns the outcome of the most recent reconciliation pass.
func (e *Engine) LastReport() (domain.SyncReport, time.Time) {
	e.reportMu.Lock()
	defer e.reportMu.Unlock()
	return e.lastReport, e.lastSync
}

// SubmitSale records a single-line sale: written straight to the remote
// service when online, captured locally when offline or when the remote
// write fails.
func (e *Engine) SubmitSale(ctx context.Context, in domain.SaleInput) (domain.SubmitResult, error) {
	line := in.Line()
	if err := line.Validate(); err != nil {
		return domain.SubmitResult{}, err
	}

	pending := domain.PendingSale{
		Status:   domain.StatusPending,
		SaleDate: normalizeDate(in.SaleDate),
		Lines:    []domain.SaleLine{line},
	}

	if !e.online() {
		return e.captureLocally(ctx, pending, true)
	}

	inserted, err := e.replayLine(ctx, line, "", pending.SaleDate, nil)
	if err != nil {
		return e.captureLocally(ctx, pending, false)
	}

	e.state.AppendSale(*inserted)
	e.notifier.Notify(notify.Success, fmt.Sprintf("sale of %d x %s recorded", line.Quantity, line.ProductID))
	return domain.SubmitResult{Synced: true, SaleIDs: []string{inserted.ID}}, nil
}

// SubmitGroupedSale records a multi-line sale under one grouped identifier.
// Online, each line is inserted independently, mirroring how reconciliation
// replays grouped sales; lines whose insert fails are captured locally as
// one pending-multi record sharing the group identifier.
func (e *Engine) SubmitGroupedSale(ctx context.Context, in domain.GroupedSaleInput) (domain.SubmitResult, error) {
	if len(in.Lines) == 0 {
		return domain.SubmitResult{}, domain.ErrInvalidQuantity
	}
	for _, line := range in.Lines {
		if err := line.Validate(); err != nil {
			return domain.SubmitResult{}, err
		}
	}

	pending := domain.PendingSale{
		Status:   domain.StatusPendingMulti,
		GroupID:  xid.New("grp"),
		SaleDate: normalizeDate(in.SaleDate),
		Lines:    in.Lines,
	}

	if !e.online() {
		return e.captureLocally(ctx, pending, true)
	}

	result := domain.SubmitResult{Synced: true, GroupID: pending.GroupID}
	failed := make([]domain.SaleLine, 0, len(in.Lines))
	for _, line := range in.Lines {
		inserted, err := e.replayLine(ctx, line, pending.GroupID, pending.SaleDate, nil)
		if err != nil {
			failed = append(failed, line)
			continue
		}
		e.state.AppendSale(*inserted)
		result.SaleIDs = append(result.SaleIDs, inserted.ID)
	}

	if len(failed) == 0 {
		e.notifier.Notify(notify.Success, fmt.Sprintf("grouped sale of %d lines recorded", len(in.Lines)))
		return result, nil
	}

	pending.Lines = failed
	captured, err := e.captureLocally(ctx, pending, false)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	result.Synced = len(result.SaleIDs) > 0
	result.OfflineID = captured.OfflineID
	return result, nil
}

// captureLocally is the offline capture path: queue the sale, adjust the
// delta cache once per line, refresh the badge, and tell the clerk whether
// this was plain offline capture or an online attempt falling back.
func (e *Engine) captureLocally(ctx context.Context, pending domain.PendingSale, wasOffline bool) (domain.SubmitResult, error) {
	saved, err := e.queue.Enqueue(ctx, pending)
	if err != nil {
		return domain.SubmitResult{}, fmt.Errorf("enqueue pending sale: %w", err)
	}

	for _, line := range saved.Lines {
		if _, err := e.deltas.Adjust(ctx, line.ProductID, -line.Quantity); err != nil {
			log.Printf("[syncengine] WARN: delta adjust failed for %s: %v", line.ProductID, err)
		}
	}

	if wasOffline {
		e.notifier.Notify(notify.Warning, "you are offline, sale saved locally and will sync when back online")
	} else {
		e.notifier.Notify(notify.Warning, "online attempt failed, sale saved locally for retry")
	}
	e.refreshBadge(ctx)

	return domain.SubmitResult{Synced: false, OfflineID: saved.OfflineID, GroupID: saved.GroupID}, nil
}

// SyncPendingSales runs one reconciliation pass: replay the current queue
// snapshot in insertion order, keep the failed subset queued, clear delta
// entries for succeeded sales, and reload remote snapshots when anything
// succeeded. Safe to trigger repeatedly; passes are serialized and an
// offline or empty-queue call changes nothing.
func (e *Engine) SyncPendingSales(ctx context.Context) (domain.SyncReport, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	if e.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.passTimeout)
		defer cancel()
	}

	if !e.online() {
		e.notifier.Notify(notify.Error, "cannot sync pending sales while offline")
		return domain.SyncReport{}, nil
	}

	snapshot, err := e.queue.ListAll(ctx)
	if err != nil {
		return domain.SyncReport{}, fmt.Errorf("read pending queue: %w", err)
	}
	if len(snapshot) == 0 {
		e.notifier.Notify(notify.Info, "no pending sales to sync")
		e.refreshBadge(ctx)
		return domain.SyncReport{}, nil
	}

	var report domain.SyncReport
	failed := make([]domain.PendingSale, 0, len(snapshot))
	syncedProducts := make(map[string]bool)

	for _, pending := range snapshot {
		failedLines := make([]domain.SaleLine, 0, len(pending.Lines))
		for _, line := range pending.Lines {
			if _, err := e.replayLine(ctx, line, pending.GroupID, pending.SaleDate, &report); err != nil {
				report.Failed++
				failedLines = append(failedLines, line)
				continue
			}
			report.Succeeded++
			syncedProducts[line.ProductID] = true
		}
		if len(failedLines) > 0 {
			retained := pending
			retained.Lines = failedLines
			failed = append(failed, retained)
		}
	}

	if err := e.queue.ReplaceAll(ctx, failed); err != nil {
		return report, fmt.Errorf("persist failed subset: %w", err)
	}
	for productID := range syncedProducts {
		if err := e.deltas.Clear(ctx, productID); err != nil {
			log.Printf("[syncengine] WARN: delta clear failed for %s: %v", productID, err)
		}
	}

	if report.Succeeded > 0 {
		if err := e.Reload(ctx); err != nil {
			log.Printf("[syncengine] WARN: post-sync reload failed: %v", err)
			e.notifier.Notify(notify.Warning, "synced sales but could not refresh remote snapshots")
		}
		e.notifier.Notify(notify.Success, fmt.Sprintf("%d pending sale(s) synced", report.Succeeded))
	}
	if report.Failed > 0 {
		e.notifier.Notify(notify.Error, fmt.Sprintf("%d pending sale(s) failed to sync and remain queued", report.Failed))
	}
	e.refreshBadge(ctx)

	e.reportMu.Lock()
	e.lastReport = report
	e.lastSync = time.Now().UTC()
	e.reportMu.Unlock()

	return report, nil
}

// replayLine inserts one sale line remotely and writes down the product's
// stock. The insert failing fails the line; the inventory update failing
// does not (the sale row already exists remotely and there is no
// compensating rollback), it is surfaced as a warning and counted on the
// report so the stale-stock window is visible instead of silent.
func (e *Engine) replayLine(ctx context.Context, line domain.SaleLine, groupID string, saleDate string, report *domain.SyncReport) (*domain.SaleRecord, error) {
	inserted, err := e.remote.InsertSale(ctx, domain.SaleRecord{
		GroupID:     groupID,
		ProductID:   line.ProductID,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
		Discount:    line.Discount,
		Description: line.Description,
		SaleDate:    saleDate,
	})
	if err != nil {
		return nil, err
	}

	if currentStock, ok := e.state.StockQty(line.ProductID); ok {
		newStock := currentStock - line.Quantity
		now := time.Now().UTC()
		if err := e.remote.UpdateInventoryQuantity(ctx, line.ProductID, newStock, now); err != nil {
			log.Printf("[syncengine] WARN: inventory update failed for %s after sale insert: %v", line.ProductID, err)
			e.notifier.Notify(notify.Warning, fmt.Sprintf("stock for %s could not be written down; it will correct on the next reload", line.ProductID))
			if report != nil {
				report.ReconcileRetries++
			}
		} else {
			e.state.SetStockQty(line.ProductID, newStock, now)
		}
	}

	return inserted, nil
}

// UpdateSale edits a remote sale row. Online-only; edits are never queued.
func (e *Engine) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (*domain.SaleRecord, error) {
	if !e.online() {
		return nil, store.ErrRemoteUnavailable
	}
	updated, err := e.remote.UpdateSale(ctx, id, req)
	if err != nil {
		return nil, err
	}
	e.state.UpdateSale(*updated)
	e.notifier.Notify(notify.Success, "sale updated")
	return updated, nil
}

// DeleteSale removes a remote sale row and restores the sold quantity to
// remote inventory. Online-only.
func (e *Engine) DeleteSale(ctx context.Context, id string) error {
	if !e.online() {
		return store.ErrRemoteUnavailable
	}
	deleted, err := e.remote.DeleteSale(ctx, id)
	if err != nil {
		return err
	}
	e.state.RemoveSale(id)

	if currentStock, ok := e.state.StockQty(deleted.ProductID); ok {
		restored := currentStock + deleted.Quantity
		now := time.Now().UTC()
		if err := e.remote.UpdateInventoryQuantity(ctx, deleted.ProductID, restored, now); err != nil {
			log.Printf("[syncengine] WARN: stock restore failed for %s after sale delete: %v", deleted.ProductID, err)
		} else {
			e.state.SetStockQty(deleted.ProductID, restored, now)
		}
	}

	e.notifier.Notify(notify.Success, "sale deleted and stock restored")
	return nil
}

// PendingCount exposes the queue length for the badge and status endpoint.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.queue.Count(ctx)
}

func (e *Engine) refreshBadge(ctx context.Context) {
	count, err := e.queue.Count(ctx)
	if err != nil {
		log.Printf("[syncengine] WARN: badge count failed: %v", err)
		return
	}
	e.notifier.SetBadge(count)
}

func normalizeDate(date string) string {
	if date != "" {
		return date
	}
	return time.Now().Format(time.RFC3339)
}
