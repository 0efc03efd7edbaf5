package service

import (
	"context"
	"sync"
	"testing"

	"bookstore/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() (*StockLedger, *memStockRepo, *memInvTxRepo) {
	stockRepo := newMemStockRepo()
	invTxRepo := newMemInvTxRepo()
	return NewStockLedger(stockRepo, invTxRepo), stockRepo, invTxRepo
}

func TestStockLedger_ReserveThenConfirm(t *testing.T) {
	ledger, stockRepo, invTxRepo := newTestLedger()
	stockRepo.put(1, 1, 10)
	ctx := context.Background()

	require.NoError(t, ledger.Reserve(ctx, nil, 1, 1, 3, "ORD001"))

	item, err := ledger.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), item.OnHand)
	assert.Equal(t, int64(3), item.Reserved)
	assert.Equal(t, int64(7), item.Available())

	require.NoError(t, ledger.ConfirmSale(ctx, nil, 1, 1, 3, "ORD001"))

	item, err = ledger.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.OnHand)
	assert.Equal(t, int64(0), item.Reserved)
	assert.Equal(t, int64(3), item.Sold)

	// 每次变更都留了流水
	txs, err := invTxRepo.ListByReferenceNo(ctx, "ORD001")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestStockLedger_ReserveThenRelease(t *testing.T) {
	ledger, stockRepo, _ := newTestLedger()
	stockRepo.put(1, 1, 10)
	ctx := context.Background()

	require.NoError(t, ledger.Reserve(ctx, nil, 1, 1, 4, "ORD002"))
	require.NoError(t, ledger.Release(ctx, nil, 1, 1, 4, "ORD002"))

	item, err := ledger.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), item.OnHand)
	assert.Equal(t, int64(0), item.Reserved)
	assert.Equal(t, int64(0), item.Sold)
}

func TestStockLedger_ReserveInsufficient(t *testing.T) {
	ledger, stockRepo, invTxRepo := newTestLedger()
	stockRepo.put(1, 1, 5)
	ctx := context.Background()

	// 两本在别的订单里预占着，可售只剩 3
	require.NoError(t, ledger.Reserve(ctx, nil, 1, 1, 2, "ORD003"))

	err := ledger.Reserve(ctx, nil, 1, 1, 4, "ORD004")
	var se *InsufficientStockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(1), se.BookID)
	assert.Equal(t, int64(4), se.Quantity)

	// 失败的预占不留流水
	txs, err := invTxRepo.ListByReferenceNo(ctx, "ORD004")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStockLedger_ReserveUnknownStock(t *testing.T) {
	ledger, _, _ := newTestLedger()

	err := ledger.Reserve(context.Background(), nil, 99, 1, 1, "ORD005")
	var se *InsufficientStockError
	require.ErrorAs(t, err, &se)
}

func TestStockLedger_ReserveRejectsNonPositiveQty(t *testing.T) {
	ledger, stockRepo, _ := newTestLedger()
	stockRepo.put(1, 1, 10)

	var ve *ValidationError
	assert.ErrorAs(t, ledger.Reserve(context.Background(), nil, 1, 1, 0, "ORD006"), &ve)
	assert.ErrorAs(t, ledger.Reserve(context.Background(), nil, 1, 1, -3, "ORD006"), &ve)
}

func TestStockLedger_AdjustInbound(t *testing.T) {
	ledger, stockRepo, invTxRepo := newTestLedger()
	stockRepo.put(1, 1, 5)
	ctx := context.Background()

	require.NoError(t, ledger.Adjust(ctx, nil, 1, 1, 20, "补货入库"))

	item, err := ledger.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(25), item.OnHand)

	txs, err := invTxRepo.ListByReferenceNo(ctx, "补货入库")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.InventoryTxTypeInbound, txs[0].Type)
	assert.Equal(t, int64(20), txs[0].QuantityChange)
}

func TestStockLedger_AdjustNegativeGuard(t *testing.T) {
	ledger, stockRepo, _ := newTestLedger()
	stockRepo.put(1, 1, 5)
	ctx := context.Background()

	// 预占 3 本后可售只剩 2，盘亏 -3 会把可售调成负数，拒绝
	require.NoError(t, ledger.Reserve(ctx, nil, 1, 1, 3, "ORD007"))

	err := ledger.Adjust(ctx, nil, 1, 1, -3, "盘亏")
	var se *InsufficientStockError
	require.ErrorAs(t, err, &se)

	// -2 刚好把可售调到 0，允许
	require.NoError(t, ledger.Adjust(ctx, nil, 1, 1, -2, "盘亏"))
	item, err := ledger.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), item.Available())
}

func TestStockLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	ledger, stockRepo, _ := newTestLedger()
	stockRepo.put(1, 1, 5)
	ctx := context.Background()

	// 10 个并发请求抢 5 本书，成功的必须恰好是 5 个
	const workers = 10
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.Reserve(ctx, nil, 1, 1, 1, "ORD-RACE")
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			var se *InsufficientStockError
			assert.ErrorAs(t, err, &se)
		}
	}
	assert.Equal(t, 5, succeeded)

	item, err := ledger.Get(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.Reserved)
	assert.Equal(t, int64(0), item.Available())
	assert.GreaterOrEqual(t, item.OnHand, item.Reserved)
}
