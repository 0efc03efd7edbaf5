package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestGenerateNo_Prefixes(t *testing.T) {
	if got := GenerateOrderNo(); !strings.HasPrefix(got, "ORD") {
		t.Errorf("订单号应以 ORD 开头: %s", got)
	}
	if got := GenerateTransactionNo(); !strings.HasPrefix(got, "PAY") {
		t.Errorf("交易码应以 PAY 开头: %s", got)
	}
	if got := GenerateRefundNo(); !strings.HasPrefix(got, "REF") {
		t.Errorf("退款单号应以 REF 开头: %s", got)
	}
}

func TestNextID_ConcurrentUnique(t *testing.T) {
	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				ids = append(ids, NextID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if seen[id] {
					t.Errorf("ID 重复: %d", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()
}

func TestNextID_Monotonic(t *testing.T) {
	prev := NextID()
	for i := 0; i < 1000; i++ {
		id := NextID()
		if id <= prev {
			t.Fatalf("ID 应趋势递增: prev=%d, next=%d", prev, id)
		}
		prev = id
	}
}
