package booking

import (
	"context"
	"sync"

	"github.com/vmaslennikov/bms/internal/domain"
)

// bulkCancelParallelism ограничивает число одновременных отмен в пакете.
const bulkCancelParallelism = 8

// CancelResult — исход отмены одной брони из пакета.
type CancelResult struct {
	BookingID string
	Booking   domain.Booking
	Err       error
}

// CancelBookings отменяет набор броней с ограниченным параллелизмом.
// Каждая бронь отменяется независимо: сбой одной не трогает остальные,
// результат возвращается в порядке входных идентификаторов.
func (o *Orchestrator) CancelBookings(ctx context.Context, ids []string, actor, reason string) []CancelResult {
	results := make([]CancelResult, len(ids))
	sem := make(chan struct{}, bulkCancelParallelism)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()

			b, err := o.CancelBooking(ctx, id, actor, reason)
			results[i] = CancelResult{BookingID: id, Booking: b, Err: err}
		}(i, id)
	}
	wg.Wait()

	return results
}
