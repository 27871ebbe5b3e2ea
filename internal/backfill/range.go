package backfill

import "fmt"

// Batch is an inclusive block span fetched in one FilterLogs call.
type Batch struct {
	From uint64
	To   uint64
}

// Batches cuts [from, to] into consecutive spans of at most size blocks.
func Batches(from, to, size uint64) ([]Batch, error) {
	if size == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	out := make([]Batch, 0, (to-from)/size+1)
	for start := from; ; start += size {
		end := to
		if to-start >= size {
			end = start + size - 1
		}
		out = append(out, Batch{From: start, To: end})
		if end == to {
			return out, nil
		}
	}
}
