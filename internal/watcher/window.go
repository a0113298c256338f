package watcher

import "fmt"

// BlockWindow is an inclusive block range fetched in one log query.
type BlockWindow struct {
	From uint64
	To   uint64
}

// SplitWindows splits [from, to] into windows of at most size blocks.
func SplitWindows(from, to, size uint64) ([]BlockWindow, error) {
	if size == 0 {
		return nil, fmt.Errorf("window size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	windows := make([]BlockWindow, 0)
	start := from
	for start <= to {
		end := to
		if remaining := to - start + 1; remaining > size {
			end = start + size - 1
		}
		windows = append(windows, BlockWindow{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return windows, nil
}
