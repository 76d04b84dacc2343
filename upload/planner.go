package upload

import "fmt"

// Plan splits totalSize bytes into ranges of at most chunkSize bytes.
// An empty file yields a single zero-length final range ([0, -1]).
func Plan(totalSize, chunkSize int64) (UploadPlan, error) {
	if chunkSize <= 0 {
		return UploadPlan{}, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidInput, chunkSize)
	}
	if totalSize < 0 {
		return UploadPlan{}, fmt.Errorf("%w: total size must not be negative, got %d", ErrInvalidInput, totalSize)
	}

	plan := UploadPlan{TotalSize: totalSize, ChunkSize: chunkSize}
	if totalSize == 0 {
		plan.Ranges = []ChunkRange{{Index: 0, Start: 0, End: -1, Final: true}}
		return plan, nil
	}

	count := int((totalSize + chunkSize - 1) / chunkSize)
	plan.Ranges = make([]ChunkRange, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > totalSize {
			end = totalSize
		}
		plan.Ranges = append(plan.Ranges, ChunkRange{
			Index: i,
			Start: start,
			End:   end - 1,
			Final: i == count-1,
		})
	}

	return plan, nil
}
