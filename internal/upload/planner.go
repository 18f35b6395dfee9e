package upload

import "fmt"

// PartRange is one contiguous byte range of the source, uploaded as an
// independent unit. Start is inclusive, End exclusive.
type PartRange struct {
	Number int
	Start  int64
	End    int64
}

// Len returns the range length in bytes.
func (p PartRange) Len() int64 { return p.End - p.Start }

// Plan partitions [0, fileSize) into chunkSize-sized ranges with 1-based,
// contiguous part numbers. Only the final part may be shorter than chunkSize;
// it absorbs the remainder. chunkSize must meet the store's minimum part size
// unless the whole file fits in a single part.
func Plan(fileSize, chunkSize int64) ([]PartRange, error) {
	if fileSize <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("file size must be positive, got %d", fileSize)}
	}
	if chunkSize <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("chunk size must be positive, got %d", chunkSize)}
	}
	if chunkSize < MinChunkSize && fileSize > chunkSize {
		return nil, &ConfigError{Reason: fmt.Sprintf("chunk size %d below store minimum %d", chunkSize, MinChunkSize)}
	}

	total := divideAndCeil(fileSize, chunkSize)
	parts := make([]PartRange, 0, total)
	for i := int64(0); i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > fileSize {
			end = fileSize
		}
		parts = append(parts, PartRange{
			Number: int(i + 1),
			Start:  start,
			End:    end,
		})
	}
	return parts, nil
}

// PlanParts derives the chunk size from a pre-agreed part count
// (ceil(fileSize/partCount)) and feeds the same range contract as Plan. Used
// by upfront sessions where the coordinator fixed the part count ahead of
// time. A session uses either this strategy or a fixed chunk size, never both.
func PlanParts(fileSize int64, partCount int) ([]PartRange, error) {
	if fileSize <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("file size must be positive, got %d", fileSize)}
	}
	if partCount <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("part count must be positive, got %d", partCount)}
	}
	chunkSize := divideAndCeil(fileSize, int64(partCount))
	if chunkSize < MinChunkSize && partCount > 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("derived chunk size %d below store minimum %d", chunkSize, MinChunkSize)}
	}
	return Plan(fileSize, chunkSize)
}

func divideAndCeil(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	quotient := numerator / denominator
	if numerator%denominator != 0 {
		quotient++
	}
	return quotient
}
