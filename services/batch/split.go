package batch

import "github.com/customeros/mailprobe/internal/utils"

type sizeTier struct {
	upTo int
	size int
}

// Uploads of at most singleBatchLimit emails stay in one batch; larger ones use
// the first tier whose upTo covers the total.
const singleBatchLimit = 20

var sizeTiers = []sizeTier{
	{upTo: 100, size: 30},
	{upTo: 200, size: 50},
	{upTo: 500, size: 100},
	{upTo: 1000, size: 150},
}

const maxBatchSize = 200

// Split partitions emails into queue batches, preserving order.
func Split(emails []string) [][]string {
	if len(emails) == 0 {
		return nil
	}
	if len(emails) <= singleBatchLimit {
		return [][]string{emails}
	}
	return utils.Chunk(emails, BatchSizeFor(len(emails)))
}

func BatchSizeFor(total int) int {
	if total <= singleBatchLimit {
		return total
	}
	for _, tier := range sizeTiers {
		if total <= tier.upTo {
			return tier.size
		}
	}
	return maxBatchSize
}
