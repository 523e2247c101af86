package collector

import (
	"errors"
	"fmt"

	"github.com/loadstone-ml/loadstone/format"
	"github.com/loadstone-ml/loadstone/model"
)

var ErrBudgetTooSmall = errors.New("memory budget too small")

// Window plans the contiguous run of layers starting at start that fits
// within budget bytes, returning the exclusive end index. The plan is
// deterministic and monotonic in budget: the first layer is always
// admitted, and each following layer is admitted while the remaining
// budget covers its size.
func (c *Collector) Window(start int, budget uint64) (int, error) {
	if start < 0 || start >= len(c.sizes) {
		return 0, fmt.Errorf("window start %d of %d layers: %w", start, len(c.sizes), model.ErrLayerOutOfRange)
	}

	if budget < c.sizes[start] {
		return 0, fmt.Errorf("%w: layer %d needs %s, budget is %s",
			ErrBudgetTooSmall, start, format.HumanBytes2(c.sizes[start]), format.HumanBytes2(budget))
	}

	end := window(start, budget, c.sizes)

	var used uint64
	for _, size := range c.sizes[start:end] {
		used += size
	}

	c.logger.Debug("planned layer window",
		"start", start,
		"end", end,
		"layers", end-start,
		"budget", format.HumanBytes2(budget),
		"used", format.HumanBytes2(used))

	return end, nil
}

// window packs layers forward from start: subtract the admitted layer's
// size from the free budget, stop when the next layer no longer fits or
// the table runs out. Callers guarantee budget >= sizes[start].
func window(start int, budget uint64, sizes []uint64) int {
	current := start
	free := budget
	next := sizes[current]

	for {
		current++
		free -= next

		if current >= len(sizes) {
			break
		}

		next = sizes[current]
		if free < next {
			break
		}
	}

	return current
}
