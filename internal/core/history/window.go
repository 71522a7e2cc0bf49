package history

import "github.com/yndnr/storyline-go/internal/core/domain"

// Window is the result of Reduce.
type Window struct {
	// Moments is the retained sub-slice, in original order.
	Moments []domain.Moment

	// Index is the active index translated into Moments.
	Index int

	// Expired holds the titles of every moment left out of the window,
	// bottom first.
	Expired []string
}

// Reduce keeps target moments centred on index. When the centred window
// would be uneven, the spare slot goes toward whichever end of the history
// index is closer to; the window is then shifted back inside the bounds.
//
// A target <= 0 or >= len(moments) keeps everything. The returned slice is
// a shallow copy: moments are not cloned.
func Reduce(moments []domain.Moment, index, target int) Window {
	n := len(moments)
	if target <= 0 || target >= n {
		return Window{Moments: append([]domain.Moment(nil), moments...), Index: index}
	}

	before := (target - 1) / 2
	after := target - 1 - before
	if index < n-1-index {
		before, after = after, before
	}

	start := index - before
	if start < 0 {
		start = 0
	}
	if start+target > n {
		start = n - target
	}
	end := start + target

	w := Window{
		Moments: append([]domain.Moment(nil), moments[start:end]...),
		Index:   index - start,
	}
	for _, m := range moments[:start] {
		w.Expired = append(w.Expired, m.Title)
	}
	for _, m := range moments[end:] {
		w.Expired = append(w.Expired, m.Title)
	}
	return w
}
