package history

import (
	"encoding/json"
	"fmt"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/pkg/delta"
)

// DeltaEncode maps moments to [full moment 0, Δ(0→1), Δ(1→2), ...].
// A nil slice yields nil and an empty slice yields an empty delta.
func DeltaEncode(differ delta.Differ, moments []domain.Moment) (domain.Delta, error) {
	if moments == nil {
		return nil, nil
	}
	out := make(domain.Delta, 0, len(moments))
	if len(moments) == 0 {
		return out, nil
	}

	first, err := json.Marshal(moments[0])
	if err != nil {
		return nil, domain.ErrHistoryMalformed.WithDetails("encode moment 0").WithCause(err)
	}
	out = append(out, first)

	for i := 1; i < len(moments); i++ {
		patch, err := differ.Diff(moments[i-1], moments[i])
		if err != nil {
			return nil, domain.ErrHistoryMalformed.
				WithDetails(fmt.Sprintf("diff moment %d", i)).
				WithCause(err)
		}
		out = append(out, patch)
	}
	return out, nil
}

// DeltaDecode reverses DeltaEncode by applying each patch to the moment
// rebuilt before it.
func DeltaDecode(differ delta.Differ, d domain.Delta) ([]domain.Moment, error) {
	if d == nil {
		return nil, nil
	}
	out := make([]domain.Moment, 0, len(d))
	if len(d) == 0 {
		return out, nil
	}

	var first domain.Moment
	if err := json.Unmarshal(d[0], &first); err != nil {
		return nil, domain.ErrHistoryMalformed.WithDetails("decode moment 0").WithCause(err)
	}
	out = append(out, first)

	for i := 1; i < len(d); i++ {
		var next domain.Moment
		if err := differ.Apply(out[i-1], d[i], &next); err != nil {
			return nil, domain.ErrHistoryMalformed.
				WithDetails(fmt.Sprintf("patch moment %d", i)).
				WithCause(err)
		}
		out = append(out, next)
	}
	return out, nil
}
