package dispatch

import "errors"

// ErrAccessDenied is returned by Authorize for operators outside the allowlist.
var ErrAccessDenied = errors.New("access denied")

// Allowlist is the fixed set of operator IDs loaded at startup.
type Allowlist struct {
	ids map[int64]struct{}
}

func NewAllowlist(ids []int64) Allowlist {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return Allowlist{ids: m}
}

func (a Allowlist) Allows(operator int64) bool {
	_, ok := a.ids[operator]
	return ok
}

// Authorize returns ErrAccessDenied when operator is not allowed.
func (a Allowlist) Authorize(operator int64) error {
	if !a.Allows(operator) {
		return ErrAccessDenied
	}
	return nil
}

// IDs returns the allowed operators in no particular order.
func (a Allowlist) IDs() []int64 {
	out := make([]int64, 0, len(a.ids))
	for id := range a.ids {
		out = append(out, id)
	}
	return out
}

func (a Allowlist) Len() int { return len(a.ids) }
