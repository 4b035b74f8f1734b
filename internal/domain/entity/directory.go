package entity

import (
	"time"

	vo "ikedadada/go-onehop/internal/domain/value_object"
)

// NetworkSnapshot is the directory view a provider hands out.
type NetworkSnapshot struct {
	ValidAfter time.Time
	FreshUntil time.Time
	ValidUntil time.Time
	Params     vo.NetParameters
}

// UsableAt reports whether the snapshot satisfies the given timeliness at now.
func (s *NetworkSnapshot) UsableAt(now time.Time, t vo.Timeliness) bool {
	switch t {
	case vo.Strict:
		return !now.Before(s.ValidAfter) && now.Before(s.FreshUntil)
	case vo.Timely:
		return !now.Before(s.ValidAfter) && now.Before(s.ValidUntil)
	default:
		return true
	}
}
