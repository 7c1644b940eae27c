package model

import (
	"encoding/json"
	"fmt"
)

// DisqualificationReason tags a run whose score is pinned to the fitness floor.
// The zero value means the creature was not disqualified and encodes as JSON null.
type DisqualificationReason string

const (
	DisqualifiedNone              DisqualificationReason = ""
	DisqualifiedFrequencyExceeded DisqualificationReason = "frequency_exceeded"
	DisqualifiedPhysicsExplosion  DisqualificationReason = "physics_explosion"
	DisqualifiedNaNPosition       DisqualificationReason = "nan_position"
)

func (r DisqualificationReason) IsDisqualified() bool {
	return r != DisqualifiedNone
}

func (r DisqualificationReason) String() string {
	if r == DisqualifiedNone {
		return "none"
	}
	return string(r)
}

func (r DisqualificationReason) MarshalJSON() ([]byte, error) {
	if r == DisqualifiedNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *DisqualificationReason) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = DisqualifiedNone
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch reason := DisqualificationReason(raw); reason {
	case DisqualifiedNone, DisqualifiedFrequencyExceeded, DisqualifiedPhysicsExplosion, DisqualifiedNaNPosition:
		*r = reason
		return nil
	default:
		return fmt.Errorf("unknown disqualification reason %q", raw)
	}
}
