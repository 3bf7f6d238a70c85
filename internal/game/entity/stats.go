package entity

import "errors"

// Armor class bounds enforced by stat mutation.
const (
	ACMin = 5
	ACMax = 45
)

var (
	// ErrInvalidStatsHP indicates hp outside 0..max_hp.
	ErrInvalidStatsHP = errors.New("hp must be between 0 and max_hp")
	// ErrInvalidStatsMP indicates mp outside 0..max_mp.
	ErrInvalidStatsMP = errors.New("mp must be between 0 and max_mp")
	// ErrInvalidStatsLevel indicates a level below 1.
	ErrInvalidStatsLevel = errors.New("level must be at least 1")
	// ErrInvalidStatsAC indicates an armor class outside the allowed range.
	ErrInvalidStatsAC = errors.New("ac is out of range")
)

// Stats holds the mutable combat numbers for a creature.
type Stats struct {
	HP         int `json:"hp"`
	MaxHP      int `json:"max_hp"`
	MP         int `json:"mp"`
	MaxMP      int `json:"max_mp"`
	AC         int `json:"ac"`
	Speed      int `json:"speed"`
	Level      int `json:"level"`
	Experience int `json:"experience"`
}

// Validate checks the stat invariants.
func (s Stats) Validate() error {
	if s.HP < 0 || s.HP > s.MaxHP {
		return ErrInvalidStatsHP
	}
	if s.MP < 0 || s.MP > s.MaxMP {
		return ErrInvalidStatsMP
	}
	if s.Level < 1 {
		return ErrInvalidStatsLevel
	}
	if s.AC < ACMin || s.AC > ACMax {
		return ErrInvalidStatsAC
	}
	return nil
}

// ClampHP forces hp into 0..max_hp.
func (s *Stats) ClampHP() {
	if s.HP < 0 {
		s.HP = 0
	}
	if s.HP > s.MaxHP {
		s.HP = s.MaxHP
	}
}

// ClampMP forces mp into 0..max_mp.
func (s *Stats) ClampMP() {
	if s.MP < 0 {
		s.MP = 0
	}
	if s.MP > s.MaxMP {
		s.MP = s.MaxMP
	}
}

// ClampAC forces ac into the allowed range.
func (s *Stats) ClampAC() {
	if s.AC < ACMin {
		s.AC = ACMin
	}
	if s.AC > ACMax {
		s.AC = ACMax
	}
}
