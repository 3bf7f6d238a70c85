// Package dice implements the d20 mechanics used by checks, saves and traps.
package dice

import (
	"errors"
	"math/rand"
)

// Mode selects how many d20s are rolled and which one counts.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdvantage
	ModeDisadvantage
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeAdvantage:
		return "advantage"
	case ModeDisadvantage:
		return "disadvantage"
	default:
		return "unknown"
	}
}

// ErrMissingDice indicates a roll request had no dice specified.
var ErrMissingDice = errors.New("at least one die must be provided")

// ErrInvalidDiceSpec indicates a die specification has invalid fields.
var ErrInvalidDiceSpec = errors.New("dice must have positive sides and count")

// ErrMissingRand indicates no random source was provided.
var ErrMissingRand = errors.New("random source is required")

// Spec describes a die to roll and how many times to roll it.
type Spec struct {
	Sides int
	Count int
}

// Roll captures the results for a single dice spec.
type Roll struct {
	Sides   int
	Results []int
	Total   int
}

// RollDice rolls the given specs in order using rng.
//
// RollDice is deterministic with respect to rng state: given the same
// *rand.Rand state and the same specs (including order), it always produces
// the same rolls. Results appear in spec order and Total sums every die
// across the request.
func RollDice(rng *rand.Rand, specs ...Spec) ([]Roll, int, error) {
	if rng == nil {
		return nil, 0, ErrMissingRand
	}
	if len(specs) == 0 {
		return nil, 0, ErrMissingDice
	}

	rolls := make([]Roll, 0, len(specs))
	total := 0
	for _, spec := range specs {
		if spec.Sides <= 0 || spec.Count <= 0 {
			return nil, 0, ErrInvalidDiceSpec
		}

		results := make([]int, spec.Count)
		rollTotal := 0
		for i := 0; i < spec.Count; i++ {
			value := rollDie(rng, spec.Sides)
			results[i] = value
			rollTotal += value
		}

		rolls = append(rolls, Roll{
			Sides:   spec.Sides,
			Results: results,
			Total:   rollTotal,
		})
		total += rollTotal
	}

	return rolls, total, nil
}

// CheckRequest describes a d20 check against an optional difficulty class.
type CheckRequest struct {
	Modifier int
	DC       *int
	Mode     Mode
}

// CheckResult captures a resolved d20 check.
//
// Natural captures the die face that counted (after advantage/disadvantage
// selection); Discarded holds the unused face when two dice were rolled.
// CriticalSuccess and CriticalFailure report natural 20 and natural 1; a
// natural 1 is reported but does not force failure on its own.
type CheckResult struct {
	Natural         int
	Discarded       int
	Modifier        int
	DC              *int
	Total           int
	Success         bool
	CriticalSuccess bool
	CriticalFailure bool
	Mode            Mode
}

// Check performs a d20 check using rng.
func Check(rng *rand.Rand, request CheckRequest) (CheckResult, error) {
	if rng == nil {
		return CheckResult{}, ErrMissingRand
	}

	natural := rollDie(rng, 20)
	discarded := 0
	if request.Mode != ModeNormal {
		second := rollDie(rng, 20)
		keepHigher := request.Mode == ModeAdvantage
		if (keepHigher && second > natural) || (!keepHigher && second < natural) {
			natural, discarded = second, natural
		} else {
			discarded = second
		}
	}

	total := natural + request.Modifier
	success := false
	if request.DC != nil {
		success = total >= *request.DC
	}
	if natural == 20 && request.DC != nil {
		success = true
	}

	return CheckResult{
		Natural:         natural,
		Discarded:       discarded,
		Modifier:        request.Modifier,
		DC:              request.DC,
		Total:           total,
		Success:         success,
		CriticalSuccess: natural == 20,
		CriticalFailure: natural == 1,
		Mode:            request.Mode,
	}, nil
}

// rollDie rolls a die with the provided number of sides.
func rollDie(rng *rand.Rand, sides int) int {
	return rng.Intn(sides) + 1
}
