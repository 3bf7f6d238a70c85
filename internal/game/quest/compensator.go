package quest

// Compensator bounds. Guaranteed progress comes from mandatory events, all
// quest monsters, and map transitions; when under-allocated, authored
// progress values scale up within per-objective bounds and the boss keeps at
// least its floor share.
const (
	GuaranteeTarget     = 95.0
	BossMinimumProgress = 15.0
	objectiveMinValue   = 2.0
	objectiveMaxValue   = 60.0
)

// Adjustment records one compensator change to an authored progress value.
type Adjustment struct {
	Kind string  `json:"kind"` // "event" or "monster"
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Old  float64 `json:"old"`
	New  float64 `json:"new"`
}

// GuaranteedProgress sums the progress a player is certain to reach:
// mandatory events, every quest monster, and the fixed per-transition
// contribution across the quest's floors.
func GuaranteedProgress(q *Quest, transitionValue float64, floors int) float64 {
	total := transitionContribution(transitionValue, floors)
	for _, ev := range q.SpecialEvents {
		if ev.IsMandatory {
			total += ev.ProgressValue
		}
	}
	for _, qm := range q.SpecialMonsters {
		total += qm.ProgressValue
	}
	return total
}

func transitionContribution(transitionValue float64, floors int) float64 {
	if floors < 2 {
		return 0
	}
	return transitionValue * float64(floors-1)
}

// Compensate raises authored progress values proportionally until the
// guaranteed total reaches the target. Mandatory events and quest monsters
// are adjustable; transition contributions are fixed. Per-objective values
// stay within [objectiveMinValue, objectiveMaxValue] and the boss keeps at
// least BossMinimumProgress. Returns the adjustments made, nil when the
// quest is already completable.
func Compensate(q *Quest, transitionValue float64, floors int) []Adjustment {
	if q == nil || q.IsCompleted {
		return nil
	}
	guaranteed := GuaranteedProgress(q, transitionValue, floors)
	if guaranteed >= GuaranteeTarget {
		return nil
	}

	fixed := transitionContribution(transitionValue, floors)
	adjustableSum := guaranteed - fixed
	needed := GuaranteeTarget - fixed
	if adjustableSum <= 0 || needed <= 0 {
		return nil
	}
	factor := needed / adjustableSum

	var adjustments []Adjustment
	scale := func(kind, id, name string, value *float64, minimum float64) {
		old := *value
		next := clampValue(old*factor, minimum)
		if next != old {
			*value = next
			adjustments = append(adjustments, Adjustment{Kind: kind, ID: id, Name: name, Old: old, New: next})
		}
	}
	for i := range q.SpecialEvents {
		ev := &q.SpecialEvents[i]
		if !ev.IsMandatory {
			continue
		}
		scale("event", ev.ID, ev.Name, &ev.ProgressValue, objectiveMinValue)
	}
	for i := range q.SpecialMonsters {
		qm := &q.SpecialMonsters[i]
		minimum := objectiveMinValue
		if qm.IsBoss || qm.IsFinalObjective {
			minimum = BossMinimumProgress
		}
		scale("monster", qm.ID, qm.Name, &qm.ProgressValue, minimum)
	}

	// Bound clamps can leave a shortfall; top up the boss within its cap.
	if shortfall := GuaranteeTarget - GuaranteedProgress(q, transitionValue, floors); shortfall > 0 {
		for i := range q.SpecialMonsters {
			qm := &q.SpecialMonsters[i]
			if !qm.IsBoss && !qm.IsFinalObjective {
				continue
			}
			headroom := objectiveMaxValue - qm.ProgressValue
			if headroom <= 0 {
				continue
			}
			bump := shortfall
			if bump > headroom {
				bump = headroom
			}
			old := qm.ProgressValue
			qm.ProgressValue += bump
			adjustments = append(adjustments, Adjustment{Kind: "monster", ID: qm.ID, Name: qm.Name, Old: old, New: qm.ProgressValue})
			shortfall -= bump
			if shortfall <= 0 {
				break
			}
		}
	}
	return adjustments
}

func clampValue(v, minimum float64) float64 {
	if v < minimum {
		return minimum
	}
	if v > objectiveMaxValue {
		return objectiveMaxValue
	}
	return v
}
