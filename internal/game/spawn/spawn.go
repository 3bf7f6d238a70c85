// Package spawn generates floor encounters and instantiates authored quest
// monsters, enforcing power-budget guardrails on everything the LLM returns.
package spawn

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/state"
	"github.com/ravenmoor/deepspire/internal/game/world"
)

// Difficulty tiers an encounter.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyDeadly Difficulty = "deadly"
)

type tier struct {
	minCount     int
	maxCount     int
	crMultiplier float64
}

var tiers = map[Difficulty]tier{
	DifficultyEasy:   {1, 2, 0.5},
	DifficultyMedium: {2, 3, 0.75},
	DifficultyHard:   {3, 4, 1.0},
	DifficultyDeadly: {3, 5, 1.5},
}

// DifficultyForDepth picks an encounter tier from dungeon depth relative to
// player level. Deeper floors against an under-levelled player tilt deadly.
func DifficultyForDepth(depth, playerLevel int) Difficulty {
	gap := depth - playerLevel
	switch {
	case gap >= 2:
		return DifficultyDeadly
	case gap == 1:
		return DifficultyHard
	case gap == 0:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

// Request carries the per-monster context handed to the generator.
type Request struct {
	Name            string  `json:"name,omitempty"`
	Depth           int     `json:"depth"`
	Theme           string  `json:"theme,omitempty"`
	Level           int     `json:"level"`
	ChallengeRating float64 `json:"challenge_rating"`
	QuestContext    string  `json:"quest_context,omitempty"`
	IsBoss          bool    `json:"is_boss,omitempty"`
}

// Generator produces one monster for a request. The LLM adapter implements
// this; a nil or failing generator falls back to local stock monsters.
type Generator interface {
	Monster(ctx context.Context, req Request) (entity.Monster, error)
}

// Manager builds encounters for a floor.
type Manager struct {
	gen   Generator
	newID func() string
}

// NewManager builds a spawn manager. gen may be nil for offline play.
func NewManager(gen Generator, newID func() string) *Manager {
	return &Manager{gen: gen, newID: newID}
}

// GenerateEncounter rolls the tier's monster count, generates each monster in
// parallel through the LLM adapter, and places the survivors on walkable
// tiles. Generation failures fall back to stock monsters and are counted in
// the state's generation metrics.
func (sm *Manager) GenerateEncounter(ctx context.Context, st *state.State, rng *rand.Rand, difficulty Difficulty) ([]entity.Monster, error) {
	t, ok := tiers[difficulty]
	if !ok {
		return nil, fmt.Errorf("unknown encounter difficulty %q", difficulty)
	}
	if st.CurrentMap == nil {
		return nil, fmt.Errorf("no current map to spawn on")
	}
	depth := st.CurrentMap.Depth
	finalFloor := maxInt(st.CurrentMap.MaxFloors, depth)
	count := t.minCount
	if span := t.maxCount - t.minCount; span > 0 {
		count += rng.Intn(span + 1)
	}
	baseCR := math.Max(0.25, float64(depth)*t.crMultiplier)

	requests := make([]Request, count)
	for i := range requests {
		requests[i] = Request{
			Depth:           depth,
			Theme:           st.CurrentMap.FloorTheme,
			Level:           maxInt(1, st.Player.Stats.Level+depth-1),
			ChallengeRating: baseCR,
		}
	}
	st.GenerationMetrics.MonstersRequested += count

	generated := make([]*entity.Monster, count)
	var mu sync.Mutex
	var failed int

	g, gctx := errgroup.WithContext(ctx)
	for i := range requests {
		g.Go(func() error {
			monster, err := sm.generateOne(gctx, requests[i])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				fallback := sm.stockMonster(requests[i])
				generated[i] = &fallback
				return nil
			}
			generated[i] = &monster
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	st.GenerationMetrics.MonstersFailed += failed
	st.GenerationMetrics.MonstersGenerated += count - failed

	var placed []entity.Monster
	for _, m := range generated {
		if m == nil {
			continue
		}
		adjusted := *m
		sm.applyGuardrails(&adjusted, depth, finalFloor, st.AppendSpawnAudit)
		if sm.place(&adjusted, st.CurrentMap, rng) {
			placed = append(placed, adjusted)
		}
	}
	st.Monsters = append(st.Monsters, placed...)
	return placed, nil
}

// InstantiateQuestMonsters spawns every authored quest monster pinned to the
// current depth, applying the power-budget guardrails to each.
func (sm *Manager) InstantiateQuestMonsters(ctx context.Context, st *state.State, rng *rand.Rand, q *quest.Quest) ([]entity.Monster, error) {
	if q == nil || st.CurrentMap == nil {
		return nil, nil
	}
	depth := st.CurrentMap.Depth
	finalFloor := maxInt(st.CurrentMap.MaxFloors, depth)
	var placed []entity.Monster
	for _, qm := range q.MonstersForFloor(depth, finalFloor) {
		if existing := st.FindQuestMonster(qm.ID); existing != nil {
			continue
		}
		req := Request{
			Name:            qm.Name,
			Depth:           depth,
			Theme:           st.CurrentMap.FloorTheme,
			Level:           maxInt(1, qm.Level),
			ChallengeRating: math.Max(0.5, float64(qm.Level)),
			QuestContext:    q.StoryContext,
			IsBoss:          qm.IsBoss,
		}
		st.GenerationMetrics.MonstersRequested++
		monster, err := sm.generateOne(ctx, req)
		if err != nil {
			st.GenerationMetrics.MonstersFailed++
			monster = sm.stockMonster(req)
		} else {
			st.GenerationMetrics.MonstersGenerated++
		}
		monster.Name = qm.Name
		monster.QuestMonsterID = qm.ID
		monster.IsBoss = qm.IsBoss
		monster.IsFinalObjective = qm.IsFinalObjective
		monster.SpecialStatusPack = FilterStatusPack(append(monster.SpecialStatusPack, qm.StatusPack...), st.AppendSpawnAudit, qm.Name)

		sm.guardQuestMonster(&monster, depth, finalFloor, st.AppendSpawnAudit)
		if sm.place(&monster, st.CurrentMap, rng) {
			placed = append(placed, monster)
		}
	}
	st.Monsters = append(st.Monsters, placed...)
	return placed, nil
}

func (sm *Manager) generateOne(ctx context.Context, req Request) (entity.Monster, error) {
	if sm.gen == nil {
		return entity.Monster{}, fmt.Errorf("no monster generator configured")
	}
	monster, err := sm.gen.Monster(ctx, req)
	if err != nil {
		return entity.Monster{}, err
	}
	return entity.NormalizeMonster(monster, sm.newID)
}

var stockNames = []string{"地穴骷髅", "洞穴蛛母", "腐化史莱姆", "游荡怨灵", "石像守卫"}

// stockMonster builds a deterministic local monster scaled to the request.
func (sm *Manager) stockMonster(req Request) entity.Monster {
	name := req.Name
	if name == "" {
		name = stockNames[(req.Depth+req.Level)%len(stockNames)]
	}
	m := entity.Monster{
		Character: entity.Character{
			Name: name,
			Stats: entity.Stats{
				Level: req.Level,
				MaxHP: 8 + req.Level*6,
				AC:    10 + req.Level/2,
			},
		},
		ChallengeRating: req.ChallengeRating,
		BaseDamage:      3 + req.Level,
		IsBoss:          req.IsBoss,
	}
	normalized, _ := entity.NormalizeMonster(m, sm.newID)
	return normalized
}

func (sm *Manager) place(m *entity.Monster, gm *world.GameMap, rng *rand.Rand) bool {
	tile, ok := gm.RandomWalkableTile(rng)
	if !ok {
		return false
	}
	m.Position = entity.Position{X: tile.X, Y: tile.Y}
	tile.CharacterID = m.ID
	return true
}

// applyGuardrails bounds a regular encounter monster. Encounter monsters get
// the same HP/AC/damage budget as non-exempt quest monsters.
func (sm *Manager) applyGuardrails(m *entity.Monster, floor, finalFloor int, audit func(string)) {
	guard(m, floor, floor == finalFloor, false, audit)
}

// guardQuestMonster bounds an authored quest monster, honouring the high-HP
// exemption for the final objective on the final floor.
func (sm *Manager) guardQuestMonster(m *entity.Monster, floor, finalFloor int, audit func(string)) {
	onFinal := floor == finalFloor
	guard(m, floor, onFinal, m.IsFinalObjective && onFinal, audit)
}

// EndgameBonus relaxes caps on the final floor.
const EndgameBonus = 1.35

// HighHPThreshold is the HP level reserved for the exempt final objective.
const HighHPThreshold = 666

func guard(m *entity.Monster, floor int, onFinalFloor, exemptible bool, audit func(string)) {
	if audit == nil {
		audit = func(string) {}
	}
	bonus := 1.0
	if onFinalFloor {
		bonus = EndgameBonus
	}
	level := maxInt(1, m.Stats.Level)

	damageCap := int(math.Max(6, float64(level)*7*bonus))
	if m.BaseDamage > damageCap {
		audit(fmt.Sprintf("%s: base_damage %d -> %d, level %d -> %d", m.Name, m.BaseDamage, damageCap, level, maxInt(1, level-1)))
		m.BaseDamage = damageCap
		level = maxInt(1, level-1)
		m.Stats.Level = level
	}

	acCap := int(math.Min(45, 10+float64(level)*0.9+float64(floor)*0.8))
	if m.Stats.AC > acCap {
		audit(fmt.Sprintf("%s: ac %d -> %d", m.Name, m.Stats.AC, acCap))
		m.Stats.AC = acCap
	}

	hpCap := int(math.Max(30, float64(level)*40*float64(floor)*0.7*bonus))
	exempt := exemptible && m.Stats.MaxHP >= HighHPThreshold &&
		m.Stats.AC <= acCap && m.BaseDamage <= damageCap
	if m.Stats.MaxHP > hpCap && !exempt {
		audit(fmt.Sprintf("%s: max_hp %d -> %d", m.Name, m.Stats.MaxHP, hpCap))
		m.Stats.MaxHP = hpCap
	}
	if m.Stats.HP > m.Stats.MaxHP {
		m.Stats.HP = m.Stats.MaxHP
	}
}

// statusWhitelist names the only special statuses a quest monster may carry.
var statusWhitelist = map[string]bool{
	"burn":   true,
	"curse":  true,
	"shield": true,
	"summon": true,
}

// StatusPackLimit caps how many special statuses survive filtering.
const StatusPackLimit = 6

// FilterStatusPack drops non-whitelisted statuses and truncates the rest.
func FilterStatusPack(pack []string, audit func(string), owner string) []string {
	if audit == nil {
		audit = func(string) {}
	}
	var kept []string
	seen := map[string]bool{}
	for _, status := range pack {
		if !statusWhitelist[status] {
			audit(fmt.Sprintf("%s: status %q dropped", owner, status))
			continue
		}
		if seen[status] {
			continue
		}
		seen[status] = true
		kept = append(kept, status)
	}
	if len(kept) > StatusPackLimit {
		audit(fmt.Sprintf("%s: status pack truncated %d -> %d", owner, len(kept), StatusPackLimit))
		kept = kept[:StatusPackLimit]
	}
	return kept
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
