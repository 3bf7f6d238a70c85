package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ravenmoor/deepspire/internal/game/choice"
	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/spawn"
	"github.com/ravenmoor/deepspire/internal/game/world"
	"github.com/ravenmoor/deepspire/internal/llm"
	"github.com/ravenmoor/deepspire/internal/llm/prompt"
	"github.com/ravenmoor/deepspire/internal/platform/metrics"
)

// contentGenerator funnels every LLM-backed generation path through one
// place. A nil adapter switches every path to its deterministic fallback, so
// the game stays playable without a provider.
type contentGenerator struct {
	adapter llm.Adapter
	prompts *prompt.Registry
	newID   func() string
}

func newContentGenerator(adapter llm.Adapter, prompts *prompt.Registry, newID func() string) *contentGenerator {
	return &contentGenerator{adapter: adapter, prompts: prompts, newID: newID}
}

func (c *contentGenerator) generateJSON(ctx context.Context, name string, params map[string]any, clog *llm.ContextLog) (map[string]any, error) {
	if c.adapter == nil || c.prompts == nil {
		return nil, fmt.Errorf("no llm adapter configured")
	}
	rendered, err := c.prompts.Render(name, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	obj, err := c.adapter.GenerateJSON(ctx, rendered, c.prompts.Schema(name), llm.Options{Log: clog})
	observeLLM("json", start, err)
	return obj, err
}

func (c *contentGenerator) generateText(ctx context.Context, name string, params map[string]any, clog *llm.ContextLog) (string, error) {
	if c.adapter == nil || c.prompts == nil {
		return "", fmt.Errorf("no llm adapter configured")
	}
	rendered, err := c.prompts.Render(name, params)
	if err != nil {
		return "", err
	}
	start := time.Now()
	text, err := c.adapter.GenerateText(ctx, rendered, llm.Options{Log: clog})
	observeLLM("text", start, err)
	return text, err
}

func observeLLM(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.LLMRequestSeconds.Observe(time.Since(start).Seconds())
}

// namer returns the floor-naming adapter, or nil when no LLM is configured
// (the map generator then uses its deterministic fallback name).
func (c *contentGenerator) namer() world.Namer {
	if c.adapter == nil {
		return nil
	}
	return &llmNamer{content: c}
}

type llmNamer struct {
	content *contentGenerator
}

func (n *llmNamer) MapInfo(ctx context.Context, depth int, theme string) (string, string, error) {
	params := map[string]any{"depth": depth}
	if theme != "" {
		params["theme"] = theme
	}
	obj, err := n.content.generateJSON(ctx, prompt.MapInfoGeneration, params, nil)
	if err != nil {
		return "", "", err
	}
	name, _ := obj["name"].(string)
	description, _ := obj["description"].(string)
	return name, description, nil
}

// monsterGenerator returns the spawn generator. Without an adapter a local
// generator produces themed stock monsters scaled to the request.
func (c *contentGenerator) monsterGenerator() spawn.Generator {
	return &monsterGen{content: c}
}

type monsterGen struct {
	content *contentGenerator
}

func (g *monsterGen) Monster(ctx context.Context, req spawn.Request) (entity.Monster, error) {
	if g.content.adapter == nil {
		return g.local(req)
	}
	params := map[string]any{
		"depth":            req.Depth,
		"challenge_rating": req.ChallengeRating,
	}
	if req.Name != "" {
		params["name"] = req.Name
	}
	if req.Theme != "" {
		params["theme"] = req.Theme
	}
	if req.QuestContext != "" {
		params["quest_context"] = req.QuestContext
	}
	if req.IsBoss {
		params["is_boss"] = true
	}
	obj, err := g.content.generateJSON(ctx, prompt.MonsterGeneration, params, nil)
	if err != nil {
		return entity.Monster{}, err
	}
	return monsterFromData(obj, req)
}

// local produces a deterministic monster when no LLM is configured. Numbers
// follow the same depth scaling the prompt asks the model for.
func (g *monsterGen) local(req spawn.Request) (entity.Monster, error) {
	m := entity.Monster{
		Character: entity.Character{
			Name:        req.Name,
			Description: fmt.Sprintf("潜伏在第%d层的威胁", req.Depth),
		},
		ChallengeRating: req.ChallengeRating,
		IsBoss:          req.IsBoss,
	}
	if m.Name == "" {
		m.Name = fmt.Sprintf("深渊爬行者·%d", req.Depth)
	}
	level := req.Level
	if level < 1 {
		level = 1 + int(req.ChallengeRating)
	}
	m.Stats.Level = level
	m.Stats.MaxHP = 8 + level*6 + int(req.ChallengeRating*10)
	m.Stats.HP = m.Stats.MaxHP
	m.Stats.AC = 10 + level/2
	m.BaseDamage = 3 + level*2
	return m, nil
}

// monsterFromData builds a monster from a parsed generation payload.
func monsterFromData(obj map[string]any, req spawn.Request) (entity.Monster, error) {
	m := entity.Monster{ChallengeRating: req.ChallengeRating, IsBoss: req.IsBoss}
	if name, ok := obj["name"].(string); ok && name != "" {
		m.Name = name
	} else {
		m.Name = req.Name
	}
	if m.Name == "" {
		return entity.Monster{}, fmt.Errorf("generated monster has no name")
	}
	if desc, ok := obj["description"].(string); ok {
		m.Description = desc
	}
	if stats, ok := obj["stats"].(map[string]any); ok {
		if v, ok := numeric(stats["max_hp"]); ok {
			m.Stats.MaxHP = v
			m.Stats.HP = v
		}
		if v, ok := numeric(stats["ac"]); ok {
			m.Stats.AC = v
		}
		if v, ok := numeric(stats["level"]); ok {
			m.Stats.Level = v
		}
	}
	if v, ok := numeric(obj["base_damage"]); ok {
		m.BaseDamage = v
	}
	if behavior, ok := obj["behavior"].(string); ok {
		m.Behavior = entity.Behavior(behavior)
	}
	if req.Level > 0 {
		m.Stats.Level = req.Level
	}
	return m, nil
}

// generateQuest produces the opening quest line for a player level, chaining
// from the previous quest title when present.
func (c *contentGenerator) generateQuest(ctx context.Context, playerLevel int, previousTitle string, clog *llm.ContextLog) (quest.Quest, error) {
	if c.adapter != nil {
		params := map[string]any{"player_level": playerLevel}
		if previousTitle != "" {
			params["previous_quest"] = previousTitle
		}
		obj, err := c.generateJSON(ctx, prompt.QuestGeneration, params, clog)
		if err == nil {
			if q, qerr := c.questFromData(obj); qerr == nil {
				return q, nil
			} else {
				log.Printf("quest parse failed err=%v", qerr)
			}
		} else {
			log.Printf("quest generation failed err=%v", err)
		}
	}
	return c.fallbackQuest(playerLevel)
}

// questFromData normalises a loosely typed quest payload.
func (c *contentGenerator) questFromData(data map[string]any) (quest.Quest, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return quest.Quest{}, err
	}
	var q quest.Quest
	if err := json.Unmarshal(raw, &q); err != nil {
		return quest.Quest{}, err
	}
	if len(q.Objectives) == 0 {
		q.Objectives = []string{"探索地下城", "完成任务目标"}
	}
	if q.ExperienceReward <= 0 {
		q.ExperienceReward = 500
	}
	return quest.Normalize(q, c.newID)
}

// fallbackQuest is the authored quest used when no LLM is configured or
// generation fails. Its objectives sum well under the guarantee target so
// the compensator has work to do on long floors.
func (c *contentGenerator) fallbackQuest(playerLevel int) (quest.Quest, error) {
	bossLevel := playerLevel + 2
	q := quest.Quest{
		Title:       "净化深渊尖塔",
		Description: "深渊尖塔的底层传来腐化的低语, 找到源头并终结它。",
		Objectives:  []string{"探索尖塔", "找到腐化的源头", "击败深渊之主"},
		QuestType:   "delve",
		MapThemes:   []string{"ruins", "abyss"},
		SpecialEvents: []quest.Event{
			{Name: "腐化的祭坛", EventType: "story", ProgressValue: 20, LocationHint: 1, IsMandatory: true,
				Description: "一座布满黑色纹路的祭坛"},
			{Name: "远古壁画", EventType: "mystery", ProgressValue: 10, LocationHint: 2,
				Description: "记载尖塔历史的壁画"},
		},
		SpecialMonsters: []quest.Monster{
			{Name: "深渊之主", ProgressValue: 40, IsBoss: true, IsFinalObjective: true, IsMandatory: true,
				Level: bossLevel, Description: "盘踞在尖塔最深处的存在"},
		},
		ExperienceReward: 500 + playerLevel*100,
	}
	return quest.Normalize(q, c.newID)
}

// openingNarrative produces the new-game narration, falling back to a fixed
// opening line.
func (c *contentGenerator) openingNarrative(ctx context.Context, playerName, class, questTitle string, clog *llm.ContextLog) string {
	if c.adapter != nil {
		params := map[string]any{"player_name": playerName, "character_class": class}
		if questTitle != "" {
			params["quest_title"] = questTitle
		}
		if text, err := c.generateText(ctx, prompt.OpeningNarrative, params, clog); err == nil && text != "" {
			return text
		} else if err != nil {
			log.Printf("opening narrative failed err=%v", err)
		}
	}
	return fmt.Sprintf("%s踏入了深渊尖塔的第一层, 黑暗在火把的光晕外涌动。", playerName)
}

// narrateEvent turns an action outcome into narration; empty on failure so
// callers keep their mechanical message.
func (c *contentGenerator) narrateEvent(ctx context.Context, action, outcome, location string, clog *llm.ContextLog) string {
	if c.adapter == nil {
		return ""
	}
	params := map[string]any{"action": action, "outcome": outcome}
	if location != "" {
		params["location"] = location
	}
	text, err := c.generateText(ctx, prompt.NarrativeEvent, params, clog)
	if err != nil {
		log.Printf("narration failed action=%s err=%v", action, err)
		return ""
	}
	return text
}

// storyChoice builds the interactive prompt for a story or mystery event,
// preferring LLM-generated options.
func (c *contentGenerator) storyChoice(ctx context.Context, eventType, situation string, clog *llm.ContextLog, now time.Time) *choice.Context {
	cc := &choice.Context{
		ID:        c.newID(),
		EventType: eventType,
		CreatedAt: now,
	}
	if c.adapter != nil {
		params := map[string]any{"event_type": eventType, "situation": situation}
		if obj, err := c.generateJSON(ctx, prompt.ChoiceGeneration, params, clog); err == nil {
			if parsed := choicesFromData(obj, c.newID); parsed != nil {
				cc.Title, _ = obj["title"].(string)
				cc.Description, _ = obj["description"].(string)
				cc.Choices = parsed
			}
		} else {
			log.Printf("choice generation failed err=%v", err)
		}
	}
	if len(cc.Choices) == 0 {
		cc.Title = "未知的遭遇"
		cc.Description = situation
		cc.Choices = []choice.Choice{
			{ID: c.newID(), Text: "仔细调查", IsAvailable: true,
				Consequences: map[string]any{"message": "你仔细地查看了一番, 没有发现危险。"}},
			{ID: c.newID(), Text: "绕开它继续前进", IsAvailable: true,
				Consequences: map[string]any{"message": "你选择不去招惹未知的东西。"}},
		}
	}
	if cc.Title == "" {
		cc.Title = "未知的遭遇"
	}
	return cc
}

// choicesFromData parses the generated options list.
func choicesFromData(obj map[string]any, newID func() string) []choice.Choice {
	raw, ok := obj["choices"].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	var out []choice.Choice
	for _, entry := range raw {
		data, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		text, _ := data["text"].(string)
		if text == "" {
			continue
		}
		ch := choice.Choice{ID: newID(), Text: text, IsAvailable: true}
		if desc, ok := data["description"].(string); ok {
			ch.Description = desc
		}
		if cons, ok := data["consequences"].(map[string]any); ok {
			ch.Consequences = cons
		}
		out = append(out, ch)
	}
	return out
}

// questCompletionChoice builds the end-of-quest prompt. The follow-up quest
// is generated eagerly and stashed in the context data so the handler can
// fall back to it.
func (c *contentGenerator) questCompletionChoice(ctx context.Context, q *quest.Quest, playerLevel int, clog *llm.ContextLog, now time.Time) *choice.Context {
	description := fmt.Sprintf("任务「%s」已经完成。", q.Title)
	if c.adapter != nil {
		params := map[string]any{"quest_title": q.Title}
		if text, err := c.generateText(ctx, prompt.QuestCompletionText, params, clog); err == nil && text != "" {
			description = text
		}
	}

	next, err := c.generateQuest(ctx, playerLevel+1, q.Title, clog)
	contextData := map[string]any{}
	if err == nil {
		if nextData, merr := questAsMap(next); merr == nil {
			contextData["next_quest"] = nextData
		}
	}

	reward := q.ExperienceReward
	if reward <= 0 {
		reward = 500
	}
	return &choice.Context{
		ID:          c.newID(),
		EventType:   choice.EventQuestCompletion,
		Title:       "任务完成",
		Description: description,
		ContextData: contextData,
		CreatedAt:   now,
		Choices: []choice.Choice{
			{ID: c.newID(), Text: "领取奖励并继续冒险", IsAvailable: true,
				Consequences: map[string]any{
					"message": fmt.Sprintf("获得%d点经验", reward),
					"player_updates": map[string]any{
						"stats": map[string]any{"experience": float64(reward)},
					},
				}},
			{ID: c.newID(), Text: "稍作休整再出发", IsAvailable: true,
				Consequences: map[string]any{
					"message": "你决定整顿行装, 为更深的楼层做准备。",
					"player_updates": map[string]any{
						"stats": map[string]any{"experience": float64(reward)},
					},
				}},
		},
	}
}

// questAsMap renders a quest into the loose map form choice consequences
// carry.
func questAsMap(q quest.Quest) (map[string]any, error) {
	raw, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	// the follow-up starts fresh
	delete(out, "is_active")
	delete(out, "is_completed")
	delete(out, "progress_percentage")
	return out, nil
}

func numeric(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int(f), true
	default:
		return 0, false
	}
}
