package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ravenmoor/deepspire/internal/game/dice"
	"github.com/ravenmoor/deepspire/internal/game/effect"
	"github.com/ravenmoor/deepspire/internal/game/entity"
	"github.com/ravenmoor/deepspire/internal/game/quest"
	"github.com/ravenmoor/deepspire/internal/game/state"
	"github.com/ravenmoor/deepspire/internal/game/trap"
	"github.com/ravenmoor/deepspire/internal/game/world"
	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
	"github.com/ravenmoor/deepspire/internal/platform/metrics"
	"github.com/ravenmoor/deepspire/internal/telemetry"
)

type actionFunc func(e *Engine, ctx context.Context, sess *Session, params map[string]any) Response

var actionHandlers = map[string]actionFunc{
	"move":        (*Engine).moveAction,
	"attack":      (*Engine).attackAction,
	"rest":        (*Engine).restAction,
	"interact":    (*Engine).interactAction,
	"use_item":    (*Engine).useItemAction,
	"drop_item":   (*Engine).dropItemAction,
	"pickup_item": (*Engine).pickupItemAction,
}

// idempotentActions deduplicate by client key within the session window.
var idempotentActions = map[string]bool{
	"use_item":  true,
	"drop_item": true,
}

// transitionProgressValue is the fixed quest progress granted per floor
// transition; the compensator treats it as non-adjustable.
const transitionProgressValue = 10

// ProcessPlayerAction runs the turn pipeline: touch, validate, lock,
// idempotency, action logic, effect tick, and the normalised response.
func (e *Engine) ProcessPlayerAction(ctx context.Context, userID, gameID, action string, params map[string]any) Response {
	traceID := e.cfg.NewID()
	handler, ok := actionHandlers[action]
	if !ok {
		return failure(action, traceID, platformerrors.New(platformerrors.CodeActionUnknown, "unknown action "+action))
	}

	release, err := e.locks.Acquire(ctx, userID, gameID)
	if err != nil {
		return failure(action, traceID, err)
	}
	defer release()

	sess, err := e.session(userID, gameID)
	if err != nil {
		return failure(action, traceID, err)
	}
	st := sess.State
	sess.touch(e.now())

	if st.IsGameOver {
		return failure(action, traceID, platformerrors.New(platformerrors.CodeGameOver, st.GameOverReason))
	}
	for _, blocked := range e.effects.ActionAvailability(&st.Player) {
		if blocked == action {
			resp := failure(action, traceID, platformerrors.New(platformerrors.CodeActionBlocked, "你当前的状态无法这么做"))
			return resp
		}
	}

	idemKey := ""
	if idempotentActions[action] {
		idemKey = paramString(params, "idempotency_key")
		if idemKey != "" {
			if prior, ok := sess.Idempotency.Lookup(idemKey); ok {
				if replay, ok := prior.(Response); ok {
					replay.IdempotentReplay = true
					replay.TraceID = traceID
					return replay
				}
			}
		}
	}

	resp := handler(e, ctx, sess, params)
	resp.Action = action
	resp.TraceID = traceID

	if resp.Success {
		st.TurnCount++
		st.GameTime++
		resp.Effects = append(resp.Effects, e.effects.ProcessTurnEffects(st, effect.HookTurnEnd)...)
		if st.IsGameOver {
			resp.Events = append(resp.Events, "游戏结束: "+st.GameOverReason)
		}
		resp.Events = append(resp.Events, st.DrainPendingEvents()...)
		resp.PendingMapTransition = st.PendingMapTransition
		resp.HasPendingChoice = st.PendingChoiceContext != nil
		sess.markDirty()
	}
	if idemKey != "" {
		sess.Idempotency.Record(idemKey, resp)
	}

	outcome := "error"
	if resp.Success {
		outcome = "ok"
	}
	metrics.ActionsTotal.WithLabelValues(action, outcome).Inc()
	e.emitEvent(st, telemetry.KindActionProcessed, map[string]any{"action": action, "success": resp.Success, "trace_id": traceID})
	return resp
}

// moveAction steps the player one tile, resolving traps, exploration
// progress, stairs and event hints on the destination.
func (e *Engine) moveAction(ctx context.Context, sess *Session, params map[string]any) Response {
	st := sess.State
	x, okX := paramInt(params, "x")
	y, okY := paramInt(params, "y")
	if !okX || !okY {
		return failure("", "", platformerrors.New(platformerrors.CodeInvalidArgument, "move requires numeric x and y"))
	}
	from := st.Player.Position
	dx, dy := x-from.X, y-from.Y
	if dx < -1 || dx > 1 || dy < -1 || dy > 1 || (dx == 0 && dy == 0) {
		return failure("", "", platformerrors.New(platformerrors.CodeInvalidArgument, "move target must be an adjacent tile"))
	}

	tile, ok := st.CurrentMap.TileAt(x, y)
	if !ok {
		return failure("", "", platformerrors.New(platformerrors.CodeInvalidArgument, "move target is out of bounds"))
	}
	firstVisit := !tile.IsExplored

	mod := e.modifier.SetPlayerPosition(st, x, y, "move")
	if !mod.Success {
		return failure("", "", platformerrors.New(platformerrors.CodeActionFailed, joinErrors(mod.Errors)))
	}
	world.RecomputeVisibility(st.CurrentMap, x, y)

	resp := Response{Success: true, Message: fmt.Sprintf("移动到了(%d,%d)", x, y)}
	if firstVisit {
		resp.Events = append(resp.Events, e.applyQuestProgress(ctx, sess, quest.ProgressEvent{Type: quest.EventExploration})...)
	}

	if tile.ArmedTrap() {
		if trap.PassiveDetect(&st.Player, tile) {
			resp.Events = append(resp.Events, fmt.Sprintf("你察觉到了%s", tile.TrapData.Name))
		} else {
			resp.Events = append(resp.Events, e.fireTrap(sess, tile)...)
			if st.IsGameOver {
				return resp
			}
		}
	}

	switch tile.Terrain {
	case world.TerrainStairsDown, world.TerrainStairsUp:
		st.PendingMapTransition = string(tile.Terrain)
		resp.Events = append(resp.Events, "你站在楼梯上, 可以前往下一层")
	}
	if tile.HasEvent && !tile.EventTriggered && !tile.IsEventHidden {
		resp.Events = append(resp.Events, "这里似乎有什么东西值得调查")
	}
	return resp
}

// fireTrap triggers an undetected trap against the player and applies its
// consequences.
func (e *Engine) fireTrap(sess *Session, tile *world.Tile) []string {
	st := sess.State
	result, err := trap.Trigger(sess.Rng, &st.Player, tile, st.CurrentMap)
	if err != nil {
		return []string{"陷阱失灵了"}
	}
	messages := result.Messages
	if result.Debuff != nil {
		messages = append(messages, e.effects.AddEffect(&st.Player, *result.Debuff)...)
	}
	if result.TeleportTo != nil {
		mod := e.modifier.SetPlayerPosition(st, result.TeleportTo.X, result.TeleportTo.Y, "trap")
		if mod.Success {
			world.RecomputeVisibility(st.CurrentMap, result.TeleportTo.X, result.TeleportTo.Y)
		}
	}
	if !st.Player.Alive() {
		st.SetGameOver(fmt.Sprintf("死于%s", result.TrapName))
	}
	return messages
}

// attackAction resolves the player's attack, the defeat pipeline and the
// counterattacks of the remaining adjacent monsters.
func (e *Engine) attackAction(ctx context.Context, sess *Session, params map[string]any) Response {
	st := sess.State
	monsterID := paramString(params, "monster_id")
	if monsterID == "" {
		monsterID = paramString(params, "target_id")
	}
	if monsterID == "" {
		return failure("", "", platformerrors.New(platformerrors.CodeInvalidArgument, "attack requires a monster_id"))
	}
	monster := st.FindMonster(monsterID)
	if monster == nil || !monster.Alive() {
		return failure("", "", platformerrors.New(platformerrors.CodeNotFound, "monster not found"))
	}
	if !adjacent(st.Player.Position, monster.Position) {
		return failure("", "", platformerrors.New(platformerrors.CodeActionFailed, "目标不在攻击范围内"))
	}

	st.CombatSnapshot = &state.CombatSnapshot{
		PlayerHP:   st.Player.Stats.HP,
		PlayerMP:   st.Player.Stats.MP,
		MonsterID:  monster.ID,
		CapturedAt: e.now(),
	}

	resp := Response{Success: true}
	resp.Effects = append(resp.Effects, e.effects.ProcessEffectHooks(st, effect.HookOnAttack, &st.Player, &monster.Character, nil)...)

	attack, err := entity.ResolveAttack(sess.Rng, &st.Player, &monster.Character, dice.ModeNormal)
	if err != nil {
		return failure("", "", platformerrors.Wrap(platformerrors.CodeInternal, "resolve attack", err))
	}
	if !attack.Hit {
		resp.Message = fmt.Sprintf("你的攻击落空了, %s毫发无伤", monster.Name)
	} else {
		resp.Message = fmt.Sprintf("你击中了%s, 造成%d点伤害", monster.Name, attack.Outcome.Applied)
		if attack.Critical {
			resp.Message = "会心一击! " + resp.Message
		}
		resp.Effects = append(resp.Effects, e.effects.ProcessEffectHooks(st, effect.HookOnHit, &st.Player, &monster.Character, nil)...)
		resp.Effects = append(resp.Effects, e.effects.ProcessEffectHooks(st, effect.HookOnDamageTaken, &monster.Character, &st.Player, nil)...)
	}

	if !monster.Alive() {
		resp.Effects = append(resp.Effects, e.effects.ProcessEffectHooks(st, effect.HookOnKill, &st.Player, nil, nil)...)
		result := e.combat.HandleDefeat(st, monster, sess.Rng)
		resp.CombatResult = &result
		resp.Events = append(resp.Events, result.Messages...)
		resp.Events = append(resp.Events, e.applyQuestProgress(ctx, sess, quest.ProgressEvent{
			Type:  quest.EventCombatVictory,
			Value: result.QuestProgress,
		})...)
		e.compensateAfterClear(st)
		return resp
	}

	// the survivors strike back
	for _, m := range st.MonstersAdjacentTo(st.Player.Position.X, st.Player.Position.Y) {
		resp.Events = append(resp.Events, e.monsterAttack(sess, m)...)
		if st.IsGameOver {
			break
		}
	}
	return resp
}

// monsterAttack rolls one counterattack against the player.
func (e *Engine) monsterAttack(sess *Session, m *entity.Monster) []string {
	st := sess.State
	targetAC := entity.EffectiveAC(&st.Player)
	modifier := m.Stats.Level/2 + 2
	check, err := dice.Check(sess.Rng, dice.CheckRequest{Modifier: modifier, DC: &targetAC, Mode: dice.ModeNormal})
	if err != nil || !check.Success {
		return []string{fmt.Sprintf("%s的攻击落空了", m.Name)}
	}
	outcome := st.Player.ApplyDamage(m.BaseDamage, "")
	messages := []string{fmt.Sprintf("%s攻击了你, 造成%d点伤害", m.Name, outcome.Applied)}
	messages = append(messages, e.effects.ProcessEffectHooks(st, effect.HookOnDamageTaken, &st.Player, &m.Character, nil)...)
	if !st.Player.Alive() {
		st.SetGameOver(fmt.Sprintf("被%s击败", m.Name))
		messages = append(messages, "你倒在了地下城的黑暗中")
	}
	return messages
}

// compensateAfterClear re-balances the active quest's authored progress when
// the floor has no living monsters left.
func (e *Engine) compensateAfterClear(st *state.State) {
	for i := range st.Monsters {
		if st.Monsters[i].Alive() {
			return
		}
	}
	q := st.ActiveQuest()
	if q == nil || q.IsCompleted {
		return
	}
	for _, adj := range quest.Compensate(q, transitionProgressValue, e.cfg.MaxFloors) {
		st.AppendSpawnAudit(fmt.Sprintf("quest %s %s: progress_value %.1f -> %.1f", adj.Kind, adj.Name, adj.Old, adj.New))
	}
}

// restAction restores 30% of the player's maxima unless an enemy is close.
func (e *Engine) restAction(ctx context.Context, sess *Session, params map[string]any) Response {
	st := sess.State
	if len(st.MonstersAdjacentTo(st.Player.Position.X, st.Player.Position.Y)) > 0 {
		return failure("", "", platformerrors.New(platformerrors.CodeActionFailed, "附近有敌人, 无法休息"))
	}
	healHP := st.Player.Stats.MaxHP * 30 / 100
	healMP := st.Player.Stats.MaxMP * 30 / 100
	e.modifier.ApplyPlayerUpdates(st, map[string]any{
		"stats": map[string]any{"hp": float64(healHP), "mp": float64(healMP)},
	}, "rest")
	return Response{Success: true, Message: fmt.Sprintf("你休息了一会儿, 恢复了%d点生命值和%d点法力值", healHP, healMP)}
}

// interactAction works the player's current tile: treasure terrain, event
// tiles, and detected traps.
func (e *Engine) interactAction(ctx context.Context, sess *Session, params map[string]any) Response {
	st := sess.State
	tile, ok := st.CurrentMap.TileAt(st.Player.Position.X, st.Player.Position.Y)
	if !ok {
		return failure("", "", platformerrors.New(platformerrors.CodeInternal, "player tile missing"))
	}

	switch {
	case tile.Terrain == world.TerrainTreasure:
		return e.openTreasure(ctx, sess, tile)
	case tile.HasEvent && !tile.EventTriggered:
		return e.triggerTileEvent(ctx, sess, tile)
	case tile.ArmedTrap() && tile.TrapDetected:
		return e.disarmTrap(sess, tile)
	case tile.ArmedTrap():
		result, err := trap.ActiveDetect(sess.Rng, &st.Player, tile)
		if err != nil {
			return failure("", "", platformerrors.Wrap(platformerrors.CodeInternal, "detect trap", err))
		}
		if result.Success {
			return Response{Success: true, Message: fmt.Sprintf("你发现了隐藏的%s", tile.TrapData.Name)}
		}
		return Response{Success: true, Message: "你没有发现任何异常"}
	default:
		return failure("", "", platformerrors.New(platformerrors.CodeActionFailed, "这里没有可以互动的东西"))
	}
}

// treasureItems is the authored chest content granted by treasure terrain.
func treasureItems() []any {
	return []any{
		map[string]any{"name": "治疗药水", "type": "consumable", "rarity": "common",
			"effect_payload": map[string]any{"heal": float64(20)}},
		map[string]any{"name": "古旧的金币袋", "type": "misc", "rarity": "common", "value": float64(50)},
	}
}

func (e *Engine) openTreasure(ctx context.Context, sess *Session, tile *world.Tile) Response {
	st := sess.State
	items := treasureItems()
	e.modifier.ApplyPlayerUpdates(st, map[string]any{"add_items": items}, "treasure")
	tile.Terrain = world.TerrainFloor
	resp := Response{Success: true, Message: "你打开了宝箱"}
	for _, raw := range items {
		if m, ok := raw.(map[string]any); ok {
			if name, ok := m["name"].(string); ok {
				resp.Events = append(resp.Events, fmt.Sprintf("获得了%s", name))
			}
		}
	}
	resp.Events = append(resp.Events, e.applyQuestProgress(ctx, sess, quest.ProgressEvent{Type: quest.EventTreasureFound})...)
	return resp
}

// triggerTileEvent fires the tile's authored event: quest beats feed the
// progress manager, story and treasure events open a choice prompt.
func (e *Engine) triggerTileEvent(ctx context.Context, sess *Session, tile *world.Tile) Response {
	st := sess.State
	tile.EventTriggered = true

	name, _ := tile.EventData["name"].(string)
	description, _ := tile.EventData["description"].(string)
	situation := description
	if situation == "" {
		situation = name
	}
	if situation == "" {
		situation = "你发现了一处奇怪的地方"
	}

	resp := Response{Success: true, Message: situation}
	if questEventID, ok := tile.EventData["quest_event_id"].(string); ok && questEventID != "" {
		value, _ := tile.EventData["progress_value"].(float64)
		resp.Events = append(resp.Events, e.applyQuestProgress(ctx, sess, quest.ProgressEvent{
			Type:  quest.EventQuestEventTrigger,
			Value: value,
		})...)
		if narration := e.content.narrateEvent(ctx, "触发了"+name, situation, st.CurrentMap.Name, sess.ContextLog); narration != "" {
			st.LastNarrative = narration
			resp.Message = narration
		}
		return resp
	}

	switch tile.EventType {
	case "treasure":
		cc := e.content.storyChoice(ctx, "treasure", situation, sess.ContextLog, e.now())
		cc.EventType = "treasure"
		cc.ContextData = map[string]any{"treasure_items": treasureItems()}
		e.choices.Put(cc)
		st.PendingChoiceContext = cc
		resp.Events = append(resp.Events, e.applyQuestProgress(ctx, sess, quest.ProgressEvent{Type: quest.EventTreasureFound})...)
	default:
		cc := e.content.storyChoice(ctx, tile.EventType, situation, sess.ContextLog, e.now())
		e.choices.Put(cc)
		st.PendingChoiceContext = cc
		resp.Events = append(resp.Events, e.applyQuestProgress(ctx, sess, quest.ProgressEvent{Type: quest.EventStory})...)
	}
	resp.LLMInteractionRequired = st.PendingChoiceContext != nil
	return resp
}

func (e *Engine) disarmTrap(sess *Session, tile *world.Tile) Response {
	st := sess.State
	outcome, err := trap.Disarm(sess.Rng, &st.Player, tile, st.CurrentMap)
	if err != nil {
		return failure("", "", platformerrors.Wrap(platformerrors.CodeInternal, "disarm trap", err))
	}
	resp := Response{Success: true, Events: outcome.Messages}
	if outcome.Disarmed {
		resp.Message = fmt.Sprintf("你拆除了%s", tile.TrapData.Name)
		return resp
	}
	resp.Message = "拆除失败"
	if outcome.Trigger != nil {
		if outcome.Trigger.Debuff != nil {
			resp.Effects = append(resp.Effects, e.effects.AddEffect(&st.Player, *outcome.Trigger.Debuff)...)
		}
		if !st.Player.Alive() {
			st.SetGameOver(fmt.Sprintf("死于%s", outcome.Trigger.TrapName))
		}
	}
	return resp
}

// useItemAction consumes or equips an inventory item.
func (e *Engine) useItemAction(ctx context.Context, sess *Session, params map[string]any) Response {
	st := sess.State
	itemID := paramString(params, "item_id")
	if itemID == "" {
		return failure("", "", platformerrors.New(platformerrors.CodeInvalidArgument, "use_item requires an item_id"))
	}
	idx, item := st.Player.FindItem(itemID)
	if item == nil {
		return failure("", "", platformerrors.New(platformerrors.CodeNotFound, "item not found"))
	}

	if item.Equippable() {
		return e.equipItem(sess, item)
	}

	result := e.effects.ApplyItemEffects(st, item, nil)
	if !result.Success {
		message := "什么都没有发生"
		if len(result.Warnings) > 0 {
			message = result.Warnings[0]
		}
		return failure("", "", platformerrors.New(platformerrors.CodeActionFailed, message))
	}

	// charged items spend a charge on success; consumables without charges
	// are spent outright
	consumed := false
	if item.MaxCharges > 0 {
		item.Charges--
		if item.Charges <= 0 && item.Type == entity.ItemTypeConsumable {
			consumed = true
		}
	} else if item.Type == entity.ItemTypeConsumable {
		consumed = true
	}
	name := item.Name
	if consumed {
		st.Player.Inventory = append(st.Player.Inventory[:idx], st.Player.Inventory[idx+1:]...)
	}

	resp := Response{Success: true, Message: fmt.Sprintf("使用了%s", name), Events: result.Messages}
	resp.Effects = append(resp.Effects, result.AddedEffects...)
	return resp
}

// equipItem swaps the slot occupant: the old item's passives revert by
// source tag, the new item's attach.
func (e *Engine) equipItem(sess *Session, item *entity.Item) Response {
	st := sess.State
	slot := item.EquipSlot
	if st.Player.Equipment == nil {
		st.Player.Equipment = map[entity.EquipSlot]string{}
	}
	var events []string
	if oldID, ok := st.Player.Equipment[slot]; ok && oldID != "" && oldID != item.ID {
		e.effects.RemoveBySource(&st.Player, effect.EquipSourceTag(slot, oldID))
		if _, old := st.Player.FindItem(oldID); old != nil {
			events = append(events, fmt.Sprintf("取下了%s", old.Name))
		}
	}
	st.Player.Equipment[slot] = item.ID
	effects := e.effects.AttachEquipPassives(&st.Player, item)
	resp := Response{Success: true, Message: fmt.Sprintf("装备了%s", item.Name), Events: events}
	resp.Effects = append(resp.Effects, effects...)
	return resp
}

// dropItemAction moves an inventory item onto the player's tile.
func (e *Engine) dropItemAction(ctx context.Context, sess *Session, params map[string]any) Response {
	st := sess.State
	itemID := paramString(params, "item_id")
	if itemID == "" {
		return failure("", "", platformerrors.New(platformerrors.CodeInvalidArgument, "drop_item requires an item_id"))
	}
	item, err := st.Player.RemoveItem(itemID)
	if err != nil {
		return failure("", "", platformerrors.New(platformerrors.CodeNotFound, "item not found"))
	}
	if slot := item.EquipSlot; slot != "" && st.Player.Equipment[slot] == item.ID {
		e.effects.RemoveBySource(&st.Player, effect.EquipSourceTag(slot, item.ID))
		delete(st.Player.Equipment, slot)
	}
	if tile, ok := st.CurrentMap.TileAt(st.Player.Position.X, st.Player.Position.Y); ok {
		tile.Items = append(tile.Items, item)
	}
	return Response{Success: true, Message: fmt.Sprintf("丢下了%s", item.Name)}
}

// pickupItemAction moves items from the player's tile into inventory: one by
// id, or everything when no id is given.
func (e *Engine) pickupItemAction(ctx context.Context, sess *Session, params map[string]any) Response {
	st := sess.State
	tile, ok := st.CurrentMap.TileAt(st.Player.Position.X, st.Player.Position.Y)
	if !ok || len(tile.Items) == 0 {
		return failure("", "", platformerrors.New(platformerrors.CodeActionFailed, "这里没有可以捡起的东西"))
	}
	itemID := paramString(params, "item_id")

	var picked []string
	kept := tile.Items[:0]
	for _, item := range tile.Items {
		if itemID != "" && item.ID != itemID && item.Name != itemID {
			kept = append(kept, item)
			continue
		}
		st.Player.AddItem(item)
		picked = append(picked, item.Name)
	}
	tile.Items = kept
	if len(tile.Items) == 0 {
		tile.Items = nil
	}
	if len(picked) == 0 {
		return failure("", "", platformerrors.New(platformerrors.CodeNotFound, "item not found"))
	}
	return Response{Success: true, Message: fmt.Sprintf("捡起了%s", joinNames(picked))}
}

func adjacent(a, b entity.Position) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1 && !(dx == 0 && dy == 0)
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "action failed"
	}
	return errs[0]
}

func joinNames(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += "、"
		}
		out += name
	}
	return out
}

func paramString(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func paramInt(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
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
