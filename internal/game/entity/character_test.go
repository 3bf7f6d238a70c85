package entity

import (
	"encoding/json"
	"errors"
	"testing"
)

func testCharacter() Character {
	return Character{
		ID:           "char-1",
		Name:         "Aria",
		CreatureType: CreaturePlayer,
		Abilities:    DefaultAbilities(),
		Stats:        Stats{HP: 20, MaxHP: 20, MP: 10, MaxMP: 10, AC: 12, Speed: 30, Level: 1},
	}
}

func TestCharacterDescriptionRoundTrip(t *testing.T) {
	c := testCharacter()
	c.Description = "来自北境的游侠"
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Character
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Description != c.Description {
		t.Fatalf("description = %q, want %q", decoded.Description, c.Description)
	}

	m := Monster{Character: Character{Name: "潜伏者", Description: "阴影中的轮廓"}}
	raw, err = json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal monster: %v", err)
	}
	var decodedMonster Monster
	if err := json.Unmarshal(raw, &decodedMonster); err != nil {
		t.Fatalf("unmarshal monster: %v", err)
	}
	if decodedMonster.Description != "阴影中的轮廓" {
		t.Fatalf("monster description = %q, want %q", decodedMonster.Description, "阴影中的轮廓")
	}
}

func TestApplyDamageClampsAtZero(t *testing.T) {
	c := testCharacter()
	outcome := c.ApplyDamage(50, "slashing")
	if outcome.Applied != 50 {
		t.Fatalf("expected 50 applied, got %d", outcome.Applied)
	}
	if c.Stats.HP != 0 {
		t.Fatalf("expected hp clamped to 0, got %d", c.Stats.HP)
	}
	if c.Alive() {
		t.Fatal("expected character to be dead")
	}
}

func TestApplyDamageRouting(t *testing.T) {
	tests := []struct {
		name        string
		resist      []string
		vuln        []string
		immune      []string
		amount      int
		wantApplied int
	}{
		{name: "plain", amount: 10, wantApplied: 10},
		{name: "resisted halves", resist: []string{"fire"}, amount: 10, wantApplied: 5},
		{name: "vulnerable doubles", vuln: []string{"fire"}, amount: 10, wantApplied: 20},
		{name: "immune zeroes", immune: []string{"fire"}, amount: 10, wantApplied: 0},
		{name: "case insensitive", resist: []string{"Fire"}, amount: 9, wantApplied: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCharacter()
			c.Stats.MaxHP = 100
			c.Stats.HP = 100
			c.Resistances = tt.resist
			c.Vulnerabilities = tt.vuln
			c.Immunities = tt.immune

			outcome := c.ApplyDamage(tt.amount, "fire")
			if outcome.Applied != tt.wantApplied {
				t.Fatalf("applied = %d, want %d", outcome.Applied, tt.wantApplied)
			}
			if c.Stats.HP != 100-tt.wantApplied {
				t.Fatalf("hp = %d, want %d", c.Stats.HP, 100-tt.wantApplied)
			}
		})
	}
}

func TestApplyDamageIgnoresNonPositive(t *testing.T) {
	c := testCharacter()
	outcome := c.ApplyDamage(-5, "fire")
	if outcome.Applied != 0 || c.Stats.HP != 20 {
		t.Fatalf("expected no change, got applied=%d hp=%d", outcome.Applied, c.Stats.HP)
	}
}

func TestHealClampsAtMax(t *testing.T) {
	c := testCharacter()
	c.Stats.HP = 15
	if healed := c.Heal(50); healed != 5 {
		t.Fatalf("expected 5 healed, got %d", healed)
	}
	if c.Stats.HP != c.Stats.MaxHP {
		t.Fatalf("expected hp at max, got %d", c.Stats.HP)
	}
}

func TestRestoreMPClampsAtMax(t *testing.T) {
	c := testCharacter()
	c.Stats.MP = 9
	if restored := c.RestoreMP(10); restored != 1 {
		t.Fatalf("expected 1 restored, got %d", restored)
	}
}

func TestInventoryAddFindRemove(t *testing.T) {
	c := testCharacter()
	c.AddItem(Item{ID: "item-1", Name: "Torch", Type: ItemTypeMisc})
	c.AddItem(Item{ID: "item-2", Name: "Potion", Type: ItemTypeConsumable})

	idx, item := c.FindItem("item-2")
	if idx != 1 || item == nil || item.Name != "Potion" {
		t.Fatalf("expected to find potion at index 1, got idx=%d item=%+v", idx, item)
	}

	// Name fallback.
	idx, item = c.FindItem("Torch")
	if idx != 0 || item == nil {
		t.Fatalf("expected to find torch by name, got idx=%d", idx)
	}

	removed, err := c.RemoveItem("item-1")
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if removed.Name != "Torch" {
		t.Fatalf("expected removed torch, got %q", removed.Name)
	}
	if len(c.Inventory) != 1 || c.Inventory[0].ID != "item-2" {
		t.Fatalf("expected only potion to remain, got %+v", c.Inventory)
	}

	if _, err := c.RemoveItem("missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected %v, got %v", ErrItemNotFound, err)
	}
}

func TestPassivePerception(t *testing.T) {
	c := testCharacter()
	c.Abilities.Wisdom = 14
	if got := c.PassivePerception(); got != 12 {
		t.Fatalf("passive perception = %d, want 12", got)
	}
	c.SkillProficiencies = []string{"perception"}
	if got := c.PassivePerception(); got != 14 {
		t.Fatalf("passive perception with proficiency = %d, want 14", got)
	}
}

func TestProficiencyBonusScalesWithLevel(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{1, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4}, {13, 5}, {17, 6},
	}
	c := testCharacter()
	for _, tt := range tests {
		c.Stats.Level = tt.level
		if got := c.ProficiencyBonus(); got != tt.want {
			t.Fatalf("level %d bonus = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestEquippedItem(t *testing.T) {
	c := testCharacter()
	c.AddItem(Item{ID: "sword-1", Name: "Sword", Type: ItemTypeWeapon, EquipSlot: SlotMainHand})
	c.Equipment = map[EquipSlot]string{SlotMainHand: "sword-1"}

	item, ok := c.EquippedItem(SlotMainHand)
	if !ok || item.Name != "Sword" {
		t.Fatalf("expected equipped sword, got ok=%v item=%+v", ok, item)
	}
	if _, ok := c.EquippedItem(SlotBody); ok {
		t.Fatal("expected empty body slot")
	}

	// A dangling equipment reference must not resolve.
	c.Equipment[SlotOffHand] = "gone"
	if _, ok := c.EquippedItem(SlotOffHand); ok {
		t.Fatal("expected dangling reference to be treated as empty")
	}
}
