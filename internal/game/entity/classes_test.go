package entity

import (
	"fmt"
	"testing"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestNewPlayerBuildsClassPreset(t *testing.T) {
	player, err := NewPlayer("Aria", ClassMage, sequentialIDs())
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if player.Class != ClassMage {
		t.Fatalf("class = %q, want %q", player.Class, ClassMage)
	}
	if player.Stats.HP != player.Stats.MaxHP || player.Stats.MP != player.Stats.MaxMP {
		t.Fatal("expected full hp/mp at creation")
	}
	if len(player.Spells) == 0 {
		t.Fatal("expected mage to start with spells")
	}
	if len(player.Inventory) == 0 {
		t.Fatal("expected starting inventory")
	}
	for _, item := range player.Inventory {
		if item.ID == "" {
			t.Fatalf("expected item %q to receive an id", item.Name)
		}
	}
	if err := ValidateCharacter(player); err != nil {
		t.Fatalf("expected valid character, got %v", err)
	}
}

func TestNewPlayerUnknownClassFallsBack(t *testing.T) {
	player, err := NewPlayer("Borin", "necromancer", sequentialIDs())
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if player.Class != ClassWarrior {
		t.Fatalf("expected warrior fallback, got %q", player.Class)
	}
}

func TestNewPlayerRequiresName(t *testing.T) {
	if _, err := NewPlayer("", ClassWarrior, sequentialIDs()); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestNormalizeMonsterDefaults(t *testing.T) {
	m, err := NormalizeMonster(Monster{Character: Character{Name: "骷髅兵"}}, sequentialIDs())
	if err != nil {
		t.Fatalf("normalize monster: %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected generated id")
	}
	if m.CreatureType != CreatureMonster {
		t.Fatalf("creature type = %q, want monster", m.CreatureType)
	}
	if m.Stats.HP != m.Stats.MaxHP {
		t.Fatalf("expected full hp, got %d/%d", m.Stats.HP, m.Stats.MaxHP)
	}
	if m.AttackRange != 1 || m.BaseDamage < 1 || m.PhaseCount != 1 {
		t.Fatalf("unexpected defaults: %+v", m)
	}
}

func TestNormalizeMonsterRequiresName(t *testing.T) {
	if _, err := NormalizeMonster(Monster{}, sequentialIDs()); err == nil {
		t.Fatal("expected error for empty name")
	}
}
