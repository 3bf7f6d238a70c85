package entity

import (
	"errors"
	"fmt"
	"strings"
)

// CreatureType separates the player from hostile and neutral creatures.
type CreatureType string

const (
	CreaturePlayer  CreatureType = "player"
	CreatureMonster CreatureType = "monster"
	CreatureNPC     CreatureType = "npc"
)

// Position is a tile coordinate on the current map.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

var (
	// ErrCharacterNameEmpty indicates a character without a name.
	ErrCharacterNameEmpty = errors.New("character name is required")
	// ErrItemNotFound indicates an inventory lookup miss.
	ErrItemNotFound = errors.New("item not found in inventory")
)

// Character is a creature on the map: the player or the base of a monster.
// Inventory order is preserved; Equipment maps slots to inventory item ids.
type Character struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description,omitempty"`
	Class              string               `json:"class,omitempty"`
	CreatureType       CreatureType         `json:"creature_type"`
	Abilities          Abilities            `json:"abilities"`
	Stats              Stats                `json:"stats"`
	Inventory          []Item               `json:"inventory"`
	Spells             []string             `json:"spells,omitempty"`
	Position           Position             `json:"position"`
	ActiveEffects      []StatusEffect       `json:"active_effects"`
	SkillProficiencies []string             `json:"skill_proficiencies,omitempty"`
	ToolProficiencies  []string             `json:"tool_proficiencies,omitempty"`
	Resistances        []string             `json:"resistances,omitempty"`
	Vulnerabilities    []string             `json:"vulnerabilities,omitempty"`
	Immunities         []string             `json:"immunities,omitempty"`
	Equipment          map[EquipSlot]string `json:"equipment,omitempty"`
}

// ValidateCharacter checks the character invariants.
func ValidateCharacter(c Character) error {
	if c.Name == "" {
		return ErrCharacterNameEmpty
	}
	if err := c.Abilities.Validate(); err != nil {
		return err
	}
	return c.Stats.Validate()
}

// Alive reports whether the character has hit points left.
func (c *Character) Alive() bool {
	return c.Stats.HP > 0
}

// ProficiencyBonus scales with level the standard way: +2 at level 1,
// +1 every four levels after.
func (c *Character) ProficiencyBonus() int {
	return 2 + (c.Stats.Level-1)/4
}

// HasSkill reports whether the character is proficient in the named skill.
func (c *Character) HasSkill(skill string) bool {
	for _, s := range c.SkillProficiencies {
		if s == skill {
			return true
		}
	}
	return false
}

// HasTool reports whether the character is proficient with the named tool.
func (c *Character) HasTool(tool string) bool {
	for _, t := range c.ToolProficiencies {
		if t == tool {
			return true
		}
	}
	return false
}

// PassivePerception is 10 + WIS modifier, plus proficiency when trained.
func (c *Character) PassivePerception() int {
	p := 10 + c.Abilities.Modifier(AbilityWIS)
	if c.HasSkill("perception") {
		p += c.ProficiencyBonus()
	}
	return p
}

// DamageOutcome describes how incoming damage was adjusted.
type DamageOutcome struct {
	Requested int    `json:"requested"`
	Applied   int    `json:"applied"`
	Type      string `json:"type,omitempty"`
	Immune    bool   `json:"immune,omitempty"`
	Resisted  bool   `json:"resisted,omitempty"`
	Amplified bool   `json:"amplified,omitempty"`
}

// ApplyDamage routes damage through immunity, resistance and vulnerability,
// then reduces hp clamped at zero. Negative amounts are ignored.
func (c *Character) ApplyDamage(amount int, damageType string) DamageOutcome {
	outcome := DamageOutcome{Requested: amount, Type: damageType}
	if amount <= 0 {
		return outcome
	}
	switch {
	case containsFold(c.Immunities, damageType):
		outcome.Immune = true
		return outcome
	case containsFold(c.Resistances, damageType):
		amount /= 2
		outcome.Resisted = true
	case containsFold(c.Vulnerabilities, damageType):
		amount *= 2
		outcome.Amplified = true
	}
	c.Stats.HP -= amount
	c.Stats.ClampHP()
	outcome.Applied = amount
	return outcome
}

// Heal restores hp clamped at max_hp and returns the amount actually healed.
func (c *Character) Heal(amount int) int {
	if amount <= 0 {
		return 0
	}
	before := c.Stats.HP
	c.Stats.HP += amount
	c.Stats.ClampHP()
	return c.Stats.HP - before
}

// RestoreMP restores mp clamped at max_mp and returns the amount restored.
func (c *Character) RestoreMP(amount int) int {
	if amount <= 0 {
		return 0
	}
	before := c.Stats.MP
	c.Stats.MP += amount
	c.Stats.ClampMP()
	return c.Stats.MP - before
}

// FindItem locates an inventory item by id, falling back to exact name.
func (c *Character) FindItem(idOrName string) (int, *Item) {
	for i := range c.Inventory {
		if c.Inventory[i].ID == idOrName {
			return i, &c.Inventory[i]
		}
	}
	for i := range c.Inventory {
		if c.Inventory[i].Name == idOrName {
			return i, &c.Inventory[i]
		}
	}
	return -1, nil
}

// AddItem appends an item to the inventory.
func (c *Character) AddItem(item Item) {
	c.Inventory = append(c.Inventory, item)
}

// RemoveItem removes an inventory item by id or name, preserving order.
func (c *Character) RemoveItem(idOrName string) (Item, error) {
	idx, _ := c.FindItem(idOrName)
	if idx < 0 {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, idOrName)
	}
	item := c.Inventory[idx]
	c.Inventory = append(c.Inventory[:idx], c.Inventory[idx+1:]...)
	return item, nil
}

// EquippedItem returns the item occupying the slot, if any.
func (c *Character) EquippedItem(slot EquipSlot) (*Item, bool) {
	itemID, ok := c.Equipment[slot]
	if !ok {
		return nil, false
	}
	_, item := c.FindItem(itemID)
	if item == nil {
		return nil, false
	}
	return item, true
}

func containsFold(list []string, value string) bool {
	for _, entry := range list {
		if strings.EqualFold(entry, value) {
			return true
		}
	}
	return false
}
