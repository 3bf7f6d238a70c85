package entity

import "errors"

// ItemType categorizes items by how they are used.
type ItemType string

const (
	ItemTypeWeapon     ItemType = "weapon"
	ItemTypeArmor      ItemType = "armor"
	ItemTypeConsumable ItemType = "consumable"
	ItemTypeMisc       ItemType = "misc"
)

// ValidItemType reports whether t is one of the known item types.
func ValidItemType(t ItemType) bool {
	switch t {
	case ItemTypeWeapon, ItemTypeArmor, ItemTypeConsumable, ItemTypeMisc:
		return true
	}
	return false
}

// Rarity grades an item's power tier.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// ValidRarity reports whether r is one of the known rarities.
func ValidRarity(r Rarity) bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// EquipSlot names where a wearable item goes.
type EquipSlot string

const (
	SlotMainHand EquipSlot = "main_hand"
	SlotOffHand  EquipSlot = "off_hand"
	SlotBody     EquipSlot = "body"
	SlotHead     EquipSlot = "head"
	SlotAccess   EquipSlot = "accessory"
)

// ErrItemNameEmpty indicates an item without a name.
var ErrItemNameEmpty = errors.New("item name is required")

// Item is a carryable or placeable object. EffectPayload holds the typed
// consequence data evaluated by the effect engine on use; Charges/MaxCharges
// track limited uses for rechargeable items.
type Item struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Type          ItemType       `json:"type"`
	Rarity        Rarity         `json:"rarity"`
	Value         int            `json:"value"`
	Weight        float64        `json:"weight"`
	Properties    map[string]any `json:"properties,omitempty"`
	EffectPayload map[string]any `json:"effect_payload,omitempty"`
	Charges       int            `json:"charges,omitempty"`
	MaxCharges    int            `json:"max_charges,omitempty"`
	CooldownTurns int            `json:"cooldown_turns,omitempty"`
	EquipSlot     EquipSlot      `json:"equip_slot,omitempty"`
}

// NormalizeItem fills defaulted fields and validates the result. The id is
// assigned through newID when empty so authored and generated items share
// one code path.
func NormalizeItem(item Item, newID func() string) (Item, error) {
	if item.Name == "" {
		return Item{}, ErrItemNameEmpty
	}
	if item.ID == "" && newID != nil {
		item.ID = newID()
	}
	if !ValidItemType(item.Type) {
		item.Type = ItemTypeMisc
	}
	if !ValidRarity(item.Rarity) {
		item.Rarity = RarityCommon
	}
	if item.MaxCharges > 0 && item.Charges == 0 {
		item.Charges = item.MaxCharges
	}
	return item, nil
}

// Equippable reports whether the item occupies an equipment slot.
func (i Item) Equippable() bool {
	return i.EquipSlot != "" && (i.Type == ItemTypeWeapon || i.Type == ItemTypeArmor)
}
