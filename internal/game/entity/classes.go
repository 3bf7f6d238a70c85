package entity

// Character classes selectable at game creation. Unknown classes fall back
// to the warrior preset.
const (
	ClassWarrior = "warrior"
	ClassMage    = "mage"
	ClassRogue   = "rogue"
	ClassCleric  = "cleric"
)

type classPreset struct {
	abilities Abilities
	stats     Stats
	spells    []string
	skills    []string
	tools     []string
	items     []Item
}

var classPresets = map[string]classPreset{
	ClassWarrior: {
		abilities: Abilities{Strength: 16, Dexterity: 12, Constitution: 15, Intelligence: 8, Wisdom: 10, Charisma: 10},
		stats:     Stats{MaxHP: 30, MaxMP: 5, AC: 15, Speed: 30, Level: 1},
		skills:    []string{"athletics", "intimidation"},
		items: []Item{
			{Name: "铁剑", Type: ItemTypeWeapon, Rarity: RarityCommon, EquipSlot: SlotMainHand, Value: 15, Weight: 3,
				Properties: map[string]any{"damage_dice": "1d8", "damage_type": "slashing"}},
			{Name: "治疗药水", Type: ItemTypeConsumable, Rarity: RarityCommon, Value: 25, Weight: 0.5,
				EffectPayload: map[string]any{"heal": 12.0}},
		},
	},
	ClassMage: {
		abilities: Abilities{Strength: 8, Dexterity: 12, Constitution: 12, Intelligence: 16, Wisdom: 14, Charisma: 10},
		stats:     Stats{MaxHP: 18, MaxMP: 30, AC: 11, Speed: 30, Level: 1},
		spells:    []string{"火球术", "魔法飞弹", "护盾术"},
		skills:    []string{"arcana", "investigation"},
		items: []Item{
			{Name: "橡木法杖", Type: ItemTypeWeapon, Rarity: RarityCommon, EquipSlot: SlotMainHand, Value: 10, Weight: 2,
				Properties: map[string]any{"damage_dice": "1d6", "damage_type": "bludgeoning"}},
			{Name: "法力药水", Type: ItemTypeConsumable, Rarity: RarityCommon, Value: 25, Weight: 0.5,
				EffectPayload: map[string]any{"restore_mp": 10.0}},
		},
	},
	ClassRogue: {
		abilities: Abilities{Strength: 10, Dexterity: 16, Constitution: 12, Intelligence: 12, Wisdom: 13, Charisma: 12},
		stats:     Stats{MaxHP: 24, MaxMP: 10, AC: 14, Speed: 35, Level: 1},
		skills:    []string{"stealth", "perception", "sleight_of_hand"},
		tools:     []string{"thieves_tools"},
		items: []Item{
			{Name: "匕首", Type: ItemTypeWeapon, Rarity: RarityCommon, EquipSlot: SlotMainHand, Value: 8, Weight: 1,
				Properties: map[string]any{"damage_dice": "1d4", "damage_type": "piercing", "damage_bonus": 2.0}},
			{Name: "盗贼工具", Type: ItemTypeMisc, Rarity: RarityCommon, Value: 25, Weight: 1},
		},
	},
	ClassCleric: {
		abilities: Abilities{Strength: 13, Dexterity: 10, Constitution: 14, Intelligence: 10, Wisdom: 16, Charisma: 12},
		stats:     Stats{MaxHP: 26, MaxMP: 20, AC: 14, Speed: 30, Level: 1},
		spells:    []string{"治疗真言", "圣光术"},
		skills:    []string{"medicine", "insight", "perception"},
		items: []Item{
			{Name: "硬头锤", Type: ItemTypeWeapon, Rarity: RarityCommon, EquipSlot: SlotMainHand, Value: 12, Weight: 4,
				Properties: map[string]any{"damage_dice": "1d6", "damage_type": "bludgeoning"}},
			{Name: "治疗药水", Type: ItemTypeConsumable, Rarity: RarityCommon, Value: 25, Weight: 0.5,
				EffectPayload: map[string]any{"heal": 12.0}},
		},
	},
}

// KnownClass reports whether the class has a preset.
func KnownClass(class string) bool {
	_, ok := classPresets[class]
	return ok
}

// NewPlayer builds a level-1 player character from a class preset. The
// preset's items are normalized with fresh ids from newID.
func NewPlayer(name, class string, newID func() string) (Character, error) {
	if name == "" {
		return Character{}, ErrCharacterNameEmpty
	}
	preset, ok := classPresets[class]
	if !ok {
		class = ClassWarrior
		preset = classPresets[ClassWarrior]
	}

	stats := preset.stats
	stats.HP = stats.MaxHP
	stats.MP = stats.MaxMP

	player := Character{
		Name:               name,
		Class:              class,
		CreatureType:       CreaturePlayer,
		Abilities:          preset.abilities,
		Stats:              stats,
		Spells:             append([]string(nil), preset.spells...),
		SkillProficiencies: append([]string(nil), preset.skills...),
		ToolProficiencies:  append([]string(nil), preset.tools...),
		Inventory:          make([]Item, 0, len(preset.items)),
		ActiveEffects:      []StatusEffect{},
		Equipment:          map[EquipSlot]string{},
	}
	if newID != nil {
		player.ID = newID()
	}
	for _, item := range preset.items {
		normalized, err := NormalizeItem(item, newID)
		if err != nil {
			return Character{}, err
		}
		player.Inventory = append(player.Inventory, normalized)
	}
	return player, nil
}
