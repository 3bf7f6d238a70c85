package prompt

// Template names used by the game pipeline.
const (
	MapInfoGeneration   = "map_info_generation"
	MonsterGeneration   = "monster_generation"
	QuestGeneration     = "quest_generation"
	NarrativeEvent      = "narrative_event"
	ChoiceGeneration    = "choice_generation"
	OpeningNarrative    = "opening_narrative"
	QuestCompletionText = "quest_completion_text"
)

func builtinTemplates() []Template {
	return []Template{
		{
			Name:     MapInfoGeneration,
			Required: []string{"depth"},
			Optional: []string{"theme", "quest_context"},
			Text: `你是一个地下城冒险游戏的旁白。为地下城第{{.depth}}层起一个名字并写一段简短的氛围描述。
{{if .theme}}这一层的主题是: {{.theme}}。{{end}}
{{if .quest_context}}当前任务背景: {{.quest_context}}。{{end}}
名字不超过12个字, 描述不超过60个字。`,
			Schema: map[string]any{
				"name":        "string",
				"description": "string",
			},
		},
		{
			Name:     MonsterGeneration,
			Required: []string{"depth", "challenge_rating"},
			Optional: []string{"name", "theme", "quest_context", "is_boss"},
			Text: `为地下城第{{.depth}}层生成一个怪物, 挑战等级{{.challenge_rating}}。
{{if .name}}怪物名字必须是: {{.name}}。{{end}}
{{if .theme}}楼层主题: {{.theme}}。{{end}}
{{if .quest_context}}任务背景: {{.quest_context}}。{{end}}
{{if .is_boss}}这是一个首领级怪物。{{end}}
给出名字、描述、生命值、护甲、基础伤害和行为方式。`,
			Schema: map[string]any{
				"name":        "string",
				"description": "string",
				"stats":       "object{max_hp, ac, level}",
				"base_damage": "number",
				"behavior":    "string",
			},
		},
		{
			Name:     QuestGeneration,
			Required: []string{"player_level"},
			Optional: []string{"previous_quest", "theme"},
			Text: `为一个{{.player_level}}级冒险者生成一条地下城任务线。
{{if .previous_quest}}上一条任务: {{.previous_quest}}。新任务要自然地承接它。{{end}}
{{if .theme}}偏好主题: {{.theme}}。{{end}}
包含标题、描述、2到4个目标、特殊事件和特殊怪物, 每个目标都要有进度值。`,
			Schema: map[string]any{
				"title":            "string",
				"description":      "string",
				"objectives":       "array[string]",
				"special_events":   "array[object]",
				"special_monsters": "array[object]",
			},
		},
		{
			Name:     NarrativeEvent,
			Required: []string{"action", "outcome"},
			Optional: []string{"location", "monster"},
			Text: `你是一个地下城冒险游戏的旁白。玩家刚刚{{.action}}, 结果是{{.outcome}}。
{{if .location}}地点: {{.location}}。{{end}}
{{if .monster}}涉及的怪物: {{.monster}}。{{end}}
用两三句话描述这一幕, 不要复述数值。`,
		},
		{
			Name:     ChoiceGeneration,
			Required: []string{"event_type", "situation"},
			Optional: []string{"quest_context"},
			Text: `玩家遇到了一个{{.event_type}}事件: {{.situation}}。
{{if .quest_context}}任务背景: {{.quest_context}}。{{end}}
生成2到4个可选项, 每个选项有文字说明和后果。`,
			Schema: map[string]any{
				"title":       "string",
				"description": "string",
				"choices":     "array[object{text, consequences}]",
			},
		},
		{
			Name:     OpeningNarrative,
			Required: []string{"player_name", "character_class"},
			Optional: []string{"quest_title"},
			Text: `{{.player_name}}是一名{{.character_class}}, 刚刚踏入深渊尖塔的第一层。
{{if .quest_title}}他们接下的任务是: {{.quest_title}}。{{end}}
写一段开场旁白, 三四句话, 烘托气氛。`,
		},
		{
			Name:     QuestCompletionText,
			Required: []string{"quest_title"},
			Optional: []string{"boss_name"},
			Text: `玩家完成了任务「{{.quest_title}}」。
{{if .boss_name}}最终击败的敌人是{{.boss_name}}。{{end}}
写一段收尾旁白, 并为接下来更深层的冒险留下悬念。`,
		},
	}
}
