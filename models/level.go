package models

// LevelDefinition: read-only reference row, MinXP non-decreasing with Level
type LevelDefinition struct {
	Level int    `gorm:"primaryKey;autoIncrement:false" json:"level"`
	MinXP int64  `gorm:"not null" json:"min_xp"`
	Title string `json:"title"`
}

func (LevelDefinition) TableName() string {
	return "gamification_levels"
}
