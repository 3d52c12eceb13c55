package model

// swagger:model Lesson
type Lesson struct {
	BaseModel

	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationSeconds int    `json:"durationSeconds"`
	VideoObjectKey  string `json:"videoObjectKey,omitempty"`
	IsPublished     bool   `gorm:"default:false" json:"isPublished"`
}

func (Lesson) TableName() string {
	return "lessons"
}
