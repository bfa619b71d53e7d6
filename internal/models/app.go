package models

import "time"

// App is a generated web application owned by a user.
type App struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	InitPrompt  string         `gorm:"type:text" json:"initPrompt"`
	CodeGenType GenerationType `gorm:"size:32;not null" json:"codeGenType"`
	UserID      uint           `gorm:"not null;index" json:"userId"`
	DeployKey   string         `gorm:"size:16;index" json:"deployKey,omitempty"`
	// Version is the next version number a deployment will publish.
	Version    int        `gorm:"not null;default:1" json:"version"`
	DeployedAt *time.Time `json:"deployedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
