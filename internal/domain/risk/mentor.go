package risk

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Mentor is the responsible party an alert may be routed to.
type Mentor struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MentorCode string    `gorm:"column:mentor_code;not null;uniqueIndex" json:"mentor_code"`
	Name       string    `gorm:"column:name" json:"name"`
	Email      string    `gorm:"column:email" json:"email,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Mentor) TableName() string { return "mentor" }

func (m *Mentor) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
