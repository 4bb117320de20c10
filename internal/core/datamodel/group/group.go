package group

import "time"

type Group struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	IsActive    bool      `gorm:"column:is_active;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Group) TableName() string {
	return "groups"
}

// UserGroup is a membership row; the composite primary key keeps each
// (user, group) pair unique.
type UserGroup struct {
	UserID    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	GroupID   int64     `gorm:"column:group_id;primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserGroup) TableName() string {
	return "user_groups"
}

type GroupRole struct {
	GroupID   int64     `gorm:"column:group_id;primaryKey;autoIncrement:false"`
	RoleID    int64     `gorm:"column:role_id;primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (GroupRole) TableName() string {
	return "group_roles"
}
