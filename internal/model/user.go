package model

import "time"

// User 用户（身份字段不可变，资料字段不在关系同步范围内）
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Username  string `gorm:"type:varchar(80);not null"`
	Email     string `gorm:"type:varchar(120);uniqueIndex;not null"`
	Password  string `gorm:"type:varchar(128);not null" json:"-"`
	Bio       string `gorm:"type:text"`
	Age       int
	IsAdmin   bool `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }

// RelationCounts 某用户的粉丝数/关注数
type RelationCounts struct {
	UserID    string `json:"user_id"`
	Followers int64  `json:"followers_count"`
	Following int64  `json:"following_count"`
}
