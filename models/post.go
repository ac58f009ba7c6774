package models

import "time"

// Post represents a board post created by a user.
//
// Likes, LikedBy and Replies are effective counters: the relational store
// derives them from join tables at read time, the file store keeps them as
// maintained fields in the snapshot. Either way every Post returned by a
// store carries current values, and likes always equals len(LikedBy).
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Image     string    `gorm:"size:512" json:"image,omitempty"`
	Views     uint      `gorm:"not null;default:0" json:"views"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Likes   int    `gorm:"-" json:"likes"`
	LikedBy []uint `gorm:"-" json:"liked_by"`
	Replies int    `gorm:"-" json:"replies"`

	Author *User `gorm:"-" json:"author,omitempty"`
}

// LikedByUser reports whether userID is a member of the like set.
func (p *Post) LikedByUser(userID uint) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}
