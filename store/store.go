package store

import (
	"errors"
	"fmt"

	"github.com/cppla/goboard/models"
)

// Sentinel errors shared by both backends. Anything else coming out of a
// store is a *StorageError carrying the underlying cause.
var (
	// ErrNotFound is returned when an entity id cannot be resolved.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when creating or updating a user would
	// violate email uniqueness.
	ErrEmailTaken = errors.New("email already registered")
)

// StorageError wraps an unexpected backend failure with the operation name.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// UserUpdate carries partial user fields; nil means "leave unchanged".
type UserUpdate struct {
	Email        *string
	Username     *string
	ProfileImage *string
	PasswordHash *string
}

// PostUpdate carries partial post fields; nil means "leave unchanged".
type PostUpdate struct {
	Title   *string
	Content *string
	Image   *string
}

// BoardStats aggregates whole-board numbers for the stats endpoint.
type BoardStats struct {
	Users   int64 `json:"user_count"`
	Posts   int64 `json:"post_count"`
	Replies int64 `json:"reply_count"`
	Views   int64 `json:"view_count"`
}

// Store is the persistence contract shared by the relational and the
// flat-file backend. Posts returned by any read always carry effective
// Likes/LikedBy/Replies values; how those are produced (live aggregation
// vs maintained fields) is the backend's concern.
//
// Mutations that span entities (reply counters, like membership, cascading
// deletes of replies and like rows) happen inside the store so that each
// call is one atomic unit: a transaction in the relational backend, a
// single-writer critical section in the file backend.
type Store interface {
	CreateUser(u *models.User) error
	UserByID(id uint) (*models.User, error)
	ListUsers() ([]models.User, error)
	UserByEmail(email string) (*models.User, error)
	UserByProvider(provider, providerID string) (*models.User, error)
	UpdateUser(id uint, upd UserUpdate) (*models.User, error)
	// DeleteUser removes the user row and every like row the user placed on
	// other posts. The user's own posts and replies are the cascade
	// controller's job, since their image files need collecting first.
	DeleteUser(id uint) error

	CreatePost(p *models.Post) error
	PostByID(id uint) (*models.Post, error)
	ListPosts() ([]models.Post, error)
	PostsByUser(userID uint) ([]models.Post, error)
	UpdatePost(id uint, upd PostUpdate) (*models.Post, error)
	// DeletePost removes the post together with its replies and like rows.
	DeletePost(id uint) error

	CreateReply(r *models.Reply) error
	ReplyByID(id uint) (*models.Reply, error)
	RepliesByPost(postID uint) ([]models.Reply, error)
	RepliesByUser(userID uint) ([]models.Reply, error)
	UpdateReply(id uint, content string) (*models.Reply, error)
	DeleteReply(id uint) error

	// ToggleLike flips membership of userID in the post's like set and
	// returns the new state plus the effective like count.
	ToggleLike(postID, userID uint) (liked bool, likes int, err error)
	// IncrementViews bumps the post's view counter by exactly one.
	IncrementViews(postID uint) error

	Stats() (*BoardStats, error)
	Close() error
}
