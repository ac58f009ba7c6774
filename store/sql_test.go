package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/goboard/models"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "board.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}, &models.Reply{}, &models.PostLike{}))
	s := NewSQLStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStoreEmailUniqueness(t *testing.T) {
	s := newSQLStore(t)
	seedUser(t, s, "a@example.com")

	err := s.CreateUser(&models.User{Email: "a@example.com", Username: "dupe", PasswordHash: "x"})
	require.ErrorIs(t, err, ErrEmailTaken)

	b := seedUser(t, s, "b@example.com")
	taken := "a@example.com"
	_, err = s.UpdateUser(b.ID, UserUpdate{Email: &taken})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSQLStoreDerivedCounters(t *testing.T) {
	s := newSQLStore(t)
	author := seedUser(t, s, "author@example.com")
	fan := seedUser(t, s, "fan@example.com")
	p := seedPost(t, s, author.ID)

	liked, likes, err := s.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	require.True(t, liked)
	require.Equal(t, 1, likes)

	require.NoError(t, s.CreateReply(&models.Reply{PostID: p.ID, UserID: fan.ID, Content: "nice"}))
	require.NoError(t, s.CreateReply(&models.Reply{PostID: p.ID, UserID: author.ID, Content: "thanks"}))

	// Single read and list read agree on derived counts.
	got, err := s.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Likes)
	require.Equal(t, got.Likes, len(got.LikedBy))
	require.Equal(t, 2, got.Replies)
	require.True(t, got.LikedByUser(fan.ID))

	list, err := s.ListPosts()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, list[0].Likes)
	require.Equal(t, 2, list[0].Replies)
	require.ElementsMatch(t, []uint{fan.ID}, list[0].LikedBy)
	require.NotNil(t, list[0].Author)
	require.Equal(t, author.ID, list[0].Author.ID)
}

func TestSQLStoreToggleLikeRoundTrip(t *testing.T) {
	s := newSQLStore(t)
	author := seedUser(t, s, "author@example.com")
	fan := seedUser(t, s, "fan@example.com")
	p := seedPost(t, s, author.ID)

	liked, likes, err := s.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	require.True(t, liked)
	require.Equal(t, 1, likes)

	liked, likes, err = s.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	require.False(t, liked)
	require.Equal(t, 0, likes)

	_, _, err = s.ToggleLike(9999, fan.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreDeletePostCascade(t *testing.T) {
	s := newSQLStore(t)
	author := seedUser(t, s, "author@example.com")
	fan := seedUser(t, s, "fan@example.com")
	p := seedPost(t, s, author.ID)
	other := seedPost(t, s, author.ID)

	_, _, err := s.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	r := &models.Reply{PostID: p.ID, UserID: fan.ID, Content: "goes away"}
	require.NoError(t, s.CreateReply(r))
	kept := &models.Reply{PostID: other.ID, UserID: fan.ID, Content: "stays"}
	require.NoError(t, s.CreateReply(kept))

	require.NoError(t, s.DeletePost(p.ID))

	_, err = s.PostByID(p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.ReplyByID(r.ID)
	require.ErrorIs(t, err, ErrNotFound)
	still, err := s.ReplyByID(kept.ID)
	require.NoError(t, err)
	require.Equal(t, other.ID, still.PostID)

	require.ErrorIs(t, s.DeletePost(p.ID), ErrNotFound)
}

func TestSQLStoreDeleteUserRemovesLikeRows(t *testing.T) {
	s := newSQLStore(t)
	author := seedUser(t, s, "author@example.com")
	fan := seedUser(t, s, "fan@example.com")
	p := seedPost(t, s, author.ID)

	_, _, err := s.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	_, _, err = s.ToggleLike(p.ID, author.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(fan.ID))

	got, err := s.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Likes)
	require.False(t, got.LikedByUser(fan.ID))
	require.True(t, got.LikedByUser(author.ID))

	_, err = s.UserByID(fan.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreViewsAndStats(t *testing.T) {
	s := newSQLStore(t)
	u := seedUser(t, s, "a@example.com")
	p := seedPost(t, s, u.ID)

	require.NoError(t, s.IncrementViews(p.ID))
	require.NoError(t, s.IncrementViews(p.ID))
	require.ErrorIs(t, s.IncrementViews(9999), ErrNotFound)

	got, err := s.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, uint(2), got.Views)

	require.NoError(t, s.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "hi"}))

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Users)
	require.Equal(t, int64(1), stats.Posts)
	require.Equal(t, int64(1), stats.Replies)
	require.Equal(t, int64(2), stats.Views)
}

func TestSQLStoreRepliesByPostOrderedWithAuthors(t *testing.T) {
	s := newSQLStore(t)
	u := seedUser(t, s, "a@example.com")
	p := seedPost(t, s, u.ID)

	require.NoError(t, s.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "first"}))
	require.NoError(t, s.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "second"}))

	replies, err := s.RepliesByPost(p.ID)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.Equal(t, "first", replies[0].Content)
	require.NotNil(t, replies[0].Author)
	require.Equal(t, u.ID, replies[0].Author.ID)

	err = s.CreateReply(&models.Reply{PostID: 9999, UserID: u.ID, Content: "orphan"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreCreateReplyRejectsDeletedParent(t *testing.T) {
	s := newSQLStore(t)
	u := seedUser(t, s, "a@example.com")
	p := seedPost(t, s, u.ID)

	require.NoError(t, s.DeletePost(p.ID))

	err := s.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "too late"})
	require.ErrorIs(t, err, ErrNotFound)

	replies, err := s.RepliesByPost(p.ID)
	require.NoError(t, err)
	require.Empty(t, replies)
}

func TestSQLStoreLikeRaceErrorsRecognized(t *testing.T) {
	s := newSQLStore(t)
	author := seedUser(t, s, "author@example.com")
	fan := seedUser(t, s, "fan@example.com")
	p := seedPost(t, s, author.ID)

	_, _, err := s.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)

	// A second insert of the same membership row is what the losing side
	// of two simultaneous toggles produces; the classifier must treat it
	// as the row being present, not as an internal failure.
	dup := s.db.Create(&models.PostLike{PostID: p.ID, UserID: fan.ID}).Error
	require.Error(t, dup)
	require.True(t, isDuplicateKeyError(dup))
	require.False(t, isForeignKeyError(dup))

	// The like state is unchanged afterwards and still toggles cleanly.
	liked, likes, err := s.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	require.False(t, liked)
	require.Equal(t, 0, likes)
}
