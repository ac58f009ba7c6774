package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cppla/goboard/models"
)

func newFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	f, err := NewFileStore(dir)
	require.NoError(t, err)
	return f, dir
}

func seedUser(t *testing.T, s Store, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Username: "u-" + email, PasswordHash: "x"}
	require.NoError(t, s.CreateUser(u))
	return u
}

func seedPost(t *testing.T, s Store, userID uint) *models.Post {
	t.Helper()
	p := &models.Post{UserID: userID, Title: "hello", Content: "first post"}
	require.NoError(t, s.CreatePost(p))
	return p
}

func TestFileStoreEmailUniqueness(t *testing.T) {
	f, _ := newFileStore(t)
	seedUser(t, f, "a@example.com")

	err := f.CreateUser(&models.User{Email: "a@example.com", Username: "dupe", PasswordHash: "x"})
	require.ErrorIs(t, err, ErrEmailTaken)

	b := seedUser(t, f, "b@example.com")
	taken := "a@example.com"
	_, err = f.UpdateUser(b.ID, UserUpdate{Email: &taken})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestFileStoreIDsMonotonicAcrossReopen(t *testing.T) {
	f, dir := newFileStore(t)
	u := seedUser(t, f, "a@example.com")
	p1 := seedPost(t, f, u.ID)
	p2 := seedPost(t, f, u.ID)
	require.Greater(t, p2.ID, p1.ID)

	// Deleting the newest post must not let its id be reused after reopen.
	require.NoError(t, f.DeletePost(p2.ID))
	require.NoError(t, f.Close())

	f2, err := NewFileStore(dir)
	require.NoError(t, err)
	p3 := seedPost(t, f2, u.ID)
	require.Greater(t, p3.ID, p1.ID)
}

func TestFileStoreToggleLike(t *testing.T) {
	f, _ := newFileStore(t)
	author := seedUser(t, f, "author@example.com")
	fan := seedUser(t, f, "fan@example.com")
	p := seedPost(t, f, author.ID)

	liked, likes, err := f.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	require.True(t, liked)
	require.Equal(t, 1, likes)

	got, err := f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, got.Likes, len(got.LikedBy))
	require.True(t, got.LikedByUser(fan.ID))

	// Second toggle removes the membership again.
	liked, likes, err = f.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	require.False(t, liked)
	require.Equal(t, 0, likes)

	got, err = f.PostByID(p.ID)
	require.NoError(t, err)
	require.Empty(t, got.LikedBy)
	require.Equal(t, 0, got.Likes)

	_, _, err = f.ToggleLike(9999, fan.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreConcurrentToggles(t *testing.T) {
	f, _ := newFileStore(t)
	author := seedUser(t, f, "author@example.com")
	p := seedPost(t, f, author.ID)

	const fans = 16
	ids := make([]uint, 0, fans)
	for i := 0; i < fans; i++ {
		u := seedUser(t, f, "fan"+string(rune('a'+i))+"@example.com")
		ids = append(ids, u.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, fans)
	for _, id := range ids {
		wg.Add(1)
		go func(uid uint) {
			defer wg.Done()
			_, _, err := f.ToggleLike(p.ID, uid)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, fans, got.Likes)
	require.Len(t, got.LikedBy, fans)
}

func TestFileStoreReplyCounter(t *testing.T) {
	f, _ := newFileStore(t)
	u := seedUser(t, f, "a@example.com")
	p := seedPost(t, f, u.ID)

	r1 := &models.Reply{PostID: p.ID, UserID: u.ID, Content: "one"}
	r2 := &models.Reply{PostID: p.ID, UserID: u.ID, Content: "two"}
	require.NoError(t, f.CreateReply(r1))
	require.NoError(t, f.CreateReply(r2))

	got, err := f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Replies)

	require.NoError(t, f.DeleteReply(r1.ID))
	got, err = f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Replies)

	require.NoError(t, f.DeleteReply(r2.ID))
	got, err = f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Replies)

	err = f.CreateReply(&models.Reply{PostID: 9999, UserID: u.ID, Content: "orphan"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCreateReplyRollsBackOnCounterWriteFailure(t *testing.T) {
	f, dir := newFileStore(t)
	u := seedUser(t, f, "a@example.com")
	p := seedPost(t, f, u.ID)
	require.NoError(t, f.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "kept"}))

	// Squat on the posts snapshot's temp path so the counter write fails
	// after the reply snapshot has already been saved.
	blocker := filepath.Join(dir, postsFile+".tmp")
	require.NoError(t, os.Mkdir(blocker, 0o755))
	err := f.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "lost"})
	require.Error(t, err)
	require.NoError(t, os.Remove(blocker))

	// The failed reply was withdrawn, so the snapshot pair still agrees.
	got, err := f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Replies)
	replies, err := f.RepliesByPost(p.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, "kept", replies[0].Content)

	// The store keeps working once the write path is clear again.
	require.NoError(t, f.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "after"}))
	got, err = f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Replies)
}

func TestFileStoreDeletePostCascade(t *testing.T) {
	f, _ := newFileStore(t)
	u := seedUser(t, f, "a@example.com")
	p := seedPost(t, f, u.ID)
	other := seedPost(t, f, u.ID)

	r := &models.Reply{PostID: p.ID, UserID: u.ID, Content: "goes away"}
	require.NoError(t, f.CreateReply(r))
	keptReply := &models.Reply{PostID: other.ID, UserID: u.ID, Content: "stays"}
	require.NoError(t, f.CreateReply(keptReply))

	require.NoError(t, f.DeletePost(p.ID))

	_, err := f.PostByID(p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.ReplyByID(r.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// The sibling post and its reply are untouched.
	still, err := f.ReplyByID(keptReply.ID)
	require.NoError(t, err)
	require.Equal(t, other.ID, still.PostID)
}

func TestFileStoreDeleteUserStripsLikes(t *testing.T) {
	f, _ := newFileStore(t)
	author := seedUser(t, f, "author@example.com")
	fan := seedUser(t, f, "fan@example.com")
	p := seedPost(t, f, author.ID)

	_, _, err := f.ToggleLike(p.ID, fan.ID)
	require.NoError(t, err)
	_, _, err = f.ToggleLike(p.ID, author.ID)
	require.NoError(t, err)

	require.NoError(t, f.DeleteUser(fan.ID))

	got, err := f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Likes)
	require.Equal(t, got.Likes, len(got.LikedBy))
	require.False(t, got.LikedByUser(fan.ID))
	require.True(t, got.LikedByUser(author.ID))
}

func TestFileStoreViewsAndStats(t *testing.T) {
	f, _ := newFileStore(t)
	u := seedUser(t, f, "a@example.com")
	p := seedPost(t, f, u.ID)

	require.NoError(t, f.IncrementViews(p.ID))
	require.NoError(t, f.IncrementViews(p.ID))
	require.ErrorIs(t, f.IncrementViews(9999), ErrNotFound)

	got, err := f.PostByID(p.ID)
	require.NoError(t, err)
	require.Equal(t, uint(2), got.Views)

	require.NoError(t, f.CreateReply(&models.Reply{PostID: p.ID, UserID: u.ID, Content: "hi"}))

	stats, err := f.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Users)
	require.Equal(t, int64(1), stats.Posts)
	require.Equal(t, int64(1), stats.Replies)
	require.Equal(t, int64(2), stats.Views)
}

func TestFileStorePartialUpdates(t *testing.T) {
	f, _ := newFileStore(t)
	u := seedUser(t, f, "a@example.com")
	p := seedPost(t, f, u.ID)

	title := "renamed"
	got, err := f.UpdatePost(p.ID, PostUpdate{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "renamed", got.Title)
	require.Equal(t, "first post", got.Content)

	name := "new-name"
	user, err := f.UpdateUser(u.ID, UserUpdate{Username: &name})
	require.NoError(t, err)
	require.Equal(t, "new-name", user.Username)
	require.Equal(t, "a@example.com", user.Email)
}
