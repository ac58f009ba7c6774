package board

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cppla/goboard/models"
	"github.com/cppla/goboard/store"
)

func newService(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.NewFileStore(filepath.Join(root, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, root, nil), root
}

func signUp(t *testing.T, svc *Service, email string) *models.User {
	t.Helper()
	u, err := svc.SignUp(SignUpInput{Email: email, Username: "u-" + email, Password: "secret1"})
	require.NoError(t, err)
	return u
}

func makePost(t *testing.T, svc *Service, actorID uint) *models.Post {
	t.Helper()
	p, err := svc.CreatePost(actorID, PostInput{Title: "hello", Content: "first post"})
	require.NoError(t, err)
	return p
}

// writeUpload drops a fake upload under the service's file root and returns
// its stored path, the form records reference it by.
func writeUpload(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, "uploads")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
	return "/uploads/" + name
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SignUp(SignUpInput{Email: "", Username: "x", Password: "secret1"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.SignUp(SignUpInput{Email: "a@example.com", Username: "  ", Password: "secret1"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.SignUp(SignUpInput{Email: "a@example.com", Username: "x", Password: "short"})
	require.ErrorIs(t, err, ErrValidation)

	signUp(t, svc, "a@example.com")
	_, err = svc.SignUp(SignUpInput{Email: "a@example.com", Username: "again", Password: "secret1"})
	require.ErrorIs(t, err, store.ErrEmailTaken)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newService(t)
	u := signUp(t, svc, "a@example.com")

	got, err := svc.Authenticate("a@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	// Unknown email and wrong password are indistinguishable.
	_, err = svc.Authenticate("nobody@example.com", "secret1")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Authenticate("a@example.com", "wrong-pass")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestGetPostViewBump(t *testing.T) {
	svc, _ := newService(t)
	owner := signUp(t, svc, "owner@example.com")
	visitor := signUp(t, svc, "visitor@example.com")
	p := makePost(t, svc, owner.ID)

	// Owner reads never bump.
	got, _, err := svc.GetPost(p.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, uint(0), got.Views)

	// Another user bumps by exactly one, anonymous (actor 0) too.
	got, _, err = svc.GetPost(p.ID, visitor.ID)
	require.NoError(t, err)
	require.Equal(t, uint(1), got.Views)
	got, _, err = svc.GetPost(p.ID, 0)
	require.NoError(t, err)
	require.Equal(t, uint(2), got.Views)

	// RefreshPost reads without counting.
	got, _, err = svc.RefreshPost(p.ID, visitor.ID)
	require.NoError(t, err)
	require.Equal(t, uint(2), got.Views)
}

func TestToggleLikeRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	owner := signUp(t, svc, "owner@example.com")
	fan := signUp(t, svc, "fan@example.com")
	p := makePost(t, svc, owner.ID)

	_, _, err := svc.ToggleLike(0, p.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	liked, likes, err := svc.ToggleLike(fan.ID, p.ID)
	require.NoError(t, err)
	require.True(t, liked)
	require.Equal(t, 1, likes)

	_, isLiked, err := svc.RefreshPost(p.ID, fan.ID)
	require.NoError(t, err)
	require.True(t, isLiked)

	liked, likes, err = svc.ToggleLike(fan.ID, p.ID)
	require.NoError(t, err)
	require.False(t, liked)
	require.Equal(t, 0, likes)
}

func TestReplyLifecycle(t *testing.T) {
	svc, _ := newService(t)
	owner := signUp(t, svc, "owner@example.com")
	other := signUp(t, svc, "other@example.com")
	p := makePost(t, svc, owner.ID)

	_, err := svc.CreateReply(other.ID, p.ID, "   ")
	require.ErrorIs(t, err, ErrValidation)

	r, err := svc.CreateReply(other.ID, p.ID, "nice post")
	require.NoError(t, err)

	got, _, err := svc.RefreshPost(p.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, got.Replies)

	// Only the author may edit or delete.
	_, err = svc.UpdateReply(owner.ID, r.ID, "hijacked")
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, svc.DeleteReply(owner.ID, r.ID), ErrForbidden)

	updated, err := svc.UpdateReply(other.ID, r.ID, "nice post indeed")
	require.NoError(t, err)
	require.Equal(t, "nice post indeed", updated.Content)

	require.NoError(t, svc.DeleteReply(other.ID, r.ID))
	got, _, err = svc.RefreshPost(p.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 0, got.Replies)

	_, err = svc.ListReplies(9999)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostOwnershipChecks(t *testing.T) {
	svc, _ := newService(t)
	owner := signUp(t, svc, "owner@example.com")
	other := signUp(t, svc, "other@example.com")
	p := makePost(t, svc, owner.ID)

	_, err := svc.UpdatePost(other.ID, p.ID, PostInput{Title: "stolen"})
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, svc.DeletePost(other.ID, p.ID), ErrForbidden)

	updated, err := svc.UpdatePost(owner.ID, p.ID, PostInput{Title: "renamed"})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Title)
	require.Equal(t, "first post", updated.Content)
}

func TestDeletePostUnlinksImage(t *testing.T) {
	svc, root := newService(t)
	owner := signUp(t, svc, "owner@example.com")
	stored := writeUpload(t, root, "pic.png")

	p, err := svc.CreatePost(owner.ID, PostInput{Title: "with image", Content: "body", Image: stored})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePost(owner.ID, p.ID))
	_, err = os.Stat(filepath.Join(root, "uploads", "pic.png"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestUpdatePostReplacesImage(t *testing.T) {
	svc, root := newService(t)
	owner := signUp(t, svc, "owner@example.com")
	oldStored := writeUpload(t, root, "old.png")
	newStored := writeUpload(t, root, "new.png")

	p, err := svc.CreatePost(owner.ID, PostInput{Title: "t", Content: "c", Image: oldStored})
	require.NoError(t, err)

	updated, err := svc.UpdatePost(owner.ID, p.ID, PostInput{Image: newStored})
	require.NoError(t, err)
	require.Equal(t, newStored, updated.Image)

	_, err = os.Stat(filepath.Join(root, "uploads", "old.png"))
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(root, "uploads", "new.png"))
	require.NoError(t, err)
}

func TestDeleteAccountCascade(t *testing.T) {
	svc, root := newService(t)
	leaver := signUp(t, svc, "leaver@example.com")
	stayer := signUp(t, svc, "stayer@example.com")

	stored := writeUpload(t, root, "mine.png")
	mine, err := svc.CreatePost(leaver.ID, PostInput{Title: "mine", Content: "body", Image: stored})
	require.NoError(t, err)
	theirs := makePost(t, svc, stayer.ID)

	// The leaver interacts with the stayer's post every way possible.
	_, err = svc.CreateReply(leaver.ID, theirs.ID, "bye soon")
	require.NoError(t, err)
	_, _, err = svc.ToggleLike(leaver.ID, theirs.ID)
	require.NoError(t, err)
	// And the stayer replies on the leaver's post.
	_, err = svc.CreateReply(stayer.ID, mine.ID, "stays until cascade")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(leaver.ID))

	_, err = svc.Profile(leaver.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, _, err = svc.RefreshPost(mine.ID, 0)
	require.ErrorIs(t, err, store.ErrNotFound)

	// The stayer's post survives with counters back to zero.
	got, _, err := svc.RefreshPost(theirs.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 0, got.Replies)
	require.Equal(t, 0, got.Likes)
	require.Empty(t, got.LikedBy)

	_, err = os.Stat(filepath.Join(root, "uploads", "mine.png"))
	require.ErrorIs(t, err, os.ErrNotExist)

	stats, err := svc.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Users)
	require.Equal(t, int64(1), stats.Posts)
	require.Equal(t, int64(0), stats.Replies)
}

func TestOAuthSignIn(t *testing.T) {
	svc, _ := newService(t)

	// First sign-in creates the user; no email means a placeholder one.
	u, err := svc.OAuthSignIn(OAuthIdentity{Provider: "github", ID: "42", Username: "octo"})
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	require.Contains(t, u.Email, "@users.noreply.goboard.local")

	// Second sign-in resolves to the same account.
	again, err := svc.OAuthSignIn(OAuthIdentity{Provider: "github", ID: "42", Username: "octo"})
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)
}

func TestContentSanitized(t *testing.T) {
	svc, _ := newService(t)
	u := signUp(t, svc, "a@example.com")

	p, err := svc.CreatePost(u.ID, PostInput{
		Title:   "safe title",
		Content: `hello <script>alert("x")</script>world`,
	})
	require.NoError(t, err)
	require.NotContains(t, p.Content, "<script>")
	require.Contains(t, p.Content, "hello")
}
