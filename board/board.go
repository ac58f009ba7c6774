package board

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cppla/goboard/models"
	"github.com/cppla/goboard/store"
	"github.com/cppla/goboard/utils"
)

// Errors surfaced to the HTTP layer. Store sentinels (ErrNotFound,
// ErrEmailTaken) pass through unmodified.
var (
	// ErrUnauthorized means no actor identity was supplied for a gated
	// operation.
	ErrUnauthorized = errors.New("authentication required")
	// ErrForbidden means the actor is not the owner of the target entity.
	ErrForbidden = errors.New("permission denied")
	// ErrValidation wraps a missing or malformed required field.
	ErrValidation = errors.New("validation failed")
)

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Service orchestrates multi-entity mutations over a Store. Every operation
// takes the acting user id as an explicit argument; there is no ambient
// request state. actorID zero means "no identity".
type Service struct {
	store store.Store
	// root directory that stored file paths like /uploads/... resolve
	// against when unlinking.
	fileRoot string
	log      *zap.SugaredLogger
}

// NewService builds a Service. fileRoot is the directory that public upload
// paths are served from; logger may be nil.
func NewService(s store.Store, fileRoot string, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: s, fileRoot: fileRoot, log: logger}
}

// SignUpInput carries the signup fields. ProfileImage is an optional stored
// path supplied by the upload handler.
type SignUpInput struct {
	Email        string
	Username     string
	Password     string
	ProfileImage string
}

// SignUp creates a user with a bcrypt-hashed password. Email uniqueness is
// enforced by the store.
func (s *Service) SignUp(in SignUpInput) (*models.User, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" {
		return nil, validationErr("email is required")
	}
	if username == "" {
		return nil, validationErr("username is required")
	}
	if len(in.Password) < 6 {
		return nil, validationErr("password must be at least 6 characters")
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		ProfileImage: in.ProfileImage,
	}
	if err := s.store.CreateUser(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks email/password and returns the user. Both unknown
// email and wrong password come back as ErrUnauthorized so callers cannot
// probe for registered addresses.
func (s *Service) Authenticate(email, password string) (*models.User, error) {
	user, err := s.store.UserByEmail(strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// Profile returns the user record for the authenticated actor.
func (s *Service) Profile(actorID uint) (*models.User, error) {
	if actorID == 0 {
		return nil, ErrUnauthorized
	}
	return s.store.UserByID(actorID)
}

// ProfileInput carries optional profile updates; empty strings mean "leave
// unchanged".
type ProfileInput struct {
	Email        string
	Username     string
	ProfileImage string
}

// UpdateProfile merges the supplied fields. Replacing the profile image
// unlinks the previously stored file.
func (s *Service) UpdateProfile(actorID uint, in ProfileInput) (*models.User, error) {
	if actorID == 0 {
		return nil, ErrUnauthorized
	}
	current, err := s.store.UserByID(actorID)
	if err != nil {
		return nil, err
	}

	var upd store.UserUpdate
	if v := strings.TrimSpace(in.Email); v != "" {
		upd.Email = &v
	}
	if v := strings.TrimSpace(in.Username); v != "" {
		upd.Username = &v
	}
	oldImage := ""
	if in.ProfileImage != "" {
		v := in.ProfileImage
		upd.ProfileImage = &v
		if current.ProfileImage != "" && current.ProfileImage != in.ProfileImage {
			oldImage = current.ProfileImage
		}
	}

	user, err := s.store.UpdateUser(actorID, upd)
	if err != nil {
		return nil, err
	}
	if oldImage != "" {
		s.removeStoredFile(oldImage)
	}
	return user, nil
}

// ChangePassword rehashes and stores a new password for the actor.
func (s *Service) ChangePassword(actorID uint, password string) error {
	if actorID == 0 {
		return ErrUnauthorized
	}
	if len(password) < 6 {
		return validationErr("password must be at least 6 characters")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = s.store.UpdateUser(actorID, store.UserUpdate{PasswordHash: &hash})
	return err
}

// DeleteAccount removes the user and everything they own: each of their
// posts (cascading to replies, like rows and image files), their replies on
// other posts (with parent counter fixups), their like rows elsewhere, and
// their profile image.
func (s *Service) DeleteAccount(actorID uint) error {
	if actorID == 0 {
		return ErrUnauthorized
	}
	user, err := s.store.UserByID(actorID)
	if err != nil {
		return err
	}

	posts, err := s.store.PostsByUser(actorID)
	if err != nil {
		return err
	}
	var orphanedFiles []string
	for _, p := range posts {
		if err := s.store.DeletePost(p.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if p.Image != "" {
			orphanedFiles = append(orphanedFiles, p.Image)
		}
	}

	// Replies the user left on other users' posts. Replies on the user's
	// own posts are already gone with the posts above.
	replies, err := s.store.RepliesByUser(actorID)
	if err != nil {
		return err
	}
	for _, r := range replies {
		if err := s.store.DeleteReply(r.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	if err := s.store.DeleteUser(actorID); err != nil {
		return err
	}

	if user.ProfileImage != "" {
		orphanedFiles = append(orphanedFiles, user.ProfileImage)
	}
	for _, path := range orphanedFiles {
		s.removeStoredFile(path)
	}
	return nil
}

// PostInput carries post creation/update fields. Image is an optional
// stored file path.
type PostInput struct {
	Title   string
	Content string
	Image   string
}

// CreatePost inserts a post with zeroed counters.
func (s *Service) CreatePost(actorID uint, in PostInput) (*models.Post, error) {
	if actorID == 0 {
		return nil, ErrUnauthorized
	}
	title := utils.Sanitize(strings.TrimSpace(in.Title))
	if title == "" {
		return nil, validationErr("title cannot be empty")
	}
	content := utils.Sanitize(in.Content)
	if strings.TrimSpace(content) == "" {
		return nil, validationErr("content cannot be empty")
	}

	post := models.Post{
		UserID:  actorID,
		Title:   title,
		Content: content,
		Image:   in.Image,
	}
	if err := s.store.CreatePost(&post); err != nil {
		return nil, err
	}
	return s.store.PostByID(post.ID)
}

// ListPosts returns all posts, newest first, with authors attached.
func (s *Service) ListPosts() ([]models.Post, error) {
	return s.store.ListPosts()
}

// UserPosts returns the posts of one user, newest first.
func (s *Service) UserPosts(userID uint) ([]models.Post, error) {
	return s.store.PostsByUser(userID)
}

// GetPost returns the post and whether the viewer has liked it. A read by
// anyone but the owner bumps the view counter by exactly one; the bump is
// deliberately not deduplicated beyond "not the owner".
func (s *Service) GetPost(id, viewerID uint) (*models.Post, bool, error) {
	post, err := s.store.PostByID(id)
	if err != nil {
		return nil, false, err
	}
	if post.UserID != viewerID {
		if err := s.store.IncrementViews(id); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
		post.Views++
	}
	return post, post.LikedByUser(viewerID), nil
}

// RefreshPost returns the post without touching the view counter, for
// re-reads that follow a mutation.
func (s *Service) RefreshPost(id, viewerID uint) (*models.Post, bool, error) {
	post, err := s.store.PostByID(id)
	if err != nil {
		return nil, false, err
	}
	return post, post.LikedByUser(viewerID), nil
}

// UpdatePost merges title/content/image; owner only. A replaced image file
// is unlinked after the write succeeds.
func (s *Service) UpdatePost(actorID, id uint, in PostInput) (*models.Post, error) {
	if actorID == 0 {
		return nil, ErrUnauthorized
	}
	current, err := s.store.PostByID(id)
	if err != nil {
		return nil, err
	}
	if current.UserID != actorID {
		return nil, ErrForbidden
	}

	var upd store.PostUpdate
	if v := utils.Sanitize(strings.TrimSpace(in.Title)); v != "" {
		upd.Title = &v
	}
	if v := utils.Sanitize(in.Content); strings.TrimSpace(v) != "" {
		upd.Content = &v
	}
	oldImage := ""
	if in.Image != "" {
		v := in.Image
		upd.Image = &v
		if current.Image != "" && current.Image != in.Image {
			oldImage = current.Image
		}
	}

	post, err := s.store.UpdatePost(id, upd)
	if err != nil {
		return nil, err
	}
	if oldImage != "" {
		s.removeStoredFile(oldImage)
	}
	return post, nil
}

// DeletePost removes the post with its replies and like rows, then unlinks
// its image file.
func (s *Service) DeletePost(actorID, id uint) error {
	if actorID == 0 {
		return ErrUnauthorized
	}
	post, err := s.store.PostByID(id)
	if err != nil {
		return err
	}
	if post.UserID != actorID {
		return ErrForbidden
	}
	if err := s.store.DeletePost(id); err != nil {
		return err
	}
	if post.Image != "" {
		s.removeStoredFile(post.Image)
	}
	return nil
}

// ToggleLike flips the actor's membership in the post's like set and
// returns the new state with the effective count. Calling it twice restores
// the original state.
func (s *Service) ToggleLike(actorID, postID uint) (bool, int, error) {
	if actorID == 0 {
		return false, 0, ErrUnauthorized
	}
	return s.store.ToggleLike(postID, actorID)
}

// ListReplies returns a post's replies oldest first. The parent must exist.
func (s *Service) ListReplies(postID uint) ([]models.Reply, error) {
	if _, err := s.store.PostByID(postID); err != nil {
		return nil, err
	}
	return s.store.RepliesByPost(postID)
}

// CreateReply inserts a reply under an existing post; the parent's reply
// counter is maintained by the store.
func (s *Service) CreateReply(actorID, postID uint, content string) (*models.Reply, error) {
	if actorID == 0 {
		return nil, ErrUnauthorized
	}
	content = utils.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, validationErr("content cannot be empty")
	}
	reply := models.Reply{
		PostID:  postID,
		UserID:  actorID,
		Content: content,
	}
	if err := s.store.CreateReply(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// UpdateReply replaces the reply content; author only.
func (s *Service) UpdateReply(actorID, replyID uint, content string) (*models.Reply, error) {
	if actorID == 0 {
		return nil, ErrUnauthorized
	}
	content = utils.Sanitize(content)
	if strings.TrimSpace(content) == "" {
		return nil, validationErr("content cannot be empty")
	}
	reply, err := s.store.ReplyByID(replyID)
	if err != nil {
		return nil, err
	}
	if reply.UserID != actorID {
		return nil, ErrForbidden
	}
	return s.store.UpdateReply(replyID, content)
}

// DeleteReply removes the reply; author only. The parent counter decrement
// is the store's job.
func (s *Service) DeleteReply(actorID, replyID uint) error {
	if actorID == 0 {
		return ErrUnauthorized
	}
	reply, err := s.store.ReplyByID(replyID)
	if err != nil {
		return err
	}
	if reply.UserID != actorID {
		return ErrForbidden
	}
	return s.store.DeleteReply(replyID)
}

// Stats returns whole-board aggregate numbers.
func (s *Service) Stats() (*store.BoardStats, error) {
	return s.store.Stats()
}

// removeStoredFile unlinks a stored upload path. Failure is logged and
// swallowed: a stale file on disk never fails the mutation that orphaned
// it.
func (s *Service) removeStoredFile(stored string) {
	rel := strings.TrimPrefix(stored, "/")
	if rel == "" || strings.Contains(rel, "..") || strings.HasPrefix(stored, "http") {
		return
	}
	path := filepath.Join(s.fileRoot, filepath.FromSlash(rel))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warnw("failed to remove stored file", "path", path, "error", err)
	}
}
