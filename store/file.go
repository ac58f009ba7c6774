package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cppla/goboard/models"
	"github.com/cppla/goboard/utils"
)

const (
	usersFile   = "users.json"
	postsFile   = "posts.json"
	repliesFile = "replies.json"
)

// FileStore is the flat-file backend: three JSON arrays rewritten wholesale
// on every mutation. Counters (likes, liked_by, replies) are denormalized
// stored fields maintained by the mutation that causes the change.
//
// Every mutation runs under one store-wide mutex, so the load-mutate-save
// cycle is never interleaved between callers and cross-collection cascades
// stay consistent. Ids are allocated from in-memory counters seeded once at
// open, which keeps them monotonic even across deletes. Snapshots are
// written to a temp file and renamed into place so a crashed writer never
// truncates the data files.
type FileStore struct {
	mu  sync.Mutex
	dir string

	nextUserID  uint
	nextPostID  uint
	nextReplyID uint
}

// NewFileStore opens (creating if needed) the data directory and seeds the
// id counters from the existing snapshots.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr("open file store", err)
	}
	f := &FileStore{dir: dir, nextUserID: 1, nextPostID: 1, nextReplyID: 1}

	users, err := f.loadUsers()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID >= f.nextUserID {
			f.nextUserID = u.ID + 1
		}
	}
	posts, err := f.loadPosts()
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if p.ID >= f.nextPostID {
			f.nextPostID = p.ID + 1
		}
	}
	replies, err := f.loadReplies()
	if err != nil {
		return nil, err
	}
	for _, r := range replies {
		if r.ID >= f.nextReplyID {
			f.nextReplyID = r.ID + 1
		}
	}
	return f, nil
}

func (f *FileStore) CreateUser(u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return err
	}
	for _, existing := range users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	now := time.Now()
	u.ID = f.nextUserID
	u.CreatedAt = now
	u.UpdatedAt = now
	users = append(users, *u)
	if err := f.save(usersFile, users); err != nil {
		return err
	}
	f.nextUserID++
	return nil
}

func (f *FileStore) UserByID(id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			u := users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) ListUsers() ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (f *FileStore) UserByEmail(email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Email == email {
			u := users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) UserByProvider(provider, providerID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Provider == provider && users[i].ProviderID == providerID {
			u := users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) UpdateUser(id uint, upd UserUpdate) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range users {
		if users[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}
	if upd.Email != nil && *upd.Email != users[idx].Email {
		for i := range users {
			if i != idx && users[i].Email == *upd.Email {
				return nil, ErrEmailTaken
			}
		}
		users[idx].Email = *upd.Email
	}
	if upd.Username != nil {
		users[idx].Username = *upd.Username
	}
	if upd.ProfileImage != nil {
		users[idx].ProfileImage = *upd.ProfileImage
	}
	if upd.PasswordHash != nil {
		users[idx].PasswordHash = *upd.PasswordHash
	}
	users[idx].UpdatedAt = time.Now()
	if err := f.save(usersFile, users); err != nil {
		return nil, err
	}
	u := users[idx]
	return &u, nil
}

func (f *FileStore) DeleteUser(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return err
	}
	kept := users[:0]
	found := false
	for _, u := range users {
		if u.ID == id {
			found = true
			continue
		}
		kept = append(kept, u)
	}
	if !found {
		return ErrNotFound
	}
	if err := f.save(usersFile, kept); err != nil {
		return err
	}

	// Strip the user's likes from every remaining post and recompute the
	// count from the set.
	posts, err := f.loadPosts()
	if err != nil {
		return err
	}
	changed := false
	for i := range posts {
		members := posts[i].LikedBy[:0]
		for _, uid := range posts[i].LikedBy {
			if uid != id {
				members = append(members, uid)
			}
		}
		if len(members) != posts[i].Likes {
			changed = true
		}
		posts[i].LikedBy = members
		posts[i].Likes = len(members)
	}
	if changed {
		return f.save(postsFile, posts)
	}
	return nil
}

func (f *FileStore) CreatePost(p *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return err
	}
	now := time.Now()
	p.ID = f.nextPostID
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Views = 0
	p.Likes = 0
	p.LikedBy = []uint{}
	p.Replies = 0
	posts = append(posts, stripAuthor(*p))
	if err := f.save(postsFile, posts); err != nil {
		return err
	}
	f.nextPostID++
	return nil
}

func (f *FileStore) PostByID(id uint) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].ID == id {
			p := posts[i]
			f.attachAuthor(&p)
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) ListPosts() ([]models.Post, error) {
	return f.filterPosts(func(models.Post) bool { return true })
}

func (f *FileStore) PostsByUser(userID uint) ([]models.Post, error) {
	return f.filterPosts(func(p models.Post) bool { return p.UserID == userID })
}

func (f *FileStore) filterPosts(keep func(models.Post) bool) ([]models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return nil, err
	}
	out := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	users, err := f.loadUsers()
	if err == nil {
		userMap := make(map[uint]models.User, len(users))
		for _, u := range users {
			userMap[u.ID] = u
		}
		for i := range out {
			if u, ok := userMap[out[i].UserID]; ok {
				author := u
				out[i].Author = &author
			}
		}
	}
	return out, nil
}

func (f *FileStore) UpdatePost(id uint, upd PostUpdate) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range posts {
		if posts[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}
	if upd.Title != nil {
		posts[idx].Title = *upd.Title
	}
	if upd.Content != nil {
		posts[idx].Content = *upd.Content
	}
	if upd.Image != nil {
		posts[idx].Image = *upd.Image
	}
	posts[idx].UpdatedAt = time.Now()
	if err := f.save(postsFile, posts); err != nil {
		return nil, err
	}
	p := posts[idx]
	f.attachAuthor(&p)
	return &p, nil
}

func (f *FileStore) DeletePost(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return err
	}
	kept := posts[:0]
	found := false
	for _, p := range posts {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return ErrNotFound
	}

	// Children go first: if the reply save fails we have not yet dropped
	// the parent, so no orphans are left behind.
	replies, err := f.loadReplies()
	if err != nil {
		return err
	}
	keptReplies := replies[:0]
	for _, r := range replies {
		if r.PostID != id {
			keptReplies = append(keptReplies, r)
		}
	}
	if len(keptReplies) != len(replies) {
		if err := f.save(repliesFile, keptReplies); err != nil {
			return err
		}
	}
	return f.save(postsFile, kept)
}

func (f *FileStore) CreateReply(r *models.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return err
	}
	idx := -1
	for i := range posts {
		if posts[i].ID == r.PostID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	replies, err := f.loadReplies()
	if err != nil {
		return err
	}
	now := time.Now()
	r.ID = f.nextReplyID
	r.CreatedAt = now
	r.UpdatedAt = now
	replies = append(replies, stripReplyAuthor(*r))
	if err := f.save(repliesFile, replies); err != nil {
		return err
	}
	f.nextReplyID++

	posts[idx].Replies++
	posts[idx].UpdatedAt = now
	if err := f.save(postsFile, posts); err != nil {
		// The pair of snapshots must agree: without the counter write the
		// appended reply is withdrawn. The consumed id stays burned, which
		// monotonic allocation permits.
		if rerr := f.save(repliesFile, replies[:len(replies)-1]); rerr != nil && utils.Sugar != nil {
			utils.Sugar.Errorw("reply rollback failed", "reply_id", r.ID, "error", rerr)
		}
		return err
	}
	return nil
}

func (f *FileStore) ReplyByID(id uint) (*models.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	replies, err := f.loadReplies()
	if err != nil {
		return nil, err
	}
	for i := range replies {
		if replies[i].ID == id {
			r := replies[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) RepliesByPost(postID uint) ([]models.Reply, error) {
	return f.filterReplies(func(r models.Reply) bool { return r.PostID == postID })
}

func (f *FileStore) RepliesByUser(userID uint) ([]models.Reply, error) {
	return f.filterReplies(func(r models.Reply) bool { return r.UserID == userID })
}

func (f *FileStore) filterReplies(keep func(models.Reply) bool) ([]models.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	replies, err := f.loadReplies()
	if err != nil {
		return nil, err
	}
	out := make([]models.Reply, 0, len(replies))
	for _, r := range replies {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	users, err := f.loadUsers()
	if err == nil {
		userMap := make(map[uint]models.User, len(users))
		for _, u := range users {
			userMap[u.ID] = u
		}
		for i := range out {
			if u, ok := userMap[out[i].UserID]; ok {
				author := u
				out[i].Author = &author
			}
		}
	}
	return out, nil
}

func (f *FileStore) UpdateReply(id uint, content string) (*models.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	replies, err := f.loadReplies()
	if err != nil {
		return nil, err
	}
	for i := range replies {
		if replies[i].ID == id {
			replies[i].Content = content
			replies[i].UpdatedAt = time.Now()
			if err := f.save(repliesFile, replies); err != nil {
				return nil, err
			}
			r := replies[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) DeleteReply(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	replies, err := f.loadReplies()
	if err != nil {
		return err
	}
	var deleted *models.Reply
	kept := replies[:0]
	for _, r := range replies {
		if r.ID == id {
			removed := r
			deleted = &removed
			continue
		}
		kept = append(kept, r)
	}
	if deleted == nil {
		return ErrNotFound
	}
	if err := f.save(repliesFile, kept); err != nil {
		return err
	}

	posts, err := f.loadPosts()
	if err != nil {
		return err
	}
	for i := range posts {
		if posts[i].ID == deleted.PostID {
			if posts[i].Replies > 0 {
				posts[i].Replies--
			} else if utils.Sugar != nil {
				// A decrement below zero means the counter already drifted.
				utils.Sugar.Warnw("reply counter underflow", "post_id", posts[i].ID)
			}
			posts[i].UpdatedAt = time.Now()
			return f.save(postsFile, posts)
		}
	}
	return nil
}

func (f *FileStore) ToggleLike(postID, userID uint) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return false, 0, err
	}
	for i := range posts {
		if posts[i].ID != postID {
			continue
		}
		members := posts[i].LikedBy[:0]
		liked := true
		for _, uid := range posts[i].LikedBy {
			if uid == userID {
				liked = false
				continue
			}
			members = append(members, uid)
		}
		if liked {
			members = append(members, userID)
		}
		posts[i].LikedBy = members
		// The count is always recomputed from the set, never drifted
		// independently.
		posts[i].Likes = len(members)
		if err := f.save(postsFile, posts); err != nil {
			return false, 0, err
		}
		return liked, posts[i].Likes, nil
	}
	return false, 0, ErrNotFound
}

func (f *FileStore) IncrementViews(postID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	posts, err := f.loadPosts()
	if err != nil {
		return err
	}
	for i := range posts {
		if posts[i].ID == postID {
			posts[i].Views++
			return f.save(postsFile, posts)
		}
	}
	return ErrNotFound
}

func (f *FileStore) Stats() (*BoardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadUsers()
	if err != nil {
		return nil, err
	}
	posts, err := f.loadPosts()
	if err != nil {
		return nil, err
	}
	replies, err := f.loadReplies()
	if err != nil {
		return nil, err
	}
	stats := &BoardStats{
		Users:   int64(len(users)),
		Posts:   int64(len(posts)),
		Replies: int64(len(replies)),
	}
	for _, p := range posts {
		stats.Views += int64(p.Views)
	}
	return stats, nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) attachAuthor(p *models.Post) {
	users, err := f.loadUsers()
	if err != nil {
		return
	}
	for i := range users {
		if users[i].ID == p.UserID {
			author := users[i]
			p.Author = &author
			return
		}
	}
}

func (f *FileStore) loadUsers() ([]models.User, error) {
	var users []models.User
	if err := f.load(usersFile, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (f *FileStore) loadPosts() ([]models.Post, error) {
	var posts []models.Post
	if err := f.load(postsFile, &posts); err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].LikedBy == nil {
			posts[i].LikedBy = []uint{}
		}
	}
	return posts, nil
}

func (f *FileStore) loadReplies() ([]models.Reply, error) {
	var replies []models.Reply
	if err := f.load(repliesFile, &replies); err != nil {
		return nil, err
	}
	return replies, nil
}

func (f *FileStore) load(name string, out any) error {
	b, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return storageErr("read "+name, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return storageErr("decode "+name, err)
	}
	return nil
}

// save rewrites a snapshot through a temp file and rename, so readers never
// observe a half-written array.
func (f *FileStore) save(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return storageErr("encode "+name, err)
	}
	path := filepath.Join(f.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return storageErr("write "+name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return storageErr("write "+name, err)
	}
	return nil
}

// Author pointers are presentation-only and must not leak into snapshots.
func stripAuthor(p models.Post) models.Post {
	p.Author = nil
	return p
}

func stripReplyAuthor(r models.Reply) models.Reply {
	r.Author = nil
	return r
}
