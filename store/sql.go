package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/goboard/models"
	"github.com/cppla/goboard/utils"
)

// SQLStore is the relational backend. Like and reply counts are never
// stored: every read derives them fresh from post_likes and replies rows,
// so drift is impossible. Multi-statement mutations run inside a
// transaction with rollback on failure.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an initialized gorm connection.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// postRow is the scan target for the aggregated post listing query.
type postRow struct {
	models.Post
	LikeTotal  int
	ReplyTotal int
}

func (s *SQLStore) CreateUser(u *models.User) error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
		return storageErr("create user", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}
	if err := s.db.Create(u).Error; err != nil {
		if isDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return storageErr("create user", err)
	}
	return nil
}

func (s *SQLStore) UserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user", err)
	}
	return &user, nil
}

func (s *SQLStore) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, storageErr("list users", err)
	}
	return users, nil
}

func (s *SQLStore) UserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user by email", err)
	}
	return &user, nil
}

func (s *SQLStore) UserByProvider(provider, providerID string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("provider = ? AND provider_id = ?", provider, providerID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get user by provider", err)
	}
	return &user, nil
}

func (s *SQLStore) UpdateUser(id uint, upd UserUpdate) (*models.User, error) {
	var user models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return err
		}
		if upd.Email != nil && *upd.Email != user.Email {
			var count int64
			if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", *upd.Email, id).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrEmailTaken
			}
			user.Email = *upd.Email
		}
		if upd.Username != nil {
			user.Username = *upd.Username
		}
		if upd.ProfileImage != nil {
			user.ProfileImage = *upd.ProfileImage
		}
		if upd.PasswordHash != nil {
			user.PasswordHash = *upd.PasswordHash
		}
		return tx.Save(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, storageErr("update user", err)
	}
	return &user, nil
}

func (s *SQLStore) DeleteUser(id uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storageErr("delete user", err)
	}
	return nil
}

func (s *SQLStore) CreatePost(p *models.Post) error {
	if err := s.db.Create(p).Error; err != nil {
		return storageErr("create post", err)
	}
	if p.LikedBy == nil {
		p.LikedBy = []uint{}
	}
	return nil
}

func (s *SQLStore) PostByID(id uint) (*models.Post, error) {
	var post models.Post
	if err := s.db.First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get post", err)
	}
	if err := s.fillCounters(&post); err != nil {
		return nil, err
	}
	s.attachPostAuthors([]*models.Post{&post})
	return &post, nil
}

func (s *SQLStore) ListPosts() ([]models.Post, error) {
	return s.listPosts(s.db.Model(&models.Post{}))
}

func (s *SQLStore) PostsByUser(userID uint) ([]models.Post, error) {
	return s.listPosts(s.db.Model(&models.Post{}).Where("posts.user_id = ?", userID))
}

// listPosts runs the aggregate listing query: counts come from COUNT(DISTINCT)
// over the joined like and reply rows, grouped per post.
func (s *SQLStore) listPosts(q *gorm.DB) ([]models.Post, error) {
	var rows []postRow
	err := q.
		Select("posts.*, COUNT(DISTINCT post_likes.user_id) AS like_total, COUNT(DISTINCT replies.id) AS reply_total").
		Joins("LEFT JOIN post_likes ON post_likes.post_id = posts.id").
		Joins("LEFT JOIN replies ON replies.post_id = posts.id").
		Group("posts.id").
		Order("posts.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("list posts", err)
	}

	posts := make([]models.Post, 0, len(rows))
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		p := row.Post
		p.Likes = row.LikeTotal
		p.Replies = row.ReplyTotal
		p.LikedBy = []uint{}
		posts = append(posts, p)
		ids = append(ids, p.ID)
	}
	if len(ids) > 0 {
		var likeRows []models.PostLike
		if err := s.db.Where("post_id IN ?", ids).Find(&likeRows).Error; err != nil {
			return nil, storageErr("list post likes", err)
		}
		byPost := make(map[uint][]uint, len(ids))
		for _, lr := range likeRows {
			byPost[lr.PostID] = append(byPost[lr.PostID], lr.UserID)
		}
		refs := make([]*models.Post, len(posts))
		for i := range posts {
			if members, ok := byPost[posts[i].ID]; ok {
				posts[i].LikedBy = members
			}
			refs[i] = &posts[i]
		}
		s.attachPostAuthors(refs)
	}
	return posts, nil
}

// fillCounters derives the effective counters for a single post.
func (s *SQLStore) fillCounters(post *models.Post) error {
	var likedBy []uint
	if err := s.db.Model(&models.PostLike{}).Where("post_id = ?", post.ID).Pluck("user_id", &likedBy).Error; err != nil {
		return storageErr("count likes", err)
	}
	var replies int64
	if err := s.db.Model(&models.Reply{}).Where("post_id = ?", post.ID).Count(&replies).Error; err != nil {
		return storageErr("count replies", err)
	}
	if likedBy == nil {
		likedBy = []uint{}
	}
	post.LikedBy = likedBy
	post.Likes = len(likedBy)
	post.Replies = int(replies)
	return nil
}

// attachPostAuthors loads authors in one batch, mirroring how comment
// authors are resolved. Missing users are left nil rather than failing the
// read.
func (s *SQLStore) attachPostAuthors(posts []*models.Post) {
	if len(posts) == 0 {
		return
	}
	var userIDs []uint
	for _, p := range posts {
		userIDs = append(userIDs, p.UserID)
	}
	userIDs = utils.UniqueUint(userIDs)

	var users []models.User
	if err := s.db.Find(&users, userIDs).Error; err != nil {
		return
	}
	userMap := make(map[uint]models.User, len(users))
	for _, u := range users {
		userMap[u.ID] = u
	}
	for _, p := range posts {
		if u, ok := userMap[p.UserID]; ok {
			author := u
			p.Author = &author
		}
	}
}

func (s *SQLStore) UpdatePost(id uint, upd PostUpdate) (*models.Post, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, id).Error; err != nil {
			return err
		}
		if upd.Title != nil {
			post.Title = *upd.Title
		}
		if upd.Content != nil {
			post.Content = *upd.Content
		}
		if upd.Image != nil {
			post.Image = *upd.Image
		}
		return tx.Save(&post).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("update post", err)
	}
	return s.PostByID(id)
}

func (s *SQLStore) DeletePost(id uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, id).Error; err != nil {
			return err
		}
		// Children first so a backend without FK cascades never sees orphans.
		if err := tx.Where("post_id = ?", id).Delete(&models.Reply{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storageErr("delete post", err)
	}
	return nil
}

func (s *SQLStore) CreateReply(r *models.Reply) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		q := tx
		// On MySQL the parent row must be locked for the duration of the
		// insert; a plain existence check leaves a window where a
		// concurrent post delete commits and the reply lands orphaned.
		// SQLite serializes writers at the database level and rejects
		// FOR UPDATE syntax, so the lock is dialect-gated.
		if tx.Dialector.Name() == "mysql" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var post models.Post
		if err := q.First(&post, r.PostID).Error; err != nil {
			return err
		}
		return tx.Create(r).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || isForeignKeyError(err) {
			return ErrNotFound
		}
		return storageErr("create reply", err)
	}
	return nil
}

func (s *SQLStore) ReplyByID(id uint) (*models.Reply, error) {
	var reply models.Reply
	if err := s.db.First(&reply, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get reply", err)
	}
	return &reply, nil
}

func (s *SQLStore) RepliesByPost(postID uint) ([]models.Reply, error) {
	var replies []models.Reply
	if err := s.db.Where("post_id = ?", postID).Order("created_at ASC").Find(&replies).Error; err != nil {
		return nil, storageErr("list replies", err)
	}
	s.attachReplyAuthors(replies)
	return replies, nil
}

func (s *SQLStore) RepliesByUser(userID uint) ([]models.Reply, error) {
	var replies []models.Reply
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&replies).Error; err != nil {
		return nil, storageErr("list replies by user", err)
	}
	return replies, nil
}

func (s *SQLStore) attachReplyAuthors(replies []models.Reply) {
	if len(replies) == 0 {
		return
	}
	var userIDs []uint
	for _, r := range replies {
		userIDs = append(userIDs, r.UserID)
	}
	userIDs = utils.UniqueUint(userIDs)

	var users []models.User
	if err := s.db.Find(&users, userIDs).Error; err != nil {
		return
	}
	userMap := make(map[uint]models.User, len(users))
	for _, u := range users {
		userMap[u.ID] = u
	}
	for i := range replies {
		if u, ok := userMap[replies[i].UserID]; ok {
			author := u
			replies[i].Author = &author
		}
	}
}

func (s *SQLStore) UpdateReply(id uint, content string) (*models.Reply, error) {
	var reply models.Reply
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&reply, id).Error; err != nil {
			return err
		}
		reply.Content = content
		return tx.Save(&reply).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageErr("update reply", err)
	}
	return &reply, nil
}

func (s *SQLStore) DeleteReply(id uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var reply models.Reply
		if err := tx.First(&reply, id).Error; err != nil {
			return err
		}
		return tx.Delete(&reply).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return storageErr("delete reply", err)
	}
	return nil
}

func (s *SQLStore) ToggleLike(postID, userID uint) (bool, int, error) {
	var liked bool
	var likes int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}

		var existing models.PostLike
		err := tx.Where("post_id = ? AND user_id = ?", postID, userID).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{}).Error; err != nil {
				return err
			}
			liked = false
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.PostLike{PostID: postID, UserID: userID}).Error; err != nil {
				// A concurrent identical toggle can insert between the
				// miss and the create; the composite PK reports it and
				// the membership is simply already present.
				if !isDuplicateKeyError(err) {
					return err
				}
			}
			liked = true
		default:
			return err
		}
		return tx.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&likes).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, 0, ErrNotFound
		}
		return false, 0, storageErr("toggle like", err)
	}
	return liked, int(likes), nil
}

func (s *SQLStore) IncrementViews(postID uint) error {
	res := s.db.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if res.Error != nil {
		return storageErr("increment views", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Stats() (*BoardStats, error) {
	var stats BoardStats
	if err := s.db.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return nil, storageErr("stats", err)
	}
	if err := s.db.Model(&models.Post{}).Count(&stats.Posts).Error; err != nil {
		return nil, storageErr("stats", err)
	}
	if err := s.db.Model(&models.Reply{}).Count(&stats.Replies).Error; err != nil {
		return nil, storageErr("stats", err)
	}
	if err := s.db.Model(&models.Post{}).Select("COALESCE(SUM(views),0)").Scan(&stats.Views).Error; err != nil {
		return nil, storageErr("stats", err)
	}
	return &stats, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isDuplicateKeyError recognizes unique-constraint violations across MySQL
// and SQLite without importing driver-specific error types.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// isForeignKeyError recognizes referential-integrity violations across MySQL
// and SQLite message shapes.
func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "foreign key constraint") || strings.Contains(msg, "FOREIGN KEY constraint failed")
}
