package board

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cppla/goboard/models"
	"github.com/cppla/goboard/store"
)

// OAuthIdentity is what a third-party provider tells us about a user.
type OAuthIdentity struct {
	Provider  string
	ID        string
	Username  string
	Email     string
	AvatarURL string
}

// OAuthSignIn finds the user bound to (provider, id) or creates one.
// Providers do not always disclose an email; since email uniqueness is a
// hard invariant, a stable placeholder is synthesized in that case rather
// than storing duplicates of the empty string.
func (s *Service) OAuthSignIn(id OAuthIdentity) (*models.User, error) {
	if id.Provider == "" || id.ID == "" {
		return nil, validationErr("provider identity is incomplete")
	}

	user, err := s.store.UserByProvider(id.Provider, id.ID)
	if err == nil {
		var upd store.UserUpdate
		if v := strings.TrimSpace(id.Email); v != "" && v != user.Email {
			upd.Email = &v
		}
		if id.AvatarURL != "" && id.AvatarURL != user.ProfileImage {
			upd.ProfileImage = &id.AvatarURL
		}
		if upd.Email == nil && upd.ProfileImage == nil {
			return user, nil
		}
		updated, uerr := s.store.UpdateUser(user.ID, upd)
		if uerr != nil {
			// A conflicting email from the provider is not fatal; keep
			// the stored one.
			if errors.Is(uerr, store.ErrEmailTaken) {
				return user, nil
			}
			return nil, uerr
		}
		return updated, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	email := strings.TrimSpace(id.Email)
	if email == "" {
		email = fmt.Sprintf("%s-%s@users.noreply.goboard.local", id.Provider, id.ID)
	}
	username := strings.TrimSpace(id.Username)
	if username == "" {
		username = fmt.Sprintf("%s_%s", id.Provider, id.ID)
	}

	user = &models.User{
		Email:        email,
		Username:     username,
		Provider:     id.Provider,
		ProviderID:   id.ID,
		ProfileImage: id.AvatarURL,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}
