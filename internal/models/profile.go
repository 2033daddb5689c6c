package models

import (
	"fmt"
	"strings"
	"time"
)

type Profile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Username  *string    `json:"username,omitempty"`
	Bio       *string    `json:"bio,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Gender    *string    `json:"gender,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (p Profile) Clone() *Profile {
	out := p
	out.Username = cloneString(p.Username)
	out.Bio = cloneString(p.Bio)
	out.Phone = cloneString(p.Phone)
	out.Gender = cloneString(p.Gender)
	out.AvatarURL = cloneString(p.AvatarURL)
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ProfileUpdate is a partial update of a profile. Only these fields can be
// changed by the owner; id and email are fixed at registration.
type ProfileUpdate struct {
	Name      *string `json:"name,omitempty"`
	Username  *string `json:"username,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Gender    *string `json:"gender,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// ProfileFields lists the columns a ProfileUpdate may touch, in column order.
var ProfileFields = []string{"name", "username", "bio", "phone", "gender", "avatar_url"}

// ProfileUpdateFromMap keeps the allow-listed keys of a loosely typed update
// and drops everything else. Nil values are treated as absent.
func ProfileUpdateFromMap(params map[string]any) ProfileUpdate {
	var u ProfileUpdate
	for _, field := range ProfileFields {
		raw, ok := params[field]
		if !ok || raw == nil {
			continue
		}
		var value string
		switch v := raw.(type) {
		case string:
			value = v
		case *string:
			if v == nil {
				continue
			}
			value = *v
		default:
			value = fmt.Sprint(v)
		}
		u.set(field, value)
	}
	return u
}

func (u *ProfileUpdate) set(field, value string) {
	v := value
	switch field {
	case "name":
		u.Name = &v
	case "username":
		u.Username = &v
	case "bio":
		u.Bio = &v
	case "phone":
		u.Phone = &v
	case "gender":
		u.Gender = &v
	case "avatar_url":
		u.AvatarURL = &v
	}
}

// Fields returns the set columns keyed by column name.
func (u ProfileUpdate) Fields() map[string]string {
	out := make(map[string]string, len(ProfileFields))
	for field, v := range map[string]*string{
		"name":       u.Name,
		"username":   u.Username,
		"bio":        u.Bio,
		"phone":      u.Phone,
		"gender":     u.Gender,
		"avatar_url": u.AvatarURL,
	} {
		if v != nil {
			out[field] = *v
		}
	}
	return out
}

func (u ProfileUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

// EmailLocalPart returns the part of an address before the first "@".
func EmailLocalPart(email string) string {
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}
