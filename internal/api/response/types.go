package response

import (
	"time"

	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/services/classifier"
)

// User represents a user in API responses
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	IsLazy      bool      `json:"is_lazy"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserFromModel converts a model.User to a response User
func UserFromModel(u *model.User, isLazy bool) User {
	return User{
		ID:          string(u.ID),
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsLazy:      isLazy,
		CreatedAt:   u.CreatedAt,
	}
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	User         User      `json:"user"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session and its user
func AuthResponseFromSession(s *auth.Session, u *model.User, isLazy bool) AuthResponse {
	return AuthResponse{
		User:         UserFromModel(u, isLazy),
		SessionToken: s.Token,
		ExpiresAt:    s.ExpiresAt,
	}
}

// ClassifyResponse reports how the request's user agent was classified
type ClassifyResponse struct {
	UserAgent   string `json:"user_agent"`
	Blacklisted bool   `json:"blacklisted"`
	Bot         bool   `json:"bot"`
	Mobile      bool   `json:"mobile"`
	Browser     string `json:"browser,omitempty"`
	Version     string `json:"version,omitempty"`
	OS          string `json:"os,omitempty"`
}

// ClassifyFromAgent converts a classifier.Agent
func ClassifyFromAgent(userAgent string, a classifier.Agent) ClassifyResponse {
	return ClassifyResponse{
		UserAgent:   userAgent,
		Blacklisted: a.Blacklisted,
		Bot:         a.Bot,
		Mobile:      a.Mobile,
		Browser:     a.Browser,
		Version:     a.Version,
		OS:          a.OS,
	}
}

// LazyUser is a lazy marker in admin responses
type LazyUser struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LazyUsersResponse lists lazy users
type LazyUsersResponse struct {
	OlderThan string     `json:"older_than"`
	Users     []LazyUser `json:"users"`
}

// LazyUsersFromModel converts lazy markers
func LazyUsersFromModel(olderThan time.Duration, markers []model.LazyMarker) LazyUsersResponse {
	users := make([]LazyUser, 0, len(markers))
	for _, m := range markers {
		users = append(users, LazyUser{UserID: string(m.UserID), CreatedAt: m.CreatedAt})
	}
	return LazyUsersResponse{OlderThan: olderThan.String(), Users: users}
}

// CleanupResponse reports the result of a stale lazy user cleanup
type CleanupResponse struct {
	Deleted int      `json:"deleted"`
	UserIDs []string `json:"user_ids"`
}

// HealthResponse is the response for the health endpoint
type HealthResponse struct {
	Status string `json:"status"`
}
