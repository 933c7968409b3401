package api

import (
	"time"

	"forum/cmd/identity"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	CreatedOn    time.Time `json:"created_on"`
	LastActivity time.Time `json:"last_activity"`
}

type voteRequest struct {
	PostID      int64 `json:"id"`
	IsUpvote    bool  `json:"is_upvote"`
	AllowToggle bool  `json:"allow_toggle"`
}

type voteResponse struct {
	PostID int64 `json:"post_id"`
	Votes  int64 `json:"votes"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         string(u.Role),
		CreatedOn:    u.CreatedOn,
		LastActivity: u.LastActivity,
	}
}
