package dto

import "github.com/prashant-hada-dev/sales-agent-proto/internal/models"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type UserListResponse struct {
	Users  []*models.User `json:"users"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// OutcomeRequest records how a case ended. IsWin is required.
type OutcomeRequest struct {
	IsWin  *bool  `json:"is_win"`
	Reason string `json:"reason"`
}
