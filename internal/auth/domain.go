package auth

// LoginInput carries credentials posted to /auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SessionInfo describes the caller's session.
type SessionInfo struct {
	Authenticated bool   `json:"authenticated"`
	UserID        int64  `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	IsStaff       bool   `json:"is_staff"`
	CSRFToken     string `json:"csrf_token"`
}
