package handler

// --- Request types ---

type registerRequest struct {
	Email             string `json:"email"               validate:"required,max=254"`
	Password          string `json:"password"            validate:"required"`
	Nickname          string `json:"nickname"            validate:"omitempty,nickname"`
	FirstName         string `json:"first_name"          validate:"max=100"`
	LastName          string `json:"last_name"           validate:"max=100"`
	Bio               string `json:"bio"                 validate:"max=500"`
	ProfilePictureURL string `json:"profile_picture_url" validate:"omitempty,http_url"`
}

type createAccountRequest struct {
	registerRequest
	Role string `json:"role" validate:"omitempty,oneof=AUTHENTICATED MANAGER ADMIN"`
}

type updateAccountRequest struct {
	Nickname          *string `json:"nickname"            validate:"omitempty,nickname"`
	Email             *string `json:"email"               validate:"omitempty,max=254"`
	Password          *string `json:"password"            validate:"omitempty"`
	FirstName         *string `json:"first_name"          validate:"omitempty,max=100"`
	LastName          *string `json:"last_name"           validate:"omitempty,max=100"`
	Bio               *string `json:"bio"                 validate:"omitempty,max=500"`
	ProfilePictureURL *string `json:"profile_picture_url" validate:"omitempty,http_url"`
	Role              *string `json:"role"                validate:"omitempty,oneof=AUTHENTICATED MANAGER ADMIN"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type resendVerificationRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

// --- Response types ---

type accountLinks struct {
	Self string `json:"self"`
}

type accountResponse struct {
	ID                  string       `json:"id"`
	Nickname            string       `json:"nickname"`
	Email               string       `json:"email"`
	FirstName           string       `json:"first_name,omitempty"`
	LastName            string       `json:"last_name,omitempty"`
	Bio                 string       `json:"bio,omitempty"`
	ProfilePictureURL   string       `json:"profile_picture_url,omitempty"`
	Role                string       `json:"role"`
	EmailVerified       bool         `json:"email_verified"`
	IsLocked            bool         `json:"is_locked"`
	FailedLoginAttempts int          `json:"failed_login_attempts"`
	LastLoginAt         string       `json:"last_login_at,omitempty"`
	CreatedAt           string       `json:"created_at"`
	UpdatedAt           string       `json:"updated_at"`
	Links               accountLinks `json:"_links"`
}

type createAccountResponse struct {
	Account  accountResponse `json:"account"`
	Warnings []string        `json:"warnings,omitempty"`
}

type loginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	Account     accountResponse `json:"account"`
}

type listLinks struct {
	Self string `json:"self"`
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

type listAccountsResponse struct {
	Items []accountResponse `json:"items"`
	Total int64             `json:"total"`
	Skip  int               `json:"skip"`
	Limit int               `json:"limit"`
	Links listLinks         `json:"_links"`
}

type lockStatusResponse struct {
	Email    string `json:"email"`
	IsLocked bool   `json:"is_locked"`
}

type messageResponse struct {
	Message string `json:"message"`
}
