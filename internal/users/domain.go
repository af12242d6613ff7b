package users

import "time"

// User represents a user account for management listings.
type User struct {
	ID        string    `json:"id"`
	UserName  string    `json:"userName"`
	NickName  string    `json:"nickName"`
	Avatar    string    `json:"avatar"`
	Disabled  bool      `json:"disabled"`
	RoleNames []string  `json:"roleNames"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Detail is a user with profile fields and assigned role ids.
type Detail struct {
	ID          string     `json:"id"`
	UserName    string     `json:"userName"`
	Disabled    bool       `json:"disabled"`
	NickName    string     `json:"nickName"`
	Avatar      string     `json:"avatar"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Gender      *string    `json:"gender"`
	Birthday    *time.Time `json:"birthday"`
	Description string     `json:"description"`
	Roles       []int64    `json:"roles"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Identity is the minimal projection used by batch checks.
type Identity struct {
	ID       string
	UserName string
}

// CreateInput is the payload for a new account. The password is always the
// configured default.
type CreateInput struct {
	UserName string  `json:"userName" validate:"required,username"`
	NickName string  `json:"nickName" validate:"omitempty,nickname"`
	Avatar   string  `json:"avatar" validate:"omitempty,url,max=255"`
	Disabled bool    `json:"disabled"`
	Roles    []int64 `json:"roles" validate:"omitempty,dive,gt=0"`
}

// UpdateInput changes only the fields that are set. A non-nil Roles replaces
// every assignment.
type UpdateInput struct {
	NickName *string  `json:"nickName" validate:"omitempty,nickname"`
	Avatar   *string  `json:"avatar" validate:"omitempty,url,max=255"`
	Disabled *bool    `json:"disabled"`
	Roles    *[]int64 `json:"roles" validate:"omitempty,dive,gt=0"`
}

// ProfileInput is the self-service profile update.
type ProfileInput struct {
	NickName    *string    `json:"nickName" validate:"omitempty,nickname"`
	Avatar      *string    `json:"avatar" validate:"omitempty,url,max=255"`
	Email       *string    `json:"email" validate:"omitempty,email,max=50"`
	Phone       *string    `json:"phone" validate:"omitempty,numeric,min=6,max=20"`
	Gender      *string    `json:"gender" validate:"omitempty,oneof=MA FE OT"`
	Birthday    *time.Time `json:"birthday"`
	Description *string    `json:"description" validate:"omitempty,max=150"`
}
