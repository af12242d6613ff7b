package roles

import "time"

// Role represents a role for management.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Detail is a role with the ids of the permissions it grants.
type Detail struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Disabled    bool    `json:"disabled"`
	Permissions []int64 `json:"permissions"`
}

// Option is the id/name pair used by role pickers.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateInput is the payload for a new role.
type CreateInput struct {
	Name        string  `json:"name" validate:"required,max=50,rolename"`
	Description string  `json:"description" validate:"max=150"`
	Disabled    bool    `json:"disabled"`
	Permissions []int64 `json:"permissions" validate:"omitempty,dive,gt=0"`
}

// UpdateInput changes only the fields that are set. A non-nil Permissions
// replaces the whole grant set.
type UpdateInput struct {
	Name        *string  `json:"name" validate:"omitempty,max=50,rolename"`
	Description *string  `json:"description" validate:"omitempty,max=150"`
	Disabled    *bool    `json:"disabled"`
	Permissions *[]int64 `json:"permissions" validate:"omitempty,dive,gt=0"`
}
