package permissions

import (
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Permission is one menu, directory or button row.
type Permission struct {
	rbac.Node
	CreatedAt time.Time `json:"createdAt"`
}

// ListFilter narrows permission listings.
type ListFilter struct {
	shared.ListQuery
	Type rbac.PermissionType
}

// CreateInput is the payload for a new node.
type CreateInput struct {
	PID        *int64              `json:"pid" validate:"omitempty,gte=0"`
	Name       string              `json:"name" validate:"required,max=50"`
	Type       rbac.PermissionType `json:"type" validate:"required,oneof=DIRECTORY MENU BUTTON"`
	Permission string              `json:"permission" validate:"max=50"`
	Path       string              `json:"path" validate:"max=50"`
	Icon       string              `json:"icon" validate:"max=50"`
	Component  string              `json:"component" validate:"max=100"`
	Redirect   string              `json:"redirect" validate:"max=50"`
	Sort       int                 `json:"sort" validate:"gte=0,lte=9999"`
	Hidden     bool                `json:"hidden"`
	Cache      bool                `json:"cache"`
	Props      bool                `json:"props"`
	Disabled   bool                `json:"disabled"`
}

// UpdateInput changes only the fields that are set. A PID of 0 moves the node
// to the root.
type UpdateInput struct {
	PID        *int64               `json:"pid" validate:"omitempty,gte=0"`
	Name       *string              `json:"name" validate:"omitempty,max=50"`
	Type       *rbac.PermissionType `json:"type" validate:"omitempty,oneof=DIRECTORY MENU BUTTON"`
	Permission *string              `json:"permission" validate:"omitempty,max=50"`
	Path       *string              `json:"path" validate:"omitempty,max=50"`
	Icon       *string              `json:"icon" validate:"omitempty,max=50"`
	Component  *string              `json:"component" validate:"omitempty,max=100"`
	Redirect   *string              `json:"redirect" validate:"omitempty,max=50"`
	Sort       *int                 `json:"sort" validate:"omitempty,gte=0,lte=9999"`
	Hidden     *bool                `json:"hidden"`
	Cache      *bool                `json:"cache"`
	Props      *bool                `json:"props"`
	Disabled   *bool                `json:"disabled"`
}

func (in CreateInput) node() rbac.Node {
	n := rbac.Node{
		Name:       in.Name,
		Type:       in.Type,
		Permission: in.Permission,
		Path:       in.Path,
		Icon:       in.Icon,
		Component:  in.Component,
		Redirect:   in.Redirect,
		Sort:       in.Sort,
		Hidden:     in.Hidden,
		Cache:      in.Cache,
		Props:      in.Props,
		Disabled:   in.Disabled,
	}
	if in.PID != nil && *in.PID != 0 {
		pid := *in.PID
		n.PID = &pid
	}
	return n
}

// apply returns n with the set fields of in applied.
func (in UpdateInput) apply(n rbac.Node) rbac.Node {
	if in.PID != nil {
		if *in.PID == 0 {
			n.PID = nil
		} else {
			pid := *in.PID
			n.PID = &pid
		}
	}
	setIf(&n.Name, in.Name)
	setIf(&n.Type, in.Type)
	setIf(&n.Permission, in.Permission)
	setIf(&n.Path, in.Path)
	setIf(&n.Icon, in.Icon)
	setIf(&n.Component, in.Component)
	setIf(&n.Redirect, in.Redirect)
	setIf(&n.Sort, in.Sort)
	setIf(&n.Hidden, in.Hidden)
	setIf(&n.Cache, in.Cache)
	setIf(&n.Props, in.Props)
	setIf(&n.Disabled, in.Disabled)
	n.Children = nil
	return n
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
