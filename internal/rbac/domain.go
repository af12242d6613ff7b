package rbac

// PermissionType distinguishes navigable nodes from action-only leaves.
type PermissionType string

const (
	TypeDirectory PermissionType = "DIRECTORY"
	TypeMenu      PermissionType = "MENU"
	TypeButton    PermissionType = "BUTTON"
)

// Valid reports whether t is a known type.
func (t PermissionType) Valid() bool {
	switch t {
	case TypeDirectory, TypeMenu, TypeButton:
		return true
	}
	return false
}

// Node is one permission row, and a tree node once BuildTree attaches children.
type Node struct {
	ID         int64          `json:"id"`
	PID        *int64         `json:"pid"`
	Name       string         `json:"name"`
	Path       string         `json:"path,omitempty"`
	Permission string         `json:"permission,omitempty"`
	Type       PermissionType `json:"type"`
	Icon       string         `json:"icon,omitempty"`
	Component  string         `json:"component,omitempty"`
	Redirect   string         `json:"redirect,omitempty"`
	Sort       int            `json:"sort"`
	Hidden     bool           `json:"hidden"`
	Cache      bool           `json:"cache"`
	Props      bool           `json:"props"`
	Disabled   bool           `json:"disabled"`
	Children   []*Node        `json:"children,omitempty"`
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool {
	return n.PID == nil || *n.PID == 0
}

// Grant is the raw permission data loaded for one user.
type Grant struct {
	UserName    string
	RoleNames   []string
	Permissions []string
}

// Profile is the identity part of the user info payload.
type Profile struct {
	UserName  string
	NickName  string
	Avatar    string
	RoleNames []string
	Nodes     []Node
}

// UserInfo is what the client needs to render navigation and gate UI actions.
type UserInfo struct {
	UserID      string   `json:"userId"`
	UserName    string   `json:"userName"`
	Name        string   `json:"name"`
	Avatar      string   `json:"avatar"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Menus       []*Node  `json:"menus"`
}
