package access

import "gallery-app/internal/domain/users"

// Caller is the explicit session context every operation receives.
// The zero value is an anonymous caller.
type Caller struct {
	UserID    string
	Email     string
	Role      users.Role
	SessionID string
}

// SystemUserID identifies automated settlement (payment webhooks).
const SystemUserID = "system"

func Anonymous() Caller { return Caller{} }

// System is the caller used for automated settlement; it holds admin rights.
func System() Caller { return Caller{UserID: SystemUserID, Role: users.RoleAdmin} }

func (c Caller) IsAnonymous() bool { return c.UserID == "" }

func (c Caller) IsAdmin() bool { return !c.IsAnonymous() && c.Role == users.RoleAdmin }

func (c Caller) subject() string {
	switch {
	case c.IsAnonymous():
		return "anonymous"
	case c.IsAdmin():
		return "admin"
	default:
		return "user"
	}
}

type Action string

const (
	ActionReadArtwork     Action = "artwork:read"
	ActionManageCatalog   Action = "artwork:manage"
	ActionCreateOrder     Action = "order:create"
	ActionReadOrder       Action = "order:read"
	ActionListOwnOrders   Action = "order:list_own"
	ActionCancelOrder     Action = "order:cancel"
	ActionPayOrder        Action = "order:pay"
	ActionListOrders      Action = "order:list_all"
	ActionTransitionOrder Action = "order:transition"
	ActionManageUsers     Action = "user:manage"
	ActionViewDashboard   Action = "dashboard:view"
)

// Actions lists every action the gate knows about.
var Actions = []Action{
	ActionReadArtwork,
	ActionManageCatalog,
	ActionCreateOrder,
	ActionReadOrder,
	ActionListOwnOrders,
	ActionCancelOrder,
	ActionPayOrder,
	ActionListOrders,
	ActionTransitionOrder,
	ActionManageUsers,
	ActionViewDashboard,
}

// Resource describes the target of an action. OwnerID is the buyer for
// orders (or the user being listed for); Public marks artworks anyone may see.
type Resource struct {
	OwnerID string
	Public  bool
}
