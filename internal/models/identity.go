package models

// Role is the kind of principal behind a session.
type Role string

const (
	RoleCustomer        Role = "customer"         // Places orders and follows their own deliveries
	RoleDeliveryPartner Role = "delivery_partner" // Picks up and delivers orders assigned to them
	RoleAdmin           Role = "admin"            // Can observe and update any order
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleDeliveryPartner, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated principal behind a session token.
type Identity struct {
	UserID    string
	Role      Role
	SessionID string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Order statuses, in the order a delivery normally moves through them.
const (
	OrderStatusAvailable = "available"
	OrderStatusConfirmed = "confirmed"
	OrderStatusArriving  = "arriving"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)
