package domain

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is an already-authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanActFor reports whether p may act on reservations owned by owner.
func (p Principal) CanActFor(owner string) bool {
	return p.ID == owner || p.IsAdmin()
}
