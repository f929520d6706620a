package auth

import "context"

type Role string

const (
	RoleOwner    Role = "owner"
	RoleLover    Role = "lover"
	RoleVet      Role = "vet"
	RoleGroomer  Role = "groomer"
	RoleSupplier Role = "supplier"
	RoleAdmin    Role = "admin"
)

// Roles a user may pick when self-registering.
var selfServiceRoles = map[Role]bool{
	RoleOwner:    true,
	RoleLover:    true,
	RoleVet:      true,
	RoleGroomer:  true,
	RoleSupplier: true,
}

func CanSelfRegister(r Role) bool { return selfServiceRoles[r] }

// Identity is the authenticated caller.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name"`
}

func (i Identity) IsAdmin() bool    { return i.Role == RoleAdmin }
func (i Identity) IsSupplier() bool { return i.Role == RoleSupplier }

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.ID != ""
}
