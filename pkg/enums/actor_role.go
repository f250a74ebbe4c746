package enums

import (
	"fmt"
	"strings"
)

// ActorRole is the role the identity layer asserts for a caller.
type ActorRole string

const (
	ActorRoleBuyer  ActorRole = "buyer"
	ActorRoleVendor ActorRole = "vendor"
	ActorRoleAdmin  ActorRole = "admin"
	// ActorRoleSystem is used by the payment confirmation boundary and workers.
	ActorRoleSystem ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleBuyer,
	ActorRoleVendor,
	ActorRoleAdmin,
	ActorRoleSystem,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

func ParseActorRole(value string) (ActorRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validActorRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
