// README: Actor model; maps verified token claims to a (subject, role) pair.
package identity

import (
	"errors"

	"drivemecrazy/internal/infra"
	"drivemecrazy/internal/types"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// Actor is a resolved caller: a stable subject identifier plus a role claim.
type Actor struct {
	SubjectID types.ID
	Role      Role
}

var ErrNoRole = errors.New("token has no usable role claim")

// Resolve maps a verified token to an Actor. The role comes from the "role"
// custom claim; tokens without a recognised role are rejected.
func Resolve(tok *infra.Token) (Actor, error) {
	role, _ := tok.Claims["role"].(string)
	switch Role(role) {
	case RoleRider, RoleDriver:
		return Actor{SubjectID: types.ID(tok.UID), Role: Role(role)}, nil
	default:
		return Actor{}, ErrNoRole
	}
}
