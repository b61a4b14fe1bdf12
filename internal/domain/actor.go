package domain

import "strings"

const RoleAdmin = "ADMIN"

// Actor is the caller identity passed explicitly into every core call.
type Actor struct {
	ID    string
	Roles []string
}

func NewActor(id string, roles ...string) Actor {
	return Actor{ID: id, Roles: roles}
}

func (a Actor) IsAdmin() bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, RoleAdmin) {
			return true
		}
	}
	return false
}

// SystemActor is used by scheduled jobs.
var SystemActor = Actor{ID: "system", Roles: []string{RoleAdmin}}
