package scrum

import (
	"fmt"
	"sort"
	"strings"

	"sprintboard/internal/models"
)

// Capability names one permission the engine checks before acting.
type Capability string

const (
	CapManageSprints  Capability = "sprints:manage"
	CapPlanSprints    Capability = "sprints:plan"
	CapViewBoard      Capability = "board:view"
	CapMoveStories    Capability = "board:move"
	CapCreateStories  Capability = "stories:create"
	CapGroomBacklog   Capability = "stories:groom"
	CapDeleteStories  Capability = "stories:delete"
	CapManageProjects Capability = "projects:manage"
	CapManageUsers    Capability = "users:manage"
)

var allCapabilities = []Capability{
	CapManageSprints, CapPlanSprints, CapViewBoard, CapMoveStories,
	CapCreateStories, CapGroomBacklog, CapDeleteStories,
	CapManageProjects, CapManageUsers,
}

// memberCapabilities are granted to every authenticated user.
var memberCapabilities = []Capability{CapViewBoard, CapMoveStories, CapCreateStories}

var roleCapabilities = map[models.Role][]Capability{
	models.RoleAdmin:        allCapabilities,
	models.RoleScrumMaster:  {CapManageSprints, CapPlanSprints, CapGroomBacklog},
	models.RoleProductOwner: {CapPlanSprints, CapGroomBacklog, CapDeleteStories},
	models.RoleDeveloper:    nil,
}

// Capabilities is the permission set a caller passes into every engine operation.
type Capabilities struct {
	set map[Capability]struct{}
}

// NewCapabilities builds a set from the given capabilities.
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return Capabilities{set: set}
}

// ForRole returns the capabilities of an authenticated user holding role.
func ForRole(role models.Role) Capabilities {
	caps := append([]Capability{}, memberCapabilities...)
	caps = append(caps, roleCapabilities[role]...)
	return NewCapabilities(caps...)
}

// SystemCapabilities grants everything. Used by trusted local tooling such as the CLI.
func SystemCapabilities() Capabilities {
	return NewCapabilities(allCapabilities...)
}

// Has reports whether c is in the set.
func (c Capabilities) Has(capability Capability) bool {
	_, ok := c.set[capability]
	return ok
}

// Require returns models.ErrForbidden when the capability is missing.
func (c Capabilities) Require(capability Capability) error {
	if c.Has(capability) {
		return nil
	}
	return fmt.Errorf("%w: missing capability %s", models.ErrForbidden, capability)
}

func (c Capabilities) String() string {
	names := make([]string, 0, len(c.set))
	for k := range c.set {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
