package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker gates playback control commands behind a DJ role.
type PermissionChecker struct {
	djRoleID string
}

// NewPermissionChecker creates a PermissionChecker for the given role ID.
func NewPermissionChecker(djRoleID string) *PermissionChecker {
	return &PermissionChecker{djRoleID: djRoleID}
}

// IsDJ reports whether the interaction author may control playback.
// An empty role ID allows everyone. Interactions without a Member (direct
// messages) are never allowed when a role is configured.
func (p *PermissionChecker) IsDJ(i *discordgo.InteractionCreate) bool {
	if p.djRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	return slices.Contains(i.Member.Roles, p.djRoleID)
}
