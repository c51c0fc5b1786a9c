package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may change what the bot plays.
type PermissionChecker struct {
	roleID string
}

// NewPermissionChecker returns a checker requiring roleID. An empty roleID
// lets everyone control playback.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// CanControl reports whether member may select stations or make the bot
// leave. A nil member is only allowed when no role is configured.
func (p *PermissionChecker) CanControl(member *discordgo.Member) bool {
	if p == nil || p.roleID == "" {
		return true
	}
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, p.roleID)
}
