package core

// Sharing levels of scales, items, templates and email templates.
const (
	SharingPrivate = "private"
	SharingVisible = "visible"
	SharingShared  = "shared"
	SharingPublic  = "public"
)

var Sharings = []string{SharingPrivate, SharingVisible, SharingShared, SharingPublic}

// IsShared reports whether an object with this sharing level is usable by non-owners.
func IsShared(sharing string) bool {
	return sharing == SharingShared || sharing == SharingPublic || sharing == SharingVisible
}
