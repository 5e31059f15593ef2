package domain

import "fmt"

// Conversations are not stored as entities. They are identified by a
// deterministic string key shared by storage partitioning and crypto key
// derivation.

// GroupConversation returns the storage key for a group chat.
func GroupConversation(groupID int64) string {
	return fmt.Sprintf("group:%d", groupID)
}

// PrivateConversation returns the storage key for a direct chat. The two
// user ids are ordered numerically so the key is independent of who
// initiates.
func PrivateConversation(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("private:%d-%d", a, b)
}

// PrivateParticipants returns the crypto derivation input for a direct
// chat: both user ids as decimal strings.
func PrivateParticipants(a, b int64) []string {
	return []string{fmt.Sprintf("%d", a), fmt.Sprintf("%d", b)}
}

// GroupParticipants returns the crypto derivation input for a group chat.
// The group id stands in for the member set so the key survives
// membership changes.
func GroupParticipants(groupID int64) []string {
	return []string{GroupConversation(groupID)}
}
