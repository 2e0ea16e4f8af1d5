package model

import "time"

// LinkInvitation models a row of the `link_invitations` table.  An
// invitation represents "inviter wants to link with whoever presents
// this code" and lives for a fixed 24 hours.  The code doubles as the
// primary key, so it must come from a collision-resistant random
// source; the store overwrites silently on collision.
//
// Lifecycle: created by the invitation store, consumed exactly once by
// the contact linker (used = true), deleted by the retention sweeper
// once expired regardless of the used flag.
type LinkInvitation struct {
	InvitationCode   string    // link_invitations.invitation_code
	InviterUserID    string    // link_invitations.inviter_user_id
	InviterFirstName string    // link_invitations.inviter_first_name
	CreatedAt        time.Time // link_invitations.created_at
	ExpiresAt        time.Time // link_invitations.expires_at (created_at + 24h)
	Used             bool      // link_invitations.used
}

// InvitationTTL is the fixed lifetime of a link invitation.
const InvitationTTL = 24 * time.Hour

// LinkRequest mirrors the append-only `link_requests` table.  Like an
// emergency request it is a trigger record: written once by the client,
// handled once by the invitation store, then terminally marked
// processed true/false.
type LinkRequest struct {
	ID               uint64
	InviterUserID    string
	InviterFirstName string
	InvitationCode   string
	Timestamp        time.Time
	Processed        *bool
	ProcessedAt      *time.Time
	Error            string
}
