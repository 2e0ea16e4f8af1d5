// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios. For example, ErrInvitationExpiredOrUsed indicates that a
// link invitation can no longer be consumed, while ErrUserNotFound
// signals that an emergency request referenced an unknown account.
package repository

import "errors"

// ErrUserNotFound is returned when a lookup by account id matches no
// row. The emergency processor treats this as a whole-request failure;
// handlers should translate it into an HTTP 404 response.
var ErrUserNotFound = errors.New("user not found")

// ErrInvitationNotFound is returned when a link invitation code does
// not exist. Handlers should translate this into an HTTP 404 with the
// "not-found" error code.
var ErrInvitationNotFound = errors.New("invitation not found")

// ErrInvitationExpiredOrUsed is returned when a link invitation exists
// but has either passed its expiry or been consumed already. Both
// conditions collapse to one error kind externally; the message carried
// alongside distinguishes them for diagnostics. Handlers should
// translate this into an HTTP 412 with the "failed-precondition" code.
var ErrInvitationExpiredOrUsed = errors.New("invitation expired or already used")

// ErrEventNotFound is returned when an emergency event id matches no
// persisted record.
var ErrEventNotFound = errors.New("emergency event not found")

// ErrContactNotFound is returned when a consent update names a contact
// the caller is not linked with.
var ErrContactNotFound = errors.New("linked contact not found")

// ErrDuplicateEvent is returned when an emergency request reuses an
// event id that was already ingested. The request table is append-only,
// so a duplicate id is rejected rather than overwritten.
var ErrDuplicateEvent = errors.New("emergency event id already exists")
