package model

import "time"

// User represents an anonymous application account as stored in the
// `users` table.  Accounts are created on first anonymous sign-in and
// identified by an opaque UUID rather than an email address; the only
// credential is a device secret supplied by the client, of which just
// the bcrypt hash is stored.  The json tags are omitted here because
// these structs are used internally by the repository layer; handlers
// define separate response types with appropriate JSON tags.
//
// Fields:
//  ID               – opaque account identifier (UUID string).
//  FirstName        – display name, first name only.
//  PushToken        – current push token of the account's own device
//                     (may be empty until the client registers one).
//  DeviceSecretHash – bcrypt hash of the device secret used to
//                     re-authenticate the anonymous account.
//  CreatedAt        – timestamp of creation.
//  UpdatedAt        – timestamp of last update.
type User struct {
	ID               string    // users.id
	FirstName        string    // users.first_name
	PushToken        string    // users.push_token
	DeviceSecretHash string    // users.device_secret_hash
	CreatedAt        time.Time // users.created_at
	UpdatedAt        time.Time // users.updated_at
}

// LinkedContact represents one emergency-contact relationship from the
// owning user's perspective, mirroring a row of the `linked_contacts`
// table.  The relationship is symmetric: whenever A holds an entry for
// B, B holds the mirror entry for A, created atomically by the contact
// linker.  Consent flags default to false (location sharing is opt-in).
//
// Fields:
//  UserID                – owner of this entry.
//  ContactUserID         – the other party's account id.
//  ContactFirstName      – the other party's first name.
//  PushToken             – token used to address a push message to the
//                          contact; empty until the contact's client
//                          registers one.
//  LinkedAt              – when the link was established.
//  ShareLocationWithMe   – the contact's consent to location sharing
//                          on this link; gates whether my alerts carry
//                          my location to them.
//  ShareMyLocationWithThem – my own consent, mirrored into the
//                          contact's row as their ShareLocationWithMe.
type LinkedContact struct {
	UserID                  string    // linked_contacts.user_id
	ContactUserID           string    // linked_contacts.contact_user_id
	ContactFirstName        string    // linked_contacts.contact_first_name
	PushToken               string    // linked_contacts.push_token
	LinkedAt                time.Time // linked_contacts.linked_at
	ShareLocationWithMe     bool      // linked_contacts.share_location_with_me
	ShareMyLocationWithThem bool      // linked_contacts.share_my_location_with_them
}
