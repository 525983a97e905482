// Package services implements the collection game: draw accounting,
// ownership and wish bookkeeping, the two-party exchange protocol and group
// administration. This file centralizes the service-level error values so
// callers can map them to user-facing replies with errors.Is.
//
// Translation into chat replies or HTTP status codes is performed by the
// command and handler layers.
package services

import "errors"

// Validation and data availability.
var (
	// ErrInvalidArgument is returned for malformed ids or empty keywords.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCharacterNotFound indicates the id is not in the catalog.
	ErrCharacterNotFound = errors.New("character not found")

	// ErrCatalogUnavailable is returned when the catalog yields no character.
	// No draw is consumed.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// Transport.
var (
	// ErrDeliveryFailed wraps a failed outbound send. Nothing that depends
	// on the delivery has been committed.
	ErrDeliveryFailed = errors.New("message delivery failed")
)

// Ownership and wish preconditions.
var (
	// ErrNotOwned is returned when the user does not have the character in
	// their harem.
	ErrNotOwned = errors.New("character not owned by user")

	// ErrWishListFull is returned when the wish list already holds
	// harem_max_size entries.
	ErrWishListFull = errors.New("wish list full")
)

// Exchange preconditions and settlement failures.
var (
	// ErrNotYourCharacter: the initiator is not the owner of the offered
	// character.
	ErrNotYourCharacter = errors.New("initiator does not own the offered character")

	// ErrCounterpartNotOwned: the requested character is unowned or owned by
	// the initiator.
	ErrCounterpartNotOwned = errors.New("requested character has no other owner")

	// ErrCounterpartLeft: the requested character's owner is not a known
	// group member.
	ErrCounterpartLeft = errors.New("counterpart is not a group member")

	// ErrPartyLeft: one of the parties left the group before settlement.
	ErrPartyLeft = errors.New("exchange party is not a group member")

	// ErrCounterpartNoLongerOwns: ownership of the requested character moved
	// since the proposal.
	ErrCounterpartNoLongerOwns = errors.New("counterpart no longer owns the character")

	// ErrInitiatorNoLongerOwns: ownership of the offered character moved
	// since the proposal.
	ErrInitiatorNoLongerOwns = errors.New("initiator no longer owns the character")

	// ErrOwnershipDrift: owner pointers agree but a harem list does not hold
	// the claimed character.
	ErrOwnershipDrift = errors.New("harem list does not match owner pointer")
)

// Administration.
var (
	// ErrUnknownSetting is returned for a setting name SetConfig does not know.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrValueOutOfRange is returned for values above a hard ceiling.
	ErrValueOutOfRange = errors.New("value out of range")
)
