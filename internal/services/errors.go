// Package services defines the business logic for webhook ingestion and the
// dashboard's user operations. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrContactUnreachable indicates the contact has blocked the bot or
	// deleted their account, so the messaging platform no longer exposes
	// their profile.
	ErrContactUnreachable = errors.New("contact blocked the bot or no longer exists")

	// ErrInvalidTag is returned when a CRM tag is empty after trimming.
	ErrInvalidTag = errors.New("tag must not be blank")
)
