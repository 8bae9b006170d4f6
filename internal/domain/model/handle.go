// Package model defines the domain types for handle block intents and platform credentials.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownBlockStatus is returned by ParseBlockStatus for unrecognized input.
var ErrUnknownBlockStatus = errors.New("unknown block status")

// ErrUnknownPlatformStatus is returned by ParsePlatformStatus for unrecognized input.
var ErrUnknownPlatformStatus = errors.New("unknown platform status")

// BlockStatus is the local desired/attempted/terminal state of a block or
// unblock intent for one handle.
type BlockStatus string

const (
	BlockStatusToBlock          BlockStatus = "TO_BLOCK"
	BlockStatusAttemptedBlock   BlockStatus = "ATTEMPTED_BLOCK"
	BlockStatusBlocked          BlockStatus = "BLOCKED"
	BlockStatusToUnblock        BlockStatus = "TO_UNBLOCK"
	BlockStatusAttemptedUnblock BlockStatus = "ATTEMPTED_UNBLOCK"
	BlockStatusUnblocked        BlockStatus = "UNBLOCKED"
)

// AllBlockStatuses lists every BlockStatus in lifecycle order.
func AllBlockStatuses() []BlockStatus {
	return []BlockStatus{
		BlockStatusToBlock,
		BlockStatusAttemptedBlock,
		BlockStatusBlocked,
		BlockStatusToUnblock,
		BlockStatusAttemptedUnblock,
		BlockStatusUnblocked,
	}
}

// ParseBlockStatus converts a stored or user-supplied string into a BlockStatus.
// Matching is case-insensitive.
func ParseBlockStatus(s string) (BlockStatus, error) {
	v := BlockStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range AllBlockStatuses() {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBlockStatus, s)
}

// IsPending reports whether the status is waiting for the reconciler.
func (s BlockStatus) IsPending() bool {
	return s == BlockStatusToBlock || s == BlockStatusToUnblock
}

// IsAttempted reports whether an attempt was started but never confirmed.
func (s BlockStatus) IsAttempted() bool {
	return s == BlockStatusAttemptedBlock || s == BlockStatusAttemptedUnblock
}

// IsTerminal reports whether the intent has converged.
func (s BlockStatus) IsTerminal() bool {
	return s == BlockStatusBlocked || s == BlockStatusUnblocked
}

// IsUnblockIntent reports whether the status belongs to the unblock lifecycle.
func (s BlockStatus) IsUnblockIntent() bool {
	switch s {
	case BlockStatusToUnblock, BlockStatusAttemptedUnblock, BlockStatusUnblocked:
		return true
	default:
		return false
	}
}

// Attempted returns the in-flight status for a pending intent.
func (s BlockStatus) Attempted() BlockStatus {
	if s.IsUnblockIntent() {
		return BlockStatusAttemptedUnblock
	}
	return BlockStatusAttemptedBlock
}

// Terminal returns the converged status for the intent s belongs to.
func (s BlockStatus) Terminal() BlockStatus {
	if s.IsUnblockIntent() {
		return BlockStatusUnblocked
	}
	return BlockStatusBlocked
}

// Pending returns the queued status for the intent s belongs to.
func (s BlockStatus) Pending() BlockStatus {
	if s.IsUnblockIntent() {
		return BlockStatusToUnblock
	}
	return BlockStatusToBlock
}

// PlatformStatus is the last block state observed on the remote platform.
type PlatformStatus string

const (
	PlatformStatusUnblocked PlatformStatus = "UNBLOCKED"
	PlatformStatusBlocked   PlatformStatus = "BLOCKED"
	PlatformStatusUnknown   PlatformStatus = "UNKNOWN"
)

// ParsePlatformStatus converts a string into a PlatformStatus. Matching is
// case-insensitive.
func ParsePlatformStatus(s string) (PlatformStatus, error) {
	switch PlatformStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case PlatformStatusUnblocked:
		return PlatformStatusUnblocked, nil
	case PlatformStatusBlocked:
		return PlatformStatusBlocked, nil
	case PlatformStatusUnknown:
		return PlatformStatusUnknown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatformStatus, s)
	}
}

// HandleRecord tracks the block intent for one handle on one platform.
type HandleRecord struct {
	ID             int64
	Key            string
	Handle         string
	Platform       Platform
	BlockStatus    BlockStatus
	PlatformStatus PlatformStatus
	LastChanged    time.Time
}

// HandleKey builds the unique "platform:handle" key of a HandleRecord.
func HandleKey(platform Platform, handle string) string {
	return string(platform) + ":" + handle
}

// NormalizeHandle trims whitespace and a leading "@" and lowercases the
// handle. Handles on the supported networks are case-insensitive.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	return strings.ToLower(strings.TrimSpace(h))
}
