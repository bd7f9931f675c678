package domain

import "errors"

var (
	UnexpectedDatabaseError = errors.New("database-error")
	ErrUserNotFound         = errors.New("user-not-found")
	ErrDuplicateUsername    = errors.New("duplicate-username")
	ErrRoomNotFound         = errors.New("room-not-found")
)

var (
	UnexpectedPasswordHashComparisonError = errors.New("hash-comparison-error")
	UnexpectedTokenGenerationError        = errors.New("token-generation-error")
	UnexpectedTokenVerificationError      = errors.New("token-verification-error")
)

var (
	ErrInvalidSigningAlg     = errors.New("invalid-signing-alg")
	ErrExpiredToken          = errors.New("expired-token")
	ErrInvalidTokenSignature = errors.New("invalid-token-signature")
	ErrCorruptedToken        = errors.New("corrupted-token")
)
