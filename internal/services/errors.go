package services

import (
	"errors"
)

// Kind groups errors by what the caller should do about them.
type Kind int

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindConflict
	KindResource
	KindNotFound
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "state_conflict"
	case KindResource:
		return "resource"
	case KindNotFound:
		return "not_found"
	case KindSystem:
		return "system_state"
	}
	return "infrastructure"
}

// Error is a domain failure with a stable code for API consumers.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidResultShape = &Error{Code: "INVALID_RESULT_SHAPE", Kind: KindValidation, Message: "result value does not match the game type"}
	ErrInvalidDate        = &Error{Code: "INVALID_DATE", Kind: KindValidation, Message: "date must be formatted as YYYY-MM-DD"}
	ErrInvalidGame        = &Error{Code: "INVALID_GAME", Kind: KindValidation, Message: "invalid game configuration"}
	ErrInvalidBet         = &Error{Code: "INVALID_BET", Kind: KindValidation, Message: "invalid bet"}
	ErrInvalidAmount      = &Error{Code: "INVALID_AMOUNT", Kind: KindValidation, Message: "invalid amount"}
	ErrInvalidEntries     = &Error{Code: "INVALID_LEDGER_ENTRIES", Kind: KindValidation, Message: "invalid ledger entries"}
	ErrInvalidAction      = &Error{Code: "INVALID_ACTION", Kind: KindValidation, Message: "action must be approve or reject"}
	ErrNotesRequired      = &Error{Code: "NOTES_REQUIRED", Kind: KindValidation, Message: "admin notes are required when rejecting"}
	ErrActorRequired      = &Error{Code: "ACTOR_REQUIRED", Kind: KindValidation, Message: "acting admin is required"}

	ErrResultAlreadyDeclared = &Error{Code: "RESULT_ALREADY_DECLARED", Kind: KindConflict, Message: "result already declared for this game and date"}
	ErrAlreadyReviewed       = &Error{Code: "ALREADY_REVIEWED", Kind: KindConflict, Message: "request has already been reviewed"}
	ErrGameStillOpen         = &Error{Code: "GAME_STILL_OPEN", Kind: KindConflict, Message: "betting window has not closed yet"}
	ErrGameClosed            = &Error{Code: "GAME_CLOSED", Kind: KindConflict, Message: "betting window is not open"}
	ErrWalletExists          = &Error{Code: "WALLET_EXISTS", Kind: KindConflict, Message: "wallet already exists for this user"}

	ErrInsufficientFunds = &Error{Code: "INSUFFICIENT_FUNDS", Kind: KindResource, Message: "insufficient funds"}

	ErrGameNotFound    = &Error{Code: "GAME_NOT_FOUND", Kind: KindNotFound, Message: "game not found"}
	ErrWalletNotFound  = &Error{Code: "WALLET_NOT_FOUND", Kind: KindNotFound, Message: "wallet not found"}
	ErrRequestNotFound = &Error{Code: "REQUEST_NOT_FOUND", Kind: KindNotFound, Message: "request not found"}
	ErrResultNotFound  = &Error{Code: "RESULT_NOT_FOUND", Kind: KindNotFound, Message: "result not found"}

	ErrInsufficientSystemState = &Error{Code: "INSUFFICIENT_SYSTEM_STATE", Kind: KindSystem, Message: "stored state is inconsistent; nothing was applied"}
)

// KindOf classifies err. Errors that are not domain errors are infrastructure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// MoneyMoved describes whether a failed command may have changed balances.
type MoneyMoved string

const (
	MoneyMovedYes     MoneyMoved = "yes"
	MoneyMovedNo      MoneyMoved = "no"
	MoneyMovedUnknown MoneyMoved = "unknown"
)

// OutcomeOf tells the admin what a failed command did to money. Domain errors
// abort before or roll back with the transaction; anything else may have
// committed before the failure surfaced, so the entity must be re-read.
func OutcomeOf(err error) MoneyMoved {
	if KindOf(err) == KindInfrastructure {
		return MoneyMovedUnknown
	}
	return MoneyMovedNo
}
