package domain

import "errors"

var (
	// ErrQuizNotFound indicates the referenced quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizInactive is returned when a participant acts on a paused quiz.
	ErrQuizInactive = errors.New("quiz is not active")
	// ErrParticipantNotFound indicates the referenced participant does not exist
	// or belongs to a different quiz.
	ErrParticipantNotFound = errors.New("participant not found in quiz")
	// ErrNameTaken is returned when a display name is already used in a quiz.
	ErrNameTaken = errors.New("display name already taken")
	// ErrScopeNotFound indicates there is no buzzer scope for the quiz yet.
	ErrScopeNotFound = errors.New("buzzer scope not found")
	// ErrPressNotFound indicates no press exists for the (scope, participant) pair.
	ErrPressNotFound = errors.New("press not found")
	// ErrAlreadyPressed is returned when a participant buzzes twice in one round.
	ErrAlreadyPressed = errors.New("participant already pressed in this round")
	// ErrAlreadyJudged rejects a second adjudication of the same press.
	ErrAlreadyJudged = errors.New("press already adjudicated")
	// ErrMarkerNotFound indicates the referenced active-question marker is gone.
	ErrMarkerNotFound = errors.New("active question not found")
	// ErrCodeTaken is returned when a generated join code collides.
	ErrCodeTaken = errors.New("join code already in use")
	// ErrCodeExhausted is returned when no unique join code could be generated.
	ErrCodeExhausted = errors.New("could not generate a unique join code")
)

// Kind is the closed classification of failures exposed to callers. Transport
// layers map kinds to status codes; clients additionally use KindTransient for
// failures where the server was never reached.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindForbidden   Kind = "forbidden"
	KindPersistence Kind = "persistence"
	KindTransient   Kind = "transient"
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "invalid or missing field: " + e.Field
}

// NewValidationError builds a ValidationError for a named field.
func NewValidationError(field string) error {
	return &ValidationError{Field: field}
}

// TransientError marks a client-side failure where the server was never
// reached. Pollers treat it the same as a server error but report it as
// retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient network error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// KindOf classifies an error into the closed taxonomy. Anything unrecognized
// is a persistence failure: storage errors are wrapped, never invented here.
func KindOf(err error) Kind {
	var ve *ValidationError
	var te *TransientError
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &te):
		return KindTransient
	case errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrScopeNotFound),
		errors.Is(err, ErrPressNotFound),
		errors.Is(err, ErrMarkerNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyPressed),
		errors.Is(err, ErrAlreadyJudged),
		errors.Is(err, ErrNameTaken),
		errors.Is(err, ErrCodeTaken),
		errors.Is(err, ErrCodeExhausted):
		return KindConflict
	case errors.Is(err, ErrQuizInactive):
		return KindForbidden
	default:
		return KindPersistence
	}
}
