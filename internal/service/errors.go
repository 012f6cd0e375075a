package service

import "errors"

// Domain errors. Handlers map them to response codes with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("caller does not own this resource")
	ErrTeacherOnly            = errors.New("only teachers can perform this action")
	ErrInvalidAccessCode      = errors.New("invalid access code")
	ErrAccessCodeInUse        = errors.New("access code is already used by a live session")
	ErrSessionClosed          = errors.New("session is closed")
	ErrSessionNotActive       = errors.New("session has not started yet")
	ErrInvalidStateTransition = errors.New("invalid session state transition")
	ErrAlreadySubmitted       = errors.New("attempt already submitted")
	ErrAttemptExpired         = errors.New("attempt time limit has passed")
	ErrInvalidAnswers         = errors.New("invalid answers")
	ErrInvalidQuiz            = errors.New("invalid quiz")
	ErrInvalidToken           = errors.New("invalid token")
	ErrTokenRevoked           = errors.New("token has been revoked")
)
