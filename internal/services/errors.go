package services

import "errors"

var (
	ErrTeamNotFound           = errors.New("team not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrArtifactGeneration     = errors.New("artifact generation failed")
	ErrBlobStore              = errors.New("blob store failure")
	ErrNotification           = errors.New("notification failed")
	ErrValidation             = errors.New("validation failed")
	ErrCaptchaFailed          = errors.New("captcha verification failed")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrNothingToResend        = errors.New("nothing to resend")
)
