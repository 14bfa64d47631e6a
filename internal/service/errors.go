package service

import "errors"

var (
	ErrProbeNotFound        = errors.New("probe not found")
	ErrHypothesisNotFound   = errors.New("hypothesis not found")
	ErrNotProbeable         = errors.New("hypothesis does not need probing")
	ErrInvalidDeclaration   = errors.New("invalid uncertainty declaration")
	ErrProbeExpired         = errors.New("probe expired")
	ErrProbeAlreadyAnswered = errors.New("probe already answered")
	ErrInvalidResponse      = errors.New("invalid probe response")
	ErrSessionNotFound      = errors.New("genesis session not found")
	ErrSessionComplete      = errors.New("genesis session is complete")
	ErrSessionState         = errors.New("session is not in a state that allows this transition")
	ErrGenerationFailed     = errors.New("probe generation failed")
)
