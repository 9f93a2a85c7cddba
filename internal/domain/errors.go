package domain

import "errors"

var (
	// ErrUnknownAgent is returned for agent ids absent from the registry.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrUnknownSession is returned for session ids with no record.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownEscalation is returned when an escalation id does not
	// belong to the addressed session.
	ErrUnknownEscalation = errors.New("unknown escalation")
	// ErrAlreadyAnswered rejects a second answer to the same escalation.
	ErrAlreadyAnswered = errors.New("escalation already answered")
)
