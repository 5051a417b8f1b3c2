package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrDuplicateID       = fmt.Errorf("ID already exists")
	ErrUnknownSender     = fmt.Errorf("unknown sender")
	ErrMissingSender     = fmt.Errorf("missing senderId")
	ErrGroupNotFound     = fmt.Errorf("group not found")
	ErrDuplicateGroup    = fmt.Errorf("group already exists")
	ErrCreatorMismatch   = fmt.Errorf("createdBy does not match sender")
	ErrMessageNotFound   = fmt.Errorf("message not found")
	ErrUnauthorizedEdit  = fmt.Errorf("unauthorized edit")
	ErrInvalidEnvelope   = fmt.Errorf("invalid envelope")
	ErrUnknownRoutingKey = fmt.Errorf("unknown routing key")

	ErrTransport      = fmt.Errorf("transport failure")
	ErrBrokerClosed   = fmt.Errorf("broker closed")
	ErrMissingReplyTo = fmt.Errorf("missing reply destination")
)
