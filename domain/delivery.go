package domain

// Inbound is one message received from the broker, before decoding.
type Inbound struct {
	RoutingKey    RoutingKey
	Body          []byte
	Headers       map[string]any
	CorrelationID string
	ReplyTo       string
}

// ConfirmFunc receives the broker confirmation of a single publish.
type ConfirmFunc func(destination string, acked bool)
