package domain

// CachedMessage keeps what is needed to authorize and apply an edit.
// Only OriginalSenderID may change CurrentContent.
type CachedMessage struct {
	MessageID        string
	OriginalSenderID string
	CurrentContent   string
	TargetID         string
}
