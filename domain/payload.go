package domain

type PayloadType string

const (
	TextPayload  PayloadType = "message"
	FilePayload  PayloadType = "file"
	ImagePayload PayloadType = "image"
	EditPayload  PayloadType = "edit"
	GroupCreated PayloadType = "group_created"
	GroupJoined  PayloadType = "group_joined"
	MemberJoined PayloadType = "member_joined"
	GroupLeft    PayloadType = "group_left"
	MemberLeft   PayloadType = "member_left"
	ErrorPayload PayloadType = "error"
)

// Outbound is what lands in a private inbox. Kind-specific fields are left empty
// when they do not apply.
type Outbound struct {
	Type              PayloadType `json:"type"`
	Message           string      `json:"message,omitempty"`
	MessageID         string      `json:"messageId,omitempty"`
	File              string      `json:"file,omitempty"`
	Data              string      `json:"data,omitempty"`
	Image             string      `json:"image,omitempty"`
	OriginalMessageID string      `json:"originalMessageId,omitempty"`
	NewMessage        string      `json:"newMessage,omitempty"`
	Sender            string      `json:"sender,omitempty"`
	SenderID          string      `json:"senderId,omitempty"`
	Timestamp         int64       `json:"timestamp"`
	IsGroup           bool        `json:"isGroup,omitempty"`
	TargetID          string      `json:"targetId,omitempty"`
	GroupID           string      `json:"groupId,omitempty"`
	GroupName         string      `json:"groupName,omitempty"`
	UserID            string      `json:"userId,omitempty"`
	Username          string      `json:"username,omitempty"`
	Members           []string    `json:"members,omitempty"`
	Error             string      `json:"error,omitempty"`
}

// WithGroup tags a payload fanned out to a group so the recipient can attribute it.
func (o Outbound) WithGroup(groupID string) Outbound {
	o.IsGroup = true
	o.TargetID = groupID
	return o
}

// RegisterReply answers a registration request on its reply destination.
type RegisterReply struct {
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
	Error    string `json:"error,omitempty"`
}
