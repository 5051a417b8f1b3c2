package domain

// Envelope is one inbound unit of work, normalized at the boundary.
type Envelope interface {
	Key() RoutingKey
}

type Register struct {
	Username      string `validate:"required"`
	RequestedID   string
	ReplyTo       string
	CorrelationID string
}

type Message struct {
	SenderID  string `validate:"required"`
	ToID      string `validate:"required"`
	Content   string `validate:"required"`
	MessageID string
}

type File struct {
	SenderID string `validate:"required"`
	ToID     string `validate:"required"`
	FileName string `validate:"required"`
	Data     string `validate:"required"`
}

type Image struct {
	SenderID string `validate:"required"`
	ToID     string `validate:"required"`
	Data     string `validate:"required"`
}

// Edit targets ToID when set, otherwise the target recorded with the original message.
type Edit struct {
	SenderID   string `validate:"required"`
	ToID       string
	MessageID  string `validate:"required"`
	NewContent string `validate:"required"`
}

type CreateGroup struct {
	SenderID  string `validate:"required"`
	GroupID   string `validate:"required"`
	Name      string `validate:"required"`
	CreatedBy string `validate:"required"`
}

type JoinGroup struct {
	SenderID string `validate:"required"`
	GroupID  string `validate:"required"`
}

type LeaveGroup struct {
	SenderID string `validate:"required"`
	GroupID  string `validate:"required"`
}

func (Register) Key() RoutingKey    { return RegisterKey }
func (Message) Key() RoutingKey     { return MessageKey }
func (File) Key() RoutingKey        { return FileKey }
func (Image) Key() RoutingKey       { return ImageKey }
func (Edit) Key() RoutingKey        { return EditKey }
func (CreateGroup) Key() RoutingKey { return CreateGroupKey }
func (JoinGroup) Key() RoutingKey   { return JoinGroupKey }
func (LeaveGroup) Key() RoutingKey  { return LeaveGroupKey }
