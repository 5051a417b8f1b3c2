package domain

// RoutingKey selects the queue and handler an envelope is dispatched to.
type RoutingKey string

const (
	RegisterKey    RoutingKey = "register"
	MessageKey     RoutingKey = "message"
	FileKey        RoutingKey = "file"
	ImageKey       RoutingKey = "image"
	EditKey        RoutingKey = "edit"
	CreateGroupKey RoutingKey = "create_group"
	JoinGroupKey   RoutingKey = "join_group"
	LeaveGroupKey  RoutingKey = "leave_group"
)

// RoutingKeys lists every key the router binds and consumes.
var RoutingKeys = []RoutingKey{
	RegisterKey, MessageKey, FileKey, ImageKey, EditKey,
	CreateGroupKey, JoinGroupKey, LeaveGroupKey,
}

func (k RoutingKey) String() string { return string(k) }

// SenderHeader is the transport header carrying the sender ID of non-register requests.
const SenderHeader = "senderId"

// Naming derives broker destination names from routing keys and user IDs.
type Naming struct {
	QueuePrefix string
	InboxPrefix string
}

func DefaultNaming() Naming {
	return Naming{QueuePrefix: "chat.", InboxPrefix: "chat.to."}
}

// Queue is the server-side queue consuming one routing key, e.g. chat.message.
func (n Naming) Queue(key RoutingKey) string {
	return n.QueuePrefix + string(key)
}

// Inbox is the private destination of a user, e.g. chat.to.<id>.
func (n Naming) Inbox(id string) string {
	return n.InboxPrefix + id
}
