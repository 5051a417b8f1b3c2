// Package event defines the records the monitoring service emits.
package event

import (
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelDebug Level = "DEBUG"
)

type Type string

const (
	UserRegisterType    Type = "USER_REGISTER"
	UserActivityType    Type = "USER_ACTIVITY"
	MessageSentType     Type = "MESSAGE_SENT"
	MessageRecvType     Type = "MESSAGE_RECEIVED"
	FileSentType        Type = "FILE_SENT"
	FileRecvType        Type = "FILE_RECEIVED"
	ImageSentType       Type = "IMAGE_SENT"
	ImageRecvType       Type = "IMAGE_RECEIVED"
	EditSentType        Type = "EDIT_SENT"
	EditRecvType        Type = "EDIT_RECEIVED"
	GroupCreatedType    Type = "GROUP_CREATED"
	GroupJoinedType     Type = "GROUP_JOINED"
	GroupLeftType       Type = "GROUP_LEFT"
	GroupRemovedType    Type = "GROUP_REMOVED"
	ChannelCapacityType Type = "CHANNEL_CAPACITY"
	DeliveryNackType    Type = "DELIVERY_NACK"
	ErrorType           Type = "ERROR"
	SystemType          Type = "SYSTEM"
)

// Event is one monitoring record. Details must hold JSON-like values.
type Event struct {
	ID      uuid.UUID
	Level   Level
	Type    Type
	Message string
	Details map[string]any
	At      time.Time
}

func New(level Level, t Type, message string, details map[string]any) Event {
	return Event{
		ID:      uuid.New(),
		Level:   level,
		Type:    t,
		Message: message,
		Details: details,
		At:      time.Now().UTC(),
	}
}
