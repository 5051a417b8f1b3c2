// Package codec normalizes inbound broker payloads into one canonical envelope per
// routing key and encodes outbound payloads.
//
// Clients disagree on field names (originalMessageId vs messageId, newMessage vs
// newContent, image vs data) and on where the sender ID travels (header or body).
// Every variant is accepted here so the router only ever sees one shape.
package codec

import (
	"chat-router/domain"
	"chat-router/errors"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// rawPayload is the union of every field a client may send.
type rawPayload struct {
	Username          string `json:"username"`
	UUID              string `json:"uuid"`
	SenderID          string `json:"senderId"`
	ToID              string `json:"toId"`
	Message           string `json:"message"`
	MessageID         string `json:"messageId"`
	File              string `json:"file"`
	Data              string `json:"data"`
	Image             string `json:"image"`
	OriginalMessageID string `json:"originalMessageId"`
	NewMessage        string `json:"newMessage"`
	NewContent        string `json:"newContent"`
	GroupID           string `json:"groupId"`
	GroupName         string `json:"groupName"`
	CreatedBy         string `json:"createdBy"`
}

// Decode turns a raw delivery into a validated envelope.
// The returned error wraps ErrInvalidEnvelope, ErrMissingSender or ErrUnknownRoutingKey.
func Decode(in domain.Inbound) (domain.Envelope, error) {
	var raw rawPayload
	if err := json.Unmarshal(in.Body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s payload is not JSON: %v", errors.ErrInvalidEnvelope, in.RoutingKey, err)
	}

	if in.RoutingKey == domain.RegisterKey {
		env := domain.Register{
			Username:      strings.TrimSpace(raw.Username),
			RequestedID:   strings.TrimSpace(raw.UUID),
			ReplyTo:       in.ReplyTo,
			CorrelationID: in.CorrelationID,
		}
		return env, check(env)
	}

	senderID := SenderID(in.Headers, raw.SenderID)

	var env domain.Envelope
	switch in.RoutingKey {
	case domain.MessageKey:
		env = domain.Message{
			SenderID:  senderID,
			ToID:      raw.ToID,
			Content:   raw.Message,
			MessageID: raw.MessageID,
		}
	case domain.FileKey:
		env = domain.File{
			SenderID: senderID,
			ToID:     raw.ToID,
			FileName: raw.File,
			Data:     raw.Data,
		}
	case domain.ImageKey:
		env = domain.Image{
			SenderID: senderID,
			ToID:     raw.ToID,
			Data:     firstNonEmpty(raw.Data, raw.Image),
		}
	case domain.EditKey:
		env = domain.Edit{
			SenderID:   senderID,
			ToID:       raw.ToID,
			MessageID:  firstNonEmpty(raw.OriginalMessageID, raw.MessageID),
			NewContent: firstNonEmpty(raw.NewMessage, raw.NewContent),
		}
	case domain.CreateGroupKey:
		// Older clients only send createdBy.
		senderID = firstNonEmpty(senderID, raw.CreatedBy)
		env = domain.CreateGroup{
			SenderID:  senderID,
			GroupID:   raw.GroupID,
			Name:      raw.GroupName,
			CreatedBy: firstNonEmpty(raw.CreatedBy, senderID),
		}
	case domain.JoinGroupKey:
		env = domain.JoinGroup{SenderID: senderID, GroupID: raw.GroupID}
	case domain.LeaveGroupKey:
		env = domain.LeaveGroup{SenderID: senderID, GroupID: raw.GroupID}
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownRoutingKey, in.RoutingKey)
	}

	if senderID == "" {
		return env, fmt.Errorf("%w: %s", errors.ErrMissingSender, in.RoutingKey)
	}
	return env, check(env)
}

// SenderID reads the sender from the transport header first, then from the body.
func SenderID(headers map[string]any, inline string) string {
	if v, ok := headers[domain.SenderHeader]; ok {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id
			}
		case []byte:
			if len(id) > 0 {
				return string(id)
			}
		}
	}
	return inline
}

func check(env domain.Envelope) error {
	if err := validate.Struct(env); err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrInvalidEnvelope, env.Key(), err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
