package codec_test

import (
	"chat-router/codec"
	"chat-router/domain"
	"chat-router/errors"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func inbound(key domain.RoutingKey, body string, headers map[string]any) domain.Inbound {
	return domain.Inbound{RoutingKey: key, Body: []byte(body), Headers: headers}
}

func TestDecode_Register(t *testing.T) {
	req := require.New(t)

	// Given a registration request with a reply destination
	in := inbound(domain.RegisterKey, `{"username":"  Alice ","uuid":" bob-1 "}`, nil)
	in.ReplyTo = "amq.gen-reply"
	in.CorrelationID = "corr-1"

	// When decoding it
	env, err := codec.Decode(in)

	// Then the username and requested ID are trimmed and the reply fields kept
	req.NoError(err)
	req.Equal(domain.Register{
		Username:      "Alice",
		RequestedID:   "bob-1",
		ReplyTo:       "amq.gen-reply",
		CorrelationID: "corr-1",
	}, env)
}

func TestDecode_Register_Without_Username_Keeps_Reply_Fields(t *testing.T) {
	req := require.New(t)
	in := inbound(domain.RegisterKey, `{"uuid":"x"}`, nil)
	in.ReplyTo = "reply"

	env, err := codec.Decode(in)

	// Then the envelope is still returned so the caller can answer
	req.ErrorIs(err, errors.ErrInvalidEnvelope)
	reg, ok := env.(domain.Register)
	req.True(ok)
	req.Equal("reply", reg.ReplyTo)
}

func TestDecode_Message_Prefers_Header_Sender(t *testing.T) {
	req := require.New(t)

	// Given a sender in both header and body
	in := inbound(domain.MessageKey, `{"senderId":"mallory","toId":"bob","message":"hi","messageId":"m1"}`,
		map[string]any{domain.SenderHeader: "alice"})

	env, err := codec.Decode(in)

	// Then the header wins
	req.NoError(err)
	req.Equal(domain.Message{SenderID: "alice", ToID: "bob", Content: "hi", MessageID: "m1"}, env)
}

func TestDecode_Message_Falls_Back_To_Inline_Sender(t *testing.T) {
	req := require.New(t)
	in := inbound(domain.MessageKey, `{"senderId":"alice","toId":"bob","message":"hi"}`,
		map[string]any{domain.SenderHeader: ""})

	env, err := codec.Decode(in)

	req.NoError(err)
	req.Equal("alice", env.(domain.Message).SenderID)
}

func TestDecode_Byte_Header(t *testing.T) {
	req := require.New(t)
	in := inbound(domain.FileKey, `{"toId":"bob","file":"a.txt","data":"aGk="}`,
		map[string]any{domain.SenderHeader: []byte("alice")})

	env, err := codec.Decode(in)

	req.NoError(err)
	req.Equal(domain.File{SenderID: "alice", ToID: "bob", FileName: "a.txt", Data: "aGk="}, env)
}

func TestDecode_Image_Accepts_Both_Field_Names(t *testing.T) {
	req := require.New(t)
	headers := map[string]any{domain.SenderHeader: "alice"}

	for _, body := range []string{
		`{"toId":"bob","data":"aW1n"}`,
		`{"toId":"bob","image":"aW1n"}`,
	} {
		env, err := codec.Decode(inbound(domain.ImageKey, body, headers))
		req.NoError(err)
		req.Equal(domain.Image{SenderID: "alice", ToID: "bob", Data: "aW1n"}, env)
	}
}

func TestDecode_Edit_Field_Variants(t *testing.T) {
	req := require.New(t)
	headers := map[string]any{domain.SenderHeader: "alice"}
	expected := domain.Edit{SenderID: "alice", ToID: "g1", MessageID: "m1", NewContent: "hello"}

	for _, body := range []string{
		`{"toId":"g1","originalMessageId":"m1","newMessage":"hello"}`,
		`{"toId":"g1","messageId":"m1","newContent":"hello"}`,
	} {
		env, err := codec.Decode(inbound(domain.EditKey, body, headers))
		req.NoError(err)
		req.Equal(expected, env)
	}
}

func TestDecode_Edit_Without_Target(t *testing.T) {
	req := require.New(t)
	in := inbound(domain.EditKey, `{"originalMessageId":"m1","newMessage":"hello"}`,
		map[string]any{domain.SenderHeader: "alice"})

	env, err := codec.Decode(in)

	// Then the target stays empty, the router resolves it from the cache
	req.NoError(err)
	req.Empty(env.(domain.Edit).ToID)
}

func TestDecode_CreateGroup_Uses_CreatedBy_As_Sender(t *testing.T) {
	req := require.New(t)
	in := inbound(domain.CreateGroupKey, `{"groupId":"g1","groupName":"Friends","createdBy":"alice"}`, nil)

	env, err := codec.Decode(in)

	req.NoError(err)
	req.Equal(domain.CreateGroup{SenderID: "alice", GroupID: "g1", Name: "Friends", CreatedBy: "alice"}, env)
}

func TestDecode_Join_And_Leave(t *testing.T) {
	req := require.New(t)
	headers := map[string]any{domain.SenderHeader: "bob"}

	env, err := codec.Decode(inbound(domain.JoinGroupKey, `{"groupId":"g1"}`, headers))
	req.NoError(err)
	req.Equal(domain.JoinGroup{SenderID: "bob", GroupID: "g1"}, env)

	env, err = codec.Decode(inbound(domain.LeaveGroupKey, `{"groupId":"g1"}`, headers))
	req.NoError(err)
	req.Equal(domain.LeaveGroup{SenderID: "bob", GroupID: "g1"}, env)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		in       domain.Inbound
		expected error
	}{
		{"missing sender", inbound(domain.MessageKey, `{"toId":"bob","message":"hi"}`, nil), errors.ErrMissingSender},
		{"missing content", inbound(domain.MessageKey, `{"senderId":"a","toId":"bob"}`, nil), errors.ErrInvalidEnvelope},
		{"missing target", inbound(domain.MessageKey, `{"senderId":"a","message":"hi"}`, nil), errors.ErrInvalidEnvelope},
		{"missing file name", inbound(domain.FileKey, `{"senderId":"a","toId":"b","data":"x"}`, nil), errors.ErrInvalidEnvelope},
		{"missing group", inbound(domain.JoinGroupKey, `{"senderId":"a"}`, nil), errors.ErrInvalidEnvelope},
		{"not json", inbound(domain.MessageKey, `hello`, nil), errors.ErrInvalidEnvelope},
		{"unknown key", inbound("delete_everything", `{}`, nil), errors.ErrUnknownRoutingKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.in)
			require.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestEncodeOutbound_Omits_Empty_Fields(t *testing.T) {
	req := require.New(t)

	// Given a group text payload
	body, err := codec.EncodeOutbound(domain.Outbound{
		Type:      domain.TextPayload,
		Message:   "hi",
		MessageID: "m1",
		Sender:    "Alice",
		SenderID:  "A1",
		Timestamp: 42,
	}.WithGroup("g1"))
	req.NoError(err)

	// Then only the relevant fields are on the wire
	var fields map[string]any
	req.NoError(json.Unmarshal(body, &fields))
	req.Equal(map[string]any{
		"type":      "message",
		"message":   "hi",
		"messageId": "m1",
		"sender":    "Alice",
		"senderId":  "A1",
		"timestamp": float64(42),
		"isGroup":   true,
		"targetId":  "g1",
	}, fields)
}
