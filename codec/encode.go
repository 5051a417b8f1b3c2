package codec

import (
	"chat-router/domain"
	"encoding/json"
)

func EncodeOutbound(o domain.Outbound) ([]byte, error) {
	return json.Marshal(o)
}

func EncodeReply(r domain.RegisterReply) ([]byte, error) {
	return json.Marshal(r)
}
