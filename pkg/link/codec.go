package link

import (
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"github.com/yanun0323/go-link/pkg/exception"
)

var _ Codec = JSONCodec{}

// JSONCodec encodes messages as JSON objects.
type JSONCodec struct{}

// Encode appends the JSON form of msg to dst.
func (JSONCodec) Encode(dst []byte, msg Message) ([]byte, error) {
	buf, err := sonic.Marshal(msg)
	if err != nil {
		return dst, errors.Wrap(err, "marshal message").With("reqId", msg.ReqID)
	}
	return append(dst, buf...), nil
}

// Decode parses a JSON body. Bodies without a known code are rejected.
func (JSONCodec) Decode(src []byte) (Message, error) {
	var msg Message
	if len(src) == 0 {
		return msg, exception.ErrLinkDecode
	}
	if err := sonic.Unmarshal(src, &msg); err != nil {
		return Message{}, errors.Wrap(exception.ErrLinkDecode, err.Error())
	}
	if !msg.Code.IsAvailable() {
		return Message{}, errors.Wrap(exception.ErrLinkDecode, "unknown code").With("code", uint8(msg.Code))
	}
	return msg, nil
}
