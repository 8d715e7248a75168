package wireproto

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered as the grpc content-subtype so every message
// on the WorkerService channel is framed by grpc's own length-prefixed
// HTTP/2 message framing ("streams are framed length-prefixed
// per message") while the payload itself is JSON rather than protobuf wire
// format. See service.go for why: this module has no protoc/protoc-gen-go
// step, so a hand-registered codec replaces generated marshal/unmarshal
// code without giving up grpc's real transport semantics (flow control,
// keepalive, TLS, multiplexed streams).
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
