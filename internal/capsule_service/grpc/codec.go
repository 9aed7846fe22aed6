package grpccapsule

import (
	"github.com/AnishMulay/capfs/internal/codec"
	"google.golang.org/grpc/encoding"
)

// codecName is sent as the content-subtype: application/grpc+cbor.
const codecName = "cbor"

// cborCodec carries request and response structs over gRPC without generated
// protobuf types.
type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error) {
	return codec.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}

func (cborCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(cborCodec{})
}
