package codec

import (
	"fmt"
	"io"
	"net/http"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// Overridden in tests.
var (
	protoMarshal   = proto.Marshal
	protoUnmarshal = proto.Unmarshal
)

// ProtoCodec decodes T from and encodes U to the protobuf wire format.
// T must be a pointer to a generated message type.
type ProtoCodec[T proto.Message, U proto.Message] struct{}

// NewProtoCodec creates a ProtoCodec for request type T and response type U.
func NewProtoCodec[T proto.Message, U proto.Message]() *ProtoCodec[T, U] {
	return &ProtoCodec[T, U]{}
}

// ContentType returns the media type written by Encode.
func (c *ProtoCodec[T, U]) ContentType() string {
	return "application/x-protobuf"
}

// newMessage allocates the message T points to.
func newMessage[T proto.Message]() T {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return zero
	}
	return reflect.New(typ.Elem()).Interface().(T)
}

// Decode reads the body and unmarshals it into a new T.
func (c *ProtoCodec[T, U]) Decode(r *http.Request) (T, error) {
	msg := newMessage[T]()
	if r.Body == nil {
		return msg, ErrEmptyBody
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return msg, fmt.Errorf("codec: read body: %w", err)
	}
	if err := protoUnmarshal(body, msg); err != nil {
		return msg, fmt.Errorf("codec: decode proto: %w", err)
	}
	return msg, nil
}

// Encode marshals resp and writes it with the protobuf content type.
func (c *ProtoCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	body, err := protoMarshal(resp)
	if err != nil {
		return fmt.Errorf("codec: encode proto: %w", err)
	}
	w.Header().Set("Content-Type", c.ContentType())
	_, err = w.Write(body)
	return err
}
