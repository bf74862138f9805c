package storefrontv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName: content-subtype, под которым сообщения витрины ходят по gRPC
// (application/grpc+json).
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec сериализует сообщения API в JSON.
type Codec struct{}

// Marshal кодирует сообщение.
func (Codec) Marshal(v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("storefront codec: nil message")
	}
	return json.Marshal(v)
}

// Unmarshal декодирует сообщение. Пустое тело оставляет нулевое значение.
func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Name возвращает имя кодека.
func (Codec) Name() string { return CodecName }
