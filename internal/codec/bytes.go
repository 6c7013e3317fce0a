package codec

import "fmt"

func init() { Register("bytes", func() Codec { return bytesCodec{} }) }

// bytesCodec passes payloads through untouched, tagged optional-bytes.
type bytesCodec struct{}

func (bytesCodec) Configure(map[string]any) error { return nil }

func (bytesCodec) Decode(_ string, data []byte) (SchemaAndValue, error) {
	if data == nil {
		return SchemaAndValue{Schema: OptionalBytes}, nil
	}
	return SchemaAndValue{Schema: OptionalBytes, Value: data}, nil
}

func (bytesCodec) Encode(_ string, sv SchemaAndValue) ([]byte, error) {
	if sv.Value == nil {
		return nil, nil
	}
	b, ok := sv.Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("codec: bytes: cannot encode %T", sv.Value)
	}
	return b, nil
}
