package codec

import "fmt"

func init() { Register("string", func() Codec { return stringCodec{} }) }

// stringCodec treats payloads as UTF-8 text, tagged optional-string.
type stringCodec struct{}

func (stringCodec) Configure(map[string]any) error { return nil }

func (stringCodec) Decode(_ string, data []byte) (SchemaAndValue, error) {
	if data == nil {
		return SchemaAndValue{Schema: OptionalString}, nil
	}
	return SchemaAndValue{Schema: OptionalString, Value: string(data)}, nil
}

func (stringCodec) Encode(_ string, sv SchemaAndValue) ([]byte, error) {
	switch v := sv.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}
