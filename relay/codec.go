package relay

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldID    protowire.Number = 1
	fieldCargo protowire.Number = 2
)

var ErrUnsupportedMessage = errors.New("relay: unsupported message type")

// Codec encodes CargoDelivery and CargoDeliveryAck in protobuf wire format,
// byte-compatible with cogrpc.proto. It implements encoding.Codec.
//
// Name reports "proto" so peers see the usual application/grpc+proto
// content type.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *CargoDelivery:
		var b []byte
		b = appendString(b, fieldID, m.Id)
		if len(m.Cargo) > 0 {
			b = protowire.AppendTag(b, fieldCargo, protowire.BytesType)
			b = protowire.AppendBytes(b, m.Cargo)
		}
		return b, nil
	case *CargoDeliveryAck:
		return appendString(nil, fieldID, m.Id), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedMessage, v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *CargoDelivery:
		*m = CargoDelivery{}
		return consumeFields(data, func(num protowire.Number, val []byte) {
			switch num {
			case fieldID:
				m.Id = string(val)
			case fieldCargo:
				m.Cargo = append([]byte(nil), val...)
			}
		})
	case *CargoDeliveryAck:
		*m = CargoDeliveryAck{}
		return consumeFields(data, func(num protowire.Number, val []byte) {
			if num == fieldID {
				m.Id = string(val)
			}
		})
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedMessage, v)
	}
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// consumeFields walks data and calls set for every length-delimited field.
// Fields of other wire types are skipped, as are unknown field numbers.
func consumeFields(data []byte, set func(num protowire.Number, val []byte)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("relay: decode tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("relay: skip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		val, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return fmt.Errorf("relay: decode field %d: %w", num, protowire.ParseError(n))
		}
		set(num, val)
		data = data[n:]
	}
	return nil
}
