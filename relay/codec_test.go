package relay

import (
	"bytes"
	"errors"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_WireBytes(t *testing.T) {
	var c Codec
	got, err := c.Marshal(&CargoDelivery{Id: "a", Cargo: []byte{0x01, 0x02}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{0x0a, 0x01, 'a', 0x12, 0x02, 0x01, 0x02}
	if !bytes.Equal(got, want) {
		t.Fatalf("wire bytes: got %x want %x", got, want)
	}

	got, err = c.Marshal(&CargoDeliveryAck{Id: "a"})
	if err != nil {
		t.Fatalf("Marshal ack: %v", err)
	}
	if !bytes.Equal(got, []byte{0x0a, 0x01, 'a'}) {
		t.Fatalf("ack wire bytes: got %x", got)
	}
}

func TestCodec_EmptyMessageEncodesToNothing(t *testing.T) {
	var c Codec
	b, err := c.Marshal(&CargoDelivery{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty encoding, got %x", b)
	}
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendString(b, "cargo-1")
	b = protowire.AppendTag(b, 9, protowire.BytesType)
	b = protowire.AppendString(b, "ignored")
	b = protowire.AppendTag(b, fieldCargo, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("DATA"))

	var m CargoDelivery
	if err := (Codec{}).Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if m.Id != "cargo-1" || string(m.Cargo) != "DATA" {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestCodec_UnmarshalDoesNotAliasInput(t *testing.T) {
	src, err := (Codec{}).Marshal(&CargoDelivery{Id: "x", Cargo: []byte("abc")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m CargoDelivery
	if err := (Codec{}).Unmarshal(src, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for i := range src {
		src[i] = 0
	}
	if string(m.Cargo) != "abc" {
		t.Fatalf("cargo aliased the transport buffer: %q", m.Cargo)
	}
}

func TestCodec_RejectsTruncatedInput(t *testing.T) {
	var m CargoDeliveryAck
	if err := (Codec{}).Unmarshal([]byte{0x0a, 0x05, 'a'}, &m); err == nil {
		t.Fatalf("expected error for truncated field")
	}
}

func TestCodec_RejectsForeignTypes(t *testing.T) {
	var c Codec
	if _, err := c.Marshal("nope"); !errors.Is(err, ErrUnsupportedMessage) {
		t.Fatalf("Marshal: got %v want ErrUnsupportedMessage", err)
	}
	var s string
	if err := c.Unmarshal(nil, &s); !errors.Is(err, ErrUnsupportedMessage) {
		t.Fatalf("Unmarshal: got %v want ErrUnsupportedMessage", err)
	}
}
