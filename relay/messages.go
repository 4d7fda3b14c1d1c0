// Package relay holds the CargoRelay wire contract: messages, codec and
// gRPC stubs. It has no orchestration logic; see package cogrpc for that.
package relay

// CargoDelivery carries one cargo in either direction.
//
//	message CargoDelivery {
//	  string id = 1;
//	  bytes cargo = 2;
//	}
type CargoDelivery struct {
	Id    string
	Cargo []byte
}

func (m *CargoDelivery) GetId() string {
	if m == nil {
		return ""
	}
	return m.Id
}

func (m *CargoDelivery) GetCargo() []byte {
	if m == nil {
		return nil
	}
	return m.Cargo
}

// Ack returns the acknowledgement for m.
func (m *CargoDelivery) Ack() *CargoDeliveryAck {
	return &CargoDeliveryAck{Id: m.GetId()}
}

// CargoDeliveryAck acknowledges a CargoDelivery by id.
//
//	message CargoDeliveryAck {
//	  string id = 1;
//	}
type CargoDeliveryAck struct {
	Id string
}

func (m *CargoDeliveryAck) GetId() string {
	if m == nil {
		return ""
	}
	return m.Id
}
