// Package cogrpc is a client for the CogRPC cargo relay protocol.
//
// A Client opens one gRPC channel to a relay server. DeliverCargo pushes a
// batch of cargo and reports each acknowledgement as it arrives;
// CollectCargo pulls cargo authorised by a CCA and sends an acknowledgement
// for each item once the caller has consumed it.
//
// Failures are classified once, when a call ends, into the Kinds in
// errors.go. Partial acknowledgement of a delivery is not an error. Nothing
// is retried here.
package cogrpc
