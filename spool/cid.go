package spool

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CargoID returns the CIDv1 (raw + sha2-256) of a cargo. It doubles as the
// cargo id on the wire when the spool's contents are delivered.
func CargoID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// ParseID parses a cargo id produced by CargoID.
func ParseID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, ErrInvalidCID
	}
	if id.Prefix().Codec != cid.Raw || id.Prefix().MhType != multihash.SHA2_256 {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}
