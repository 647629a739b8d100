package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	sovereignPrefix = []byte("sov/meta/")
	depositPrefix   = []byte("sov/deposit/")
	positionPrefix  = []byte("sov/position/")
	holdingPrefix   = []byte("sov/holding/")
	accountPrefix   = []byte("acct/")
	proposalPrefix  = []byte("gov/proposal/")
	votePrefix      = []byte("gov/vote/")
)

// scope hashes a sovereign identifier so every per-sovereign key has a fixed
// width and prefix scans never bleed into a sibling whose ID shares a prefix.
func scope(id string) []byte {
	return ethcrypto.Keccak256([]byte(id))
}

func join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func sovereignKey(id string) []byte {
	return join(sovereignPrefix, scope(id))
}

func depositScan(id string) []byte {
	return join(depositPrefix, scope(id))
}

func depositKey(id string, depositor [20]byte) []byte {
	return join(depositPrefix, scope(id), depositor[:])
}

func positionScan(id string) []byte {
	return join(positionPrefix, scope(id))
}

func positionKey(id string, positionID [32]byte) []byte {
	return join(positionPrefix, scope(id), positionID[:])
}

func holdingKey(id string, owner [20]byte) []byte {
	return join(holdingPrefix, scope(id), owner[:])
}

func accountKey(addr [20]byte) []byte {
	return join(accountPrefix, addr[:])
}

func proposalScan(id string) []byte {
	return join(proposalPrefix, scope(id))
}

func proposalKey(id string, proposalID uint64) []byte {
	return join(proposalPrefix, scope(id), uint64Bytes(proposalID))
}

func voteScan(id string, proposalID uint64) []byte {
	return join(votePrefix, scope(id), uint64Bytes(proposalID))
}

func voteKey(id string, proposalID uint64, identity string) []byte {
	return join(votePrefix, scope(id), uint64Bytes(proposalID), ethcrypto.Keccak256([]byte(identity)))
}
