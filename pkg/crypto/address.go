package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ContractAddress derives the fixed address of a genesis contract from its
// label: the last 20 bytes of keccak256("contract/" + label).
func ContractAddress(label string) common.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte("contract/"))
	h.Write([]byte(label))
	return common.BytesToAddress(h.Sum(nil)[12:])
}
