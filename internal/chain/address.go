package chain

import "github.com/ethereum/go-ethereum/common"

// IsAddress reports whether s is a well-formed hex chain address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

// Checksum normalizes a hex address to its EIP-55 checksummed form.
// Callers must validate with IsAddress first.
func Checksum(s string) string {
	return common.HexToAddress(s).Hex()
}
