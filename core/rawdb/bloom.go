package rawdb

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// addToBloom sets the three bits the Yellow Paper's bloom9 function
// derives from keccak256(data) into bloom. Hand-rolled rather than
// routed through an unexported go-ethereum helper, since Bloom's own
// bit-setting method isn't part of its public API; the algorithm
// itself is exactly what produces a mainnet-compatible logs bloom.
func addToBloom(bloom *types.Bloom, data []byte) {
	hash := crypto.Keccak256(data)
	for i := 0; i < 6; i += 2 {
		bitIndex := (uint(hash[i+1]) + (uint(hash[i]) << 8)) & 2047
		byteIdx := len(bloom) - 1 - int(bitIndex/8)
		bloom[byteIdx] |= byte(1 << (bitIndex % 8))
	}
}

// ComputeBloom ORs every (address, topic) of every log across receipts
// into one bloom filter (spec §3 Receipt invariant, §8 property 7).
func ComputeBloom(receipts []*types.Receipt) types.Bloom {
	var bloom types.Bloom
	for _, r := range receipts {
		for _, log := range r.Logs {
			addToBloom(&bloom, log.Address.Bytes())
			for _, topic := range log.Topics {
				addToBloom(&bloom, topic.Bytes())
			}
		}
	}
	return bloom
}

// ReceiptBloom computes the bloom for a single receipt's logs, used to
// verify "receipt bloom OR-ed with block bloom equals block bloom".
func ReceiptBloom(receipt *types.Receipt) types.Bloom {
	return ComputeBloom([]*types.Receipt{receipt})
}

// BloomOr ORs b into a, in place.
func BloomOr(a *types.Bloom, b types.Bloom) {
	for i := range a {
		a[i] |= b[i]
	}
}
