package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Difficulty is the number of leading zero hex characters a block hash needs.
const Difficulty = 2

// GenesisPreviousHash is the previous-hash sentinel of the genesis block.
var GenesisPreviousHash = strings.Repeat("0", 64)

var difficultyPrefix = strings.Repeat("0", Difficulty)

// GenesisSeed is hashed to produce the genesis block hash.
const GenesisSeed = "GENESIS_BLOCK"

// MeetsDifficulty reports whether hash satisfies the proof-of-work predicate.
func MeetsDifficulty(hash string) bool {
	return strings.HasPrefix(hash, difficultyPrefix)
}

// Genesis synthesizes the first block of a new chain.
func Genesis(now time.Time) Block {
	return Block{
		Index:        0,
		Timestamp:    MillisTimestamp(now),
		Data:         []Transaction{},
		PreviousHash: GenesisPreviousHash,
		Hash:         HashString(GenesisSeed),
		Nonce:        0,
	}
}

// Mine builds the block that follows previous, searching nonces from zero
// until the digest meets Difficulty. The caller appends the result.
func Mine(pending []Transaction, previous Block, now time.Time) (Block, error) {
	data := make([]Transaction, len(pending))
	copy(data, pending)

	b := Block{
		Index:        previous.Index + 1,
		Timestamp:    MillisTimestamp(now),
		Data:         data,
		PreviousHash: previous.Hash,
	}

	payload, err := EncodePayload(data)
	if err != nil {
		return Block{}, err
	}

	for nonce := int64(0); ; nonce++ {
		hash := digestEncoded(b.Index, b.PreviousHash, b.Timestamp, payload, nonce)
		if MeetsDifficulty(hash) {
			b.Nonce = nonce
			b.Hash = hash
			return b, nil
		}
	}
}

// ErrChainInvalid is matched by every *ChainError.
var ErrChainInvalid = errors.New("chain invalid")

// ChainError reports the first block that fails verification.
type ChainError struct {
	Index  int64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("block %d: %s", e.Index, e.Reason)
}

// Is lets errors.Is match ErrChainInvalid.
func (e *ChainError) Is(target error) bool {
	return target == ErrChainInvalid
}

// Verify checks index continuity, previous-hash linkage, digest integrity and
// proof of work for every block after genesis.
func Verify(blocks []Block) error {
	if len(blocks) == 0 {
		return ErrEmptyLedger
	}
	if blocks[0].Index != 0 {
		return &ChainError{Index: blocks[0].Index, Reason: "chain does not start at index 0"}
	}
	for i := 1; i < len(blocks); i++ {
		b, prev := blocks[i], blocks[i-1]
		if b.Index != prev.Index+1 {
			return &ChainError{Index: b.Index, Reason: fmt.Sprintf("index does not follow %d", prev.Index)}
		}
		if b.PreviousHash != prev.Hash {
			return &ChainError{Index: b.Index, Reason: "previous hash does not match"}
		}
		digest, err := BlockDigest(b)
		if err != nil {
			return &ChainError{Index: b.Index, Reason: err.Error()}
		}
		if digest != b.Hash {
			return &ChainError{Index: b.Index, Reason: "hash does not match contents"}
		}
		if !MeetsDifficulty(b.Hash) {
			return &ChainError{Index: b.Index, Reason: "hash does not meet difficulty"}
		}
	}
	return nil
}
