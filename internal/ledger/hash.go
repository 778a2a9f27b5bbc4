package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// HashString returns the lowercase hex SHA-256 of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// EncodePayload serializes block data the way it enters the digest: compact
// JSON without HTML escaping. A nil payload encodes as an empty array.
func EncodePayload(data []Transaction) ([]byte, error) {
	if data == nil {
		data = []Transaction{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("encode block payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Digest computes the block hash over index, previous hash, timestamp,
// serialized payload and nonce, concatenated in that order.
func Digest(index int64, previousHash string, ts Timestamp, data []Transaction, nonce int64) (string, error) {
	payload, err := EncodePayload(data)
	if err != nil {
		return "", err
	}
	return digestEncoded(index, previousHash, ts, payload, nonce), nil
}

func digestEncoded(index int64, previousHash string, ts Timestamp, payload []byte, nonce int64) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(index, 10)))
	h.Write([]byte(previousHash))
	h.Write([]byte(ts.String()))
	h.Write(payload)
	h.Write([]byte(strconv.FormatInt(nonce, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// BlockDigest recomputes the digest of b from its contents.
func BlockDigest(b Block) (string, error) {
	return Digest(b.Index, b.PreviousHash, b.Timestamp, b.Data, b.Nonce)
}

// customerSalt is mixed into customer identifiers before hashing so invoices
// never carry a raw email or customer id.
const customerSalt = "SALT_SECRET_KEY"

// HashCustomerID returns the pseudonymous id stored on invoices.
func HashCustomerID(customerID string) string {
	return HashString(customerID + customerSalt)
}

// ContentID derives a CIDv0-shaped content identifier from content. It is a
// stable label for attached media, not a real IPFS multihash.
func ContentID(content []byte) string {
	sum := sha256.Sum256(content)
	return "Qm" + hex.EncodeToString(sum[:])[:44]
}
