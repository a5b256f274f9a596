// internal/codec/codec.go
// Package codec maps application-level wish and seal records to and from the
// opaque byte payloads the contract persists. Payloads are UTF-8 JSON; the
// read path additionally accepts hex-prefixed text, which some providers
// return in place of raw bytes.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TypeWish is the discriminator value marking a payload as a wish. Legacy seal
// payloads predate the discriminator and carry no type field at all.
const TypeWish = "wish"

// ErrMalformed marks a payload that is not valid UTF-8 JSON. Batch callers
// skip such records instead of aborting the listing.
var ErrMalformed = errors.New("malformed payload")

// Envelope is the JSON shape stored on-chain. Wish payloads use the type,
// nickname, fileIds, likes and donations fields; legacy seal payloads use
// unlockTime and mediaIds instead. CreatedAt is client-supplied milliseconds,
// UnlockTime is seconds.
type Envelope struct {
	Type       string   `json:"type,omitempty"`
	Nickname   string   `json:"nickname,omitempty"`
	Content    string   `json:"content"`
	FileIDs    []string `json:"fileIds,omitempty"`
	Creator    string   `json:"creator"`
	CreatedAt  int64    `json:"createdAt"`
	Likes      int64    `json:"likes"`
	Donations  int64    `json:"donations"`
	UnlockTime int64    `json:"unlockTime,omitempty"`
	MediaIDs   []string `json:"mediaIds,omitempty"`
}

// IsWish reports whether the envelope carries the wish discriminator.
func (e Envelope) IsWish() bool {
	return e.Type == TypeWish
}

// Encode serializes an envelope to the UTF-8 JSON bytes submitted on-chain.
// Every populated field is included verbatim; there is no schema versioning.
func Encode(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Decode parses a stored payload back into an envelope. Hex-prefixed input is
// converted to its underlying bytes first. Returns ErrMalformed (wrapped) when
// the payload is not valid JSON.
func Decode(data []byte) (Envelope, error) {
	raw := data
	if s := string(data); strings.HasPrefix(s, "0x") {
		b, err := hexutil.Decode(s)
		if err != nil {
			return Envelope{}, fmt.Errorf("decode hex payload: %w", ErrMalformed)
		}
		raw = b
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode payload: %w", ErrMalformed)
	}
	return env, nil
}

// Result is the per-item outcome of a batch decode. Err is non-nil for
// records that could not be decoded; the batch itself never fails.
type Result struct {
	Envelope Envelope
	Err      error
}

// DecodeAll decodes every payload in order, one Result per input. A corrupt
// record yields a Result with Err set and does not affect its neighbours.
func DecodeAll(payloads [][]byte) []Result {
	results := make([]Result, len(payloads))
	for i, p := range payloads {
		env, err := Decode(p)
		results[i] = Result{Envelope: env, Err: err}
	}
	return results
}

// Unlocked reports whether a seal with the given unlock time (seconds) is open
// at the supplied wall-clock instant. The boundary is inclusive: a seal
// unlocks exactly at its unlock time.
func Unlocked(unlockTimeSec int64, now time.Time) bool {
	return unlockTimeSec*1000 <= now.UnixMilli()
}
