// internal/model/wish.go
// Package model defines the data structures used throughout the wish data service.
// These structures represent the core domain objects for wishes, chain records, and media files.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWishID is returned when an identifier matches neither the
// transaction-hash nor the index-token scheme.
var ErrInvalidWishID = errors.New("invalid wish id")

// MethodCallRecord is the raw on-chain entry every wish and legacy seal is
// decoded from. The contract stores an append-only log of these tuples; the
// application-level meaning lives entirely in the Data payload.
type MethodCallRecord struct {
	Caller     string    `json:"caller"`           // Submitting account address
	MethodName string    `json:"methodName"`       // Contract-side method label
	Data       []byte    `json:"data"`             // Opaque payload bytes
	Timestamp  time.Time `json:"timestamp"`        // Chain-assigned block time
	TxHash     string    `json:"txHash,omitempty"` // Storing transaction, known only for event-scanned records
}

// WishIDKind discriminates the two identifier schemes a wish can carry.
type WishIDKind string

const (
	WishIDTx    WishIDKind = "tx"    // Transaction hash of the storing transaction
	WishIDIndex WishIDKind = "index" // Position in the contract's call log
)

// indexIDPrefix is the literal prefix of the synthetic index-based token.
const indexIDPrefix = "method_call_"

// WishID is a tagged identifier for a wish. Exactly one of TxHash or Index is
// meaningful depending on Kind.
type WishID struct {
	Kind   WishIDKind `json:"kind"`
	TxHash string     `json:"txHash,omitempty"`
	Index  uint64     `json:"index,omitempty"`
}

// ParseWishID parses the string form of a wish identifier. Index-based tokens
// use the "method_call_<n>" format; everything else must look like a
// 0x-prefixed transaction hash.
func ParseWishID(s string) (WishID, error) {
	if rest, ok := strings.CutPrefix(s, indexIDPrefix); ok {
		n, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return WishID{}, fmt.Errorf("%w: %q", ErrInvalidWishID, s)
		}
		return WishID{Kind: WishIDIndex, Index: n}, nil
	}
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return WishID{}, fmt.Errorf("%w: %q is neither a transaction hash nor an index token", ErrInvalidWishID, s)
	}
	return WishID{Kind: WishIDTx, TxHash: s}, nil
}

// String renders the identifier in its canonical string form.
func (id WishID) String() string {
	if id.Kind == WishIDIndex {
		return indexIDPrefix + strconv.FormatUint(id.Index, 10)
	}
	return id.TxHash
}

// Wish represents a decoded application record ready for presentation.
// Content and Creator are immutable once written; Likes and RewardsWei are
// read from separate contract accessors and change only through dedicated
// contract operations.
type Wish struct {
	ID         string    `json:"id"`                // Transaction hash or index token
	Nickname   string    `json:"nickname"`          // Display name, may be the anonymous default
	Content    string    `json:"content"`           // Wish text, required
	FileIDs    []string  `json:"fileIds,omitempty"` // References into the local media store, in upload order
	Creator    string    `json:"creator"`           // Submitting account address
	CreatedAt  time.Time `json:"createdAt"`         // Client-supplied creation time from the payload
	Likes      int64     `json:"likes"`             // Live per-address like counter
	RewardsWei string    `json:"rewardsWei"`        // Live per-address reward total, base units as a decimal string
}

// Seal represents the legacy time-locked variant of a stored record.
// Unlocked is recomputed against wall-clock time at every decode.
type Seal struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	UnlockTime time.Time `json:"unlockTime"`
	MediaIDs   []string  `json:"mediaIds,omitempty"`
	Creator    string    `json:"creator"`
	CreatedAt  time.Time `json:"createdAt"`
	Unlocked   bool      `json:"unlocked"`
}

// MediaKind is the coarse category of an uploaded file.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// MediaFile represents a stored binary attachment.
// The Data payload is owned exclusively by the media store and never appears
// in API responses; SealID is empty at upload time and set by a later
// association call once the on-chain id is known.
type MediaFile struct {
	ID         string    `json:"id" db:"id"`                 // Generated unique token
	Name       string    `json:"name" db:"name"`             // Original file name
	Size       int64     `json:"size" db:"size"`             // Size in bytes
	MimeType   string    `json:"mimeType" db:"mime_type"`    // Full MIME type
	Kind       MediaKind `json:"type" db:"kind"`             // Coarse category
	Data       []byte    `json:"-" db:"data"`                // Raw binary payload
	UploadedAt time.Time `json:"uploadedAt" db:"uploaded_at"` // Set once at upload
	SealID     string    `json:"sealId,omitempty" db:"seal_id"` // Back-reference to the owning wish
}

// CreateWishRequest represents the request body for creating a wish.
type CreateWishRequest struct {
	Nickname string   `json:"nickname,omitempty"` // Optional; defaults to the anonymous label
	Content  string   `json:"content"`            // Required wish text
	FileIDs  []string `json:"fileIds,omitempty"`  // Previously uploaded attachments
}

// CreateWishResponse represents the response body for creating a wish.
type CreateWishResponse struct {
	Data Wish `json:"data"`
}

// ListWishesResponse represents the response body for listing wishes.
type ListWishesResponse struct {
	Data []Wish `json:"data"`
}

// GetWishResponse represents the response body for fetching one wish.
type GetWishResponse struct {
	Data Wish `json:"data"`
}

// LikeWishRequest represents the request body for liking a wish.
type LikeWishRequest struct {
	Creator    string `json:"creator"`    // Address of the wish creator
	Multiplier int64  `json:"multiplier"` // Positive like multiplier; fee scales with it
}

// RewardWishRequest represents the request body for rewarding a wish.
type RewardWishRequest struct {
	Creator string `json:"creator"` // Address of the wish creator
	Amount  string `json:"amount"`  // Reward in whole-token decimal units, e.g. "0.25"
}

// TxResponse represents the response body for operations that only yield a
// transaction hash.
type TxResponse struct {
	Data TxData `json:"data"`
}

// TxData contains the hash of a submitted transaction.
type TxData struct {
	TxHash string `json:"txHash"`
}

// UploadMediaResponse represents the response body for uploading a media file.
type UploadMediaResponse struct {
	Data MediaFile `json:"data"`
}

// ListMediaResponse represents the response body for listing media by seal id.
type ListMediaResponse struct {
	Data []MediaFile `json:"data"`
}
