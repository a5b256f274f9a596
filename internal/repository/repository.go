// internal/repository/repository.go
// Package repository composes the chain gateway, the payload codec and the
// local media store into domain operations: create wish, list wishes, fetch
// one wish, like, reward, and the legacy seal listing.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wishplanet/wishplanet-go/internal/chain"
	"github.com/wishplanet/wishplanet-go/internal/codec"
	"github.com/wishplanet/wishplanet-go/internal/event"
	"github.com/wishplanet/wishplanet-go/internal/media"
	"github.com/wishplanet/wishplanet-go/internal/metrics"
	"github.com/wishplanet/wishplanet-go/internal/model"
	"github.com/wishplanet/wishplanet-go/internal/schema"
)

// AnonymousNickname is used when a wish is created without a display name.
const AnonymousNickname = "Anonymous"

// ErrNotWish is returned when a requested record decodes cleanly but does not
// carry the wish discriminator.
var ErrNotWish = errors.New("record is not a wish")

// ErrInvalidAddress is returned for malformed account addresses.
var ErrInvalidAddress = errors.New("invalid account address")

// ErrSchemaReject marks an envelope that failed schema validation before
// submission.
var ErrSchemaReject = errors.New("wish envelope rejected")

// Chain is the gateway surface the repository depends on. *chain.Gateway
// implements it; tests substitute a mock.
type Chain interface {
	Account() (common.Address, error)
	Submit(ctx context.Context, payload []byte) (string, error)
	ReadAllRecords(ctx context.Context) ([]model.MethodCallRecord, error)
	ReadRecordByIndex(ctx context.Context, index uint64) (model.MethodCallRecord, error)
	ReadRecordByTx(ctx context.Context, txHash common.Hash) (model.MethodCallRecord, error)
	ReadEventLogsLegacy(ctx context.Context, account common.Address) ([]model.MethodCallRecord, error)
	Likes(ctx context.Context, wisher common.Address) (int64, error)
	TotalRewards(ctx context.Context, wisher common.Address) (*big.Int, error)
	Like(ctx context.Context, wisher common.Address, multiplier int64) (string, error)
	Reward(ctx context.Context, wisher common.Address, amountWei *big.Int) (string, error)
}

// Upload is one attachment handed to CreateWish. The data must be fully read
// by the caller before the repository touches the media store.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Repository offers the domain operations of the wish board.
type Repository struct {
	chain        Chain
	media        media.Store
	validator    *schema.Validator
	publisher    event.Publisher
	metrics      *metrics.Metrics
	log          *slog.Logger
	maxMediaSize int64
}

// New wires a repository. publisher may be the noop publisher; log may be nil.
func New(ch Chain, store media.Store, validator *schema.Validator, publisher event.Publisher, m *metrics.Metrics, maxMediaSize int64, log *slog.Logger) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{
		chain:        ch,
		media:        store,
		validator:    validator,
		publisher:    publisher,
		metrics:      m,
		log:          log,
		maxMediaSize: maxMediaSize,
	}
}

// CreateWish validates and uploads the attachments, encodes the wish
// envelope, submits it on-chain, and links the uploads to the resulting
// transaction hash. The session check runs before any upload so a missing
// wallet cannot orphan media. Linking is best-effort: a failure there leaves
// an unlinked attachment and is logged, not unwound.
func (r *Repository) CreateWish(ctx context.Context, nickname, content string, uploads []Upload) (model.Wish, error) {
	account, err := r.chain.Account()
	if err != nil {
		return model.Wish{}, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return model.Wish{}, fmt.Errorf("%w: wish content is required", ErrSchemaReject)
	}
	if nickname == "" {
		nickname = AnonymousNickname
	}

	// Validate every upload before any store write.
	files := make([]model.MediaFile, len(uploads))
	for i, up := range uploads {
		kind, err := media.ValidateFile(up.Name, up.MimeType, int64(len(up.Data)), r.maxMediaSize)
		if err != nil {
			return model.Wish{}, err
		}
		files[i] = model.MediaFile{
			ID:         media.NewID(),
			Name:       up.Name,
			Size:       int64(len(up.Data)),
			MimeType:   up.MimeType,
			Kind:       kind,
			Data:       up.Data,
			UploadedAt: time.Now().UTC(),
		}
	}

	// Uploads run concurrently and are awaited jointly.
	if err := r.storeFiles(ctx, files); err != nil {
		return model.Wish{}, err
	}

	fileIDs := make([]string, len(files))
	for i, f := range files {
		fileIDs[i] = f.ID
	}
	return r.submitWish(ctx, account, nickname, content, fileIDs)
}

// CreateWishWithFiles creates a wish referencing attachments that were
// uploaded beforehand through the media endpoint. Every referenced file must
// exist; a dangling reference fails the whole call before submission.
func (r *Repository) CreateWishWithFiles(ctx context.Context, nickname, content string, fileIDs []string) (model.Wish, error) {
	account, err := r.chain.Account()
	if err != nil {
		return model.Wish{}, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return model.Wish{}, fmt.Errorf("%w: wish content is required", ErrSchemaReject)
	}
	if nickname == "" {
		nickname = AnonymousNickname
	}

	for _, id := range fileIDs {
		if _, err := r.media.GetFile(ctx, id); err != nil {
			return model.Wish{}, fmt.Errorf("attachment %s: %w", id, err)
		}
	}
	return r.submitWish(ctx, account, nickname, content, fileIDs)
}

// submitWish is the shared tail of both create paths: envelope construction,
// schema validation, on-chain submission, and attachment linking.
func (r *Repository) submitWish(ctx context.Context, account common.Address, nickname, content string, fileIDs []string) (model.Wish, error) {
	now := time.Now().UTC()
	env := codec.Envelope{
		Type:      codec.TypeWish,
		Nickname:  nickname,
		Content:   content,
		FileIDs:   fileIDs,
		Creator:   account.Hex(),
		CreatedAt: now.UnixMilli(),
	}
	if err := r.validator.Validate("wish", env); err != nil {
		return model.Wish{}, fmt.Errorf("%w: %v", ErrSchemaReject, err)
	}
	payload, err := codec.Encode(env)
	if err != nil {
		return model.Wish{}, err
	}

	start := time.Now()
	txHash, err := r.chain.Submit(ctx, payload)
	r.observeChain("submit", start, err)
	if err != nil {
		return model.Wish{}, err
	}

	r.linkFiles(ctx, fileIDs, txHash)

	wish := model.Wish{
		ID:         txHash,
		Nickname:   nickname,
		Content:    content,
		FileIDs:    fileIDs,
		Creator:    account.Hex(),
		CreatedAt:  now,
		RewardsWei: "0",
	}

	if err := r.publisher.PublishWishCreated(ctx, wish); err != nil {
		r.log.Warn("wish created event publish failed", slog.String("id", wish.ID), slog.String("error", err.Error()))
	}
	return wish, nil
}

// UploadMedia validates and stores one standalone attachment. sealID may be
// empty; the file can be linked to a wish later.
func (r *Repository) UploadMedia(ctx context.Context, up Upload, sealID string) (model.MediaFile, error) {
	kind, err := media.ValidateFile(up.Name, up.MimeType, int64(len(up.Data)), r.maxMediaSize)
	if err != nil {
		return model.MediaFile{}, err
	}
	file := model.MediaFile{
		ID:         media.NewID(),
		Name:       up.Name,
		Size:       int64(len(up.Data)),
		MimeType:   up.MimeType,
		Kind:       kind,
		Data:       up.Data,
		UploadedAt: time.Now().UTC(),
		SealID:     sealID,
	}

	start := time.Now()
	err = r.media.StoreFile(ctx, file)
	r.observeMedia("store", start, err)
	if err != nil {
		return model.MediaFile{}, err
	}
	if err := r.publisher.PublishMediaStored(ctx, file); err != nil {
		r.log.Warn("media stored event publish failed", slog.String("id", file.ID), slog.String("error", err.Error()))
	}
	return file, nil
}

// GetMedia fetches one stored file, payload included.
func (r *Repository) GetMedia(ctx context.Context, id string) (*model.MediaFile, error) {
	start := time.Now()
	file, err := r.media.GetFile(ctx, id)
	r.observeMedia("get", start, err)
	return file, err
}

// GetSealMedia lists the files linked to one wish or seal, in upload order.
func (r *Repository) GetSealMedia(ctx context.Context, sealID string) ([]model.MediaFile, error) {
	start := time.Now()
	files, err := r.media.GetFilesBySeal(ctx, sealID)
	r.observeMedia("list", start, err)
	return files, err
}

// DeleteMedia removes one stored file. Envelope references to the file are
// not rewritten; readers tolerate dangling ids.
func (r *Repository) DeleteMedia(ctx context.Context, id string) error {
	start := time.Now()
	err := r.media.DeleteFile(ctx, id)
	r.observeMedia("delete", start, err)
	return err
}

// storeFiles uploads all files concurrently and returns the first error.
func (r *Repository) storeFiles(ctx context.Context, files []model.MediaFile) error {
	var wg sync.WaitGroup
	errs := make([]error, len(files))
	for i := range files {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.media.StoreFile(ctx, files[i]); err != nil {
				errs[i] = fmt.Errorf("store %s: %w", files[i].Name, err)
				return
			}
			if err := r.publisher.PublishMediaStored(ctx, files[i]); err != nil {
				r.log.Warn("media stored event publish failed", slog.String("id", files[i].ID), slog.String("error", err.Error()))
			}
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// linkFiles associates uploaded files with the storing transaction,
// concurrently and best-effort.
func (r *Repository) linkFiles(ctx context.Context, fileIDs []string, txHash string) {
	var wg sync.WaitGroup
	for _, id := range fileIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.media.UpdateSealID(ctx, id, txHash); err != nil {
				r.log.Warn("attachment left unlinked",
					slog.String("fileId", id),
					slog.String("tx", txHash),
					slog.String("error", err.Error()))
			}
		}(id)
	}
	wg.Wait()
}

// GetAllWishes reads the full on-chain log, keeps the records that decode to
// wish envelopes, and augments each with live counters. Corrupt records are
// skipped, never fatal.
func (r *Repository) GetAllWishes(ctx context.Context) ([]model.Wish, error) {
	start := time.Now()
	records, err := r.chain.ReadAllRecords(ctx)
	r.observeChain("read_all", start, err)
	if err != nil {
		return nil, err
	}
	return r.wishesFromRecords(ctx, records, common.Address{}), nil
}

// GetUserWishes lists one account's wishes. When the primary enumeration
// fails, it falls back to the bounded event-log scan and re-filters through
// the same decode path.
func (r *Repository) GetUserWishes(ctx context.Context, creator string) ([]model.Wish, error) {
	if !common.IsHexAddress(creator) {
		return nil, fmt.Errorf("%q: %w", creator, ErrInvalidAddress)
	}
	addr := common.HexToAddress(creator)

	start := time.Now()
	records, err := r.chain.ReadAllRecords(ctx)
	r.observeChain("read_all", start, err)
	if err != nil {
		r.log.Warn("primary enumeration failed, scanning event logs", slog.String("error", err.Error()))
		start = time.Now()
		records, err = r.chain.ReadEventLogsLegacy(ctx, addr)
		r.observeChain("event_scan", start, err)
		if err != nil {
			return nil, err
		}
	}
	return r.wishesFromRecords(ctx, records, addr), nil
}

// GetWish fetches one wish by its identifier, either scheme.
func (r *Repository) GetWish(ctx context.Context, id string) (model.Wish, error) {
	wid, err := model.ParseWishID(id)
	if err != nil {
		return model.Wish{}, err
	}

	var record model.MethodCallRecord
	switch wid.Kind {
	case model.WishIDIndex:
		record, err = r.chain.ReadRecordByIndex(ctx, wid.Index)
	default:
		record, err = r.chain.ReadRecordByTx(ctx, common.HexToHash(wid.TxHash))
	}
	if err != nil {
		return model.Wish{}, err
	}

	env, err := codec.Decode(record.Data)
	if err != nil {
		r.countDecode(false)
		return model.Wish{}, err
	}
	r.countDecode(true)
	if !env.IsWish() {
		return model.Wish{}, fmt.Errorf("%s: %w", id, ErrNotWish)
	}

	wish := r.buildWish(ctx, wid.String(), record, env)
	return wish, nil
}

// LikeWish submits a paid like for a wish creator. The fee is contract-
// determined from the multiplier, never computed here.
func (r *Repository) LikeWish(ctx context.Context, creator string, multiplier int64) (string, error) {
	if !common.IsHexAddress(creator) {
		return "", fmt.Errorf("%q: %w", creator, ErrInvalidAddress)
	}
	if multiplier <= 0 {
		return "", fmt.Errorf("multiplier must be positive, got %d", multiplier)
	}

	start := time.Now()
	txHash, err := r.chain.Like(ctx, common.HexToAddress(creator), multiplier)
	r.observeChain("like", start, err)
	if err != nil {
		return "", err
	}
	if err := r.publisher.PublishWishLiked(ctx, creator, txHash); err != nil {
		r.log.Warn("wish liked event publish failed", slog.String("tx", txHash), slog.String("error", err.Error()))
	}
	return txHash, nil
}

// RewardWish submits a paid reward for a wish creator. amount is a
// whole-token decimal string converted to base units.
func (r *Repository) RewardWish(ctx context.Context, creator, amount string) (string, error) {
	if !common.IsHexAddress(creator) {
		return "", fmt.Errorf("%q: %w", creator, ErrInvalidAddress)
	}
	wei, err := chain.WeiFromDecimal(amount)
	if err != nil {
		return "", err
	}

	start := time.Now()
	txHash, err := r.chain.Reward(ctx, common.HexToAddress(creator), wei)
	r.observeChain("reward", start, err)
	if err != nil {
		return "", err
	}
	if err := r.publisher.PublishWishRewarded(ctx, creator, txHash); err != nil {
		r.log.Warn("wish rewarded event publish failed", slog.String("tx", txHash), slog.String("error", err.Error()))
	}
	return txHash, nil
}

// GetSeals lists the legacy time-locked records. Seals predate the wish
// discriminator: any record that decodes cleanly, is not a wish, and carries
// an unlock time is treated as a seal. Unlocked reflects wall-clock time at
// this read.
func (r *Repository) GetSeals(ctx context.Context) ([]model.Seal, error) {
	records, err := r.chain.ReadAllRecords(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seals := []model.Seal{}
	for i, res := range codec.DecodeAll(recordPayloads(records)) {
		if res.Err != nil {
			r.countDecode(false)
			continue
		}
		r.countDecode(true)
		env, record := res.Envelope, records[i]
		if env.IsWish() || env.UnlockTime == 0 {
			continue
		}
		id := model.WishID{Kind: model.WishIDIndex, Index: uint64(i)}
		seals = append(seals, model.Seal{
			ID:         id.String(),
			Content:    env.Content,
			UnlockTime: time.Unix(env.UnlockTime, 0).UTC(),
			MediaIDs:   env.MediaIDs,
			Creator:    env.Creator,
			CreatedAt:  payloadTime(env.CreatedAt, record.Timestamp),
			Unlocked:   codec.Unlocked(env.UnlockTime, now),
		})
	}
	return seals, nil
}

// wishesFromRecords is the single decode/filter path shared by the primary
// enumeration and the event-scan fallback, so both behave identically. An
// empty filter address keeps every creator. Results are newest first.
func (r *Repository) wishesFromRecords(ctx context.Context, records []model.MethodCallRecord, filter common.Address) []model.Wish {
	wishes := []model.Wish{}
	for i, res := range codec.DecodeAll(recordPayloads(records)) {
		if res.Err != nil {
			r.countDecode(false)
			r.log.Debug("skipping undecodable record", slog.Int("index", i))
			continue
		}
		r.countDecode(true)
		env, record := res.Envelope, records[i]
		if !env.IsWish() {
			continue
		}
		if (filter != common.Address{}) && common.HexToAddress(record.Caller) != filter {
			continue
		}
		// Index tokens are positions in the full call log. Event-scanned
		// records carry their storing transaction instead; a subset position
		// would collide with the primary enumeration's numbering.
		id := model.WishID{Kind: model.WishIDTx, TxHash: record.TxHash}
		if record.TxHash == "" {
			id = model.WishID{Kind: model.WishIDIndex, Index: uint64(i)}
		}
		wishes = append(wishes, r.buildWish(ctx, id.String(), record, env))
	}
	for i, j := 0, len(wishes)-1; i < j; i, j = i+1, j-1 {
		wishes[i], wishes[j] = wishes[j], wishes[i]
	}
	return wishes
}

// buildWish assembles the presentation record and augments it with live
// counters. A counter read failure keeps the embedded values and logs.
func (r *Repository) buildWish(ctx context.Context, id string, record model.MethodCallRecord, env codec.Envelope) model.Wish {
	nickname := env.Nickname
	if nickname == "" {
		nickname = AnonymousNickname
	}
	creator := env.Creator
	if creator == "" {
		creator = record.Caller
	}

	wish := model.Wish{
		ID:         id,
		Nickname:   nickname,
		Content:    env.Content,
		FileIDs:    env.FileIDs,
		Creator:    creator,
		CreatedAt:  payloadTime(env.CreatedAt, record.Timestamp),
		Likes:      env.Likes,
		RewardsWei: big.NewInt(env.Donations).String(),
	}

	addr := common.HexToAddress(creator)
	if likes, err := r.chain.Likes(ctx, addr); err != nil {
		r.log.Warn("like counter read failed", slog.String("id", id), slog.String("error", err.Error()))
	} else {
		wish.Likes = likes
	}
	if rewards, err := r.chain.TotalRewards(ctx, addr); err != nil {
		r.log.Warn("reward counter read failed", slog.String("id", id), slog.String("error", err.Error()))
	} else {
		wish.RewardsWei = rewards.String()
	}
	return wish
}

func (r *Repository) observeMedia(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.MediaOperationTotal.WithLabelValues(op, status).Inc()
	r.metrics.MediaOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (r *Repository) observeChain(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.ChainOperationTotal.WithLabelValues(op, status).Inc()
	r.metrics.ChainOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (r *Repository) countDecode(ok bool) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	r.metrics.DecodeTotal.WithLabelValues(status).Inc()
}

// recordPayloads projects the raw byte payloads out of a record batch.
func recordPayloads(records []model.MethodCallRecord) [][]byte {
	payloads := make([][]byte, len(records))
	for i, record := range records {
		payloads[i] = record.Data
	}
	return payloads
}

// payloadTime prefers the client-supplied creation time embedded in the
// payload and falls back to the chain-assigned block time.
func payloadTime(createdAtMillis int64, chainTime time.Time) time.Time {
	if createdAtMillis > 0 {
		return time.UnixMilli(createdAtMillis).UTC()
	}
	return chainTime
}
