// internal/repository/repository_test.go
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wishplanet/wishplanet-go/internal/chain"
	"github.com/wishplanet/wishplanet-go/internal/codec"
	"github.com/wishplanet/wishplanet-go/internal/event"
	"github.com/wishplanet/wishplanet-go/internal/media"
	"github.com/wishplanet/wishplanet-go/internal/model"
	"github.com/wishplanet/wishplanet-go/internal/schema"
)

var testAccount = common.HexToAddress("0xABC0000000000000000000000000000000000abc")

const testTxHash = "0x1111111111111111111111111111111111111111111111111111111111111111"

type likeCall struct {
	wisher     common.Address
	multiplier int64
}

type rewardCall struct {
	wisher common.Address
	wei    *big.Int
}

type mockChain struct {
	account    common.Address
	accountErr error

	records []model.MethodCallRecord
	readErr error
	byTx    map[common.Hash]model.MethodCallRecord

	legacy    []model.MethodCallRecord
	legacyErr error
	scanned   bool

	submitted [][]byte
	submitErr error

	likes      map[common.Address]int64
	rewards    map[common.Address]*big.Int
	counterErr error

	likeCalls   []likeCall
	rewardCalls []rewardCall
}

func (m *mockChain) Account() (common.Address, error) {
	if m.accountErr != nil {
		return common.Address{}, m.accountErr
	}
	return m.account, nil
}

func (m *mockChain) Submit(ctx context.Context, payload []byte) (string, error) {
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.submitted = append(m.submitted, payload)
	return testTxHash, nil
}

func (m *mockChain) ReadAllRecords(ctx context.Context) ([]model.MethodCallRecord, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.records, nil
}

func (m *mockChain) ReadRecordByIndex(ctx context.Context, index uint64) (model.MethodCallRecord, error) {
	if index >= uint64(len(m.records)) {
		return model.MethodCallRecord{}, chain.ErrNotFound
	}
	return m.records[index], nil
}

func (m *mockChain) ReadRecordByTx(ctx context.Context, txHash common.Hash) (model.MethodCallRecord, error) {
	record, ok := m.byTx[txHash]
	if !ok {
		return model.MethodCallRecord{}, chain.ErrNotFound
	}
	return record, nil
}

func (m *mockChain) ReadEventLogsLegacy(ctx context.Context, account common.Address) ([]model.MethodCallRecord, error) {
	m.scanned = true
	if m.legacyErr != nil {
		return nil, m.legacyErr
	}
	return m.legacy, nil
}

func (m *mockChain) Likes(ctx context.Context, wisher common.Address) (int64, error) {
	if m.counterErr != nil {
		return 0, m.counterErr
	}
	return m.likes[wisher], nil
}

func (m *mockChain) TotalRewards(ctx context.Context, wisher common.Address) (*big.Int, error) {
	if m.counterErr != nil {
		return nil, m.counterErr
	}
	if r, ok := m.rewards[wisher]; ok {
		return r, nil
	}
	return big.NewInt(0), nil
}

func (m *mockChain) Like(ctx context.Context, wisher common.Address, multiplier int64) (string, error) {
	m.likeCalls = append(m.likeCalls, likeCall{wisher: wisher, multiplier: multiplier})
	return testTxHash, nil
}

func (m *mockChain) Reward(ctx context.Context, wisher common.Address, amountWei *big.Int) (string, error) {
	m.rewardCalls = append(m.rewardCalls, rewardCall{wisher: wisher, wei: amountWei})
	return testTxHash, nil
}

func newTestRepo(t *testing.T, ch *mockChain) (*Repository, media.Store) {
	t.Helper()
	validator, err := schema.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	store := media.NewMemory()
	t.Cleanup(func() { store.Close() })
	return New(ch, store, validator, event.NewNoopPublisher(), nil, 100<<20, nil), store
}

func wishRecord(t *testing.T, caller common.Address, content string, createdAt int64) model.MethodCallRecord {
	t.Helper()
	payload, err := codec.Encode(codec.Envelope{
		Type:      codec.TypeWish,
		Nickname:  "Tester",
		Content:   content,
		Creator:   caller.Hex(),
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return model.MethodCallRecord{
		Caller:     caller.Hex(),
		MethodName: "storeData",
		Data:       payload,
		Timestamp:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestCreateWishSubmitsEncodedEnvelope(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, _ := newTestRepo(t, ch)

	wish, err := repo.CreateWish(context.Background(), "Ann", "peace", nil)
	if err != nil {
		t.Fatalf("CreateWish() error = %v", err)
	}
	if wish.ID != testTxHash {
		t.Errorf("wish.ID = %q, want %q", wish.ID, testTxHash)
	}
	if len(ch.submitted) != 1 {
		t.Fatalf("submitted %d payloads, want 1", len(ch.submitted))
	}

	var got map[string]any
	if err := json.Unmarshal(ch.submitted[0], &got); err != nil {
		t.Fatalf("submitted payload is not JSON: %v", err)
	}
	if got["type"] != "wish" {
		t.Errorf("payload type = %v, want wish", got["type"])
	}
	if got["nickname"] != "Ann" {
		t.Errorf("payload nickname = %v, want Ann", got["nickname"])
	}
	if got["content"] != "peace" {
		t.Errorf("payload content = %v, want peace", got["content"])
	}
	if got["creator"] != testAccount.Hex() {
		t.Errorf("payload creator = %v, want %v", got["creator"], testAccount.Hex())
	}
	if got["likes"] != float64(0) || got["donations"] != float64(0) {
		t.Errorf("payload counters = %v/%v, want 0/0", got["likes"], got["donations"])
	}
}

func TestCreateWishDefaultsNickname(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, _ := newTestRepo(t, ch)

	wish, err := repo.CreateWish(context.Background(), "", "hello", nil)
	if err != nil {
		t.Fatalf("CreateWish() error = %v", err)
	}
	if wish.Nickname != AnonymousNickname {
		t.Errorf("wish.Nickname = %q, want %q", wish.Nickname, AnonymousNickname)
	}
}

func TestCreateWishRequiresConnection(t *testing.T) {
	ch := &mockChain{accountErr: chain.ErrNotConnected}
	repo, store := newTestRepo(t, ch)

	uploads := []Upload{{Name: "pic.png", MimeType: "image/png", Data: []byte("png")}}
	_, err := repo.CreateWish(context.Background(), "Ann", "peace", uploads)
	if !errors.Is(err, chain.ErrNotConnected) {
		t.Fatalf("CreateWish() error = %v, want ErrNotConnected", err)
	}
	// The session check runs before any upload.
	files, err := store.GetFilesBySeal(context.Background(), testTxHash)
	if err != nil || len(files) != 0 {
		t.Errorf("GetFilesBySeal() = %d files, %v, want 0 files", len(files), err)
	}
	if len(ch.submitted) != 0 {
		t.Errorf("submitted %d payloads, want 0", len(ch.submitted))
	}
}

func TestCreateWishValidatesUploadsBeforeStoring(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, store := newTestRepo(t, ch)

	uploads := []Upload{
		{Name: "pic.png", MimeType: "image/png", Data: []byte("png")},
		{Name: "doc.pdf", MimeType: "application/pdf", Data: []byte("pdf")},
	}
	_, err := repo.CreateWish(context.Background(), "Ann", "peace", uploads)
	if !errors.Is(err, media.ErrBadType) {
		t.Fatalf("CreateWish() error = %v, want ErrBadType", err)
	}
	// The rejection happens before either file is written; freshly stored
	// files would still carry an empty seal id.
	stored, err := store.GetFilesBySeal(context.Background(), "")
	if err != nil || len(stored) != 0 {
		t.Errorf("GetFilesBySeal(\"\") = %d files, %v, want 0 files", len(stored), err)
	}
	if len(ch.submitted) != 0 {
		t.Errorf("submitted %d payloads, want 0", len(ch.submitted))
	}
}

func TestCreateWishStoresAndLinksUploads(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, store := newTestRepo(t, ch)

	uploads := []Upload{
		{Name: "a.png", MimeType: "image/png", Data: []byte("aaa")},
		{Name: "b.mp3", MimeType: "audio/mpeg", Data: []byte("bbb")},
	}
	wish, err := repo.CreateWish(context.Background(), "Ann", "peace", uploads)
	if err != nil {
		t.Fatalf("CreateWish() error = %v", err)
	}
	if len(wish.FileIDs) != 2 {
		t.Fatalf("wish.FileIDs has %d entries, want 2", len(wish.FileIDs))
	}

	linked, err := store.GetFilesBySeal(context.Background(), testTxHash)
	if err != nil {
		t.Fatalf("GetFilesBySeal() error = %v", err)
	}
	if len(linked) != 2 {
		t.Fatalf("GetFilesBySeal() returned %d files, want 2", len(linked))
	}
	for _, f := range linked {
		if f.SealID != testTxHash {
			t.Errorf("file %s SealID = %q, want %q", f.ID, f.SealID, testTxHash)
		}
	}
}

func TestCreateWishWithFiles(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, store := newTestRepo(t, ch)

	file := model.MediaFile{ID: media.NewID(), Name: "a.png", Size: 3, MimeType: "image/png", Kind: model.MediaImage, Data: []byte("aaa")}
	if err := store.StoreFile(context.Background(), file); err != nil {
		t.Fatalf("StoreFile() error = %v", err)
	}

	wish, err := repo.CreateWishWithFiles(context.Background(), "Ann", "peace", []string{file.ID})
	if err != nil {
		t.Fatalf("CreateWishWithFiles() error = %v", err)
	}
	if len(wish.FileIDs) != 1 || wish.FileIDs[0] != file.ID {
		t.Errorf("wish.FileIDs = %v, want [%s]", wish.FileIDs, file.ID)
	}

	linked, err := store.GetFilesBySeal(context.Background(), testTxHash)
	if err != nil || len(linked) != 1 {
		t.Fatalf("GetFilesBySeal() = %d files, %v, want 1 file", len(linked), err)
	}
}

func TestCreateWishWithFilesRejectsDanglingReference(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, _ := newTestRepo(t, ch)

	_, err := repo.CreateWishWithFiles(context.Background(), "Ann", "peace", []string{"file_missing"})
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("CreateWishWithFiles() error = %v, want ErrNotFound", err)
	}
	if len(ch.submitted) != 0 {
		t.Errorf("submitted %d payloads, want 0", len(ch.submitted))
	}
}

func TestGetAllWishesSkipsCorruptRecords(t *testing.T) {
	ch := &mockChain{
		account: testAccount,
		records: []model.MethodCallRecord{
			wishRecord(t, testAccount, "first", 1700000000000),
			{Caller: testAccount.Hex(), MethodName: "storeData", Data: []byte("{not json"), Timestamp: time.Now()},
			wishRecord(t, testAccount, "third", 1700000002000),
		},
	}
	repo, _ := newTestRepo(t, ch)

	wishes, err := repo.GetAllWishes(context.Background())
	if err != nil {
		t.Fatalf("GetAllWishes() error = %v", err)
	}
	if len(wishes) != 2 {
		t.Fatalf("GetAllWishes() returned %d wishes, want 2", len(wishes))
	}
	if wishes[0].Content != "third" || wishes[1].Content != "first" {
		t.Errorf("contents = %q, %q, want newest first", wishes[0].Content, wishes[1].Content)
	}
	if wishes[0].ID != "method_call_2" {
		t.Errorf("wishes[0].ID = %q, want method_call_2", wishes[0].ID)
	}
}

func TestGetAllWishesAugmentsCounters(t *testing.T) {
	ch := &mockChain{
		records: []model.MethodCallRecord{wishRecord(t, testAccount, "hi", 1700000000000)},
		likes:   map[common.Address]int64{testAccount: 7},
		rewards: map[common.Address]*big.Int{testAccount: big.NewInt(5000)},
	}
	repo, _ := newTestRepo(t, ch)

	wishes, err := repo.GetAllWishes(context.Background())
	if err != nil {
		t.Fatalf("GetAllWishes() error = %v", err)
	}
	if wishes[0].Likes != 7 {
		t.Errorf("Likes = %d, want 7", wishes[0].Likes)
	}
	if wishes[0].RewardsWei != "5000" {
		t.Errorf("RewardsWei = %q, want 5000", wishes[0].RewardsWei)
	}
}

func TestGetAllWishesKeepsEmbeddedCountersOnReadFailure(t *testing.T) {
	ch := &mockChain{
		records:    []model.MethodCallRecord{wishRecord(t, testAccount, "hi", 1700000000000)},
		counterErr: fmt.Errorf("rpc timeout"),
	}
	repo, _ := newTestRepo(t, ch)

	wishes, err := repo.GetAllWishes(context.Background())
	if err != nil {
		t.Fatalf("GetAllWishes() error = %v", err)
	}
	if len(wishes) != 1 {
		t.Fatalf("GetAllWishes() returned %d wishes, want 1", len(wishes))
	}
	if wishes[0].Likes != 0 || wishes[0].RewardsWei != "0" {
		t.Errorf("counters = %d/%q, want embedded 0/0", wishes[0].Likes, wishes[0].RewardsWei)
	}
}

func TestGetUserWishesFiltersByCreator(t *testing.T) {
	other := common.HexToAddress("0xDEF0000000000000000000000000000000000def")
	ch := &mockChain{
		records: []model.MethodCallRecord{
			wishRecord(t, testAccount, "mine", 1700000000000),
			wishRecord(t, other, "theirs", 1700000001000),
		},
	}
	repo, _ := newTestRepo(t, ch)

	wishes, err := repo.GetUserWishes(context.Background(), testAccount.Hex())
	if err != nil {
		t.Fatalf("GetUserWishes() error = %v", err)
	}
	if len(wishes) != 1 || wishes[0].Content != "mine" {
		t.Fatalf("GetUserWishes() = %+v, want the single record by %s", wishes, testAccount.Hex())
	}
}

func TestGetUserWishesFallsBackToEventScan(t *testing.T) {
	scanned := wishRecord(t, testAccount, "rescued", 1700000000000)
	scanned.TxHash = testTxHash
	ch := &mockChain{
		readErr: fmt.Errorf("execution reverted"),
		legacy:  []model.MethodCallRecord{scanned},
		byTx:    map[common.Hash]model.MethodCallRecord{common.HexToHash(testTxHash): scanned},
	}
	repo, _ := newTestRepo(t, ch)

	wishes, err := repo.GetUserWishes(context.Background(), testAccount.Hex())
	if err != nil {
		t.Fatalf("GetUserWishes() error = %v", err)
	}
	if !ch.scanned {
		t.Error("event-log scan was not attempted after primary failure")
	}
	if len(wishes) != 1 || wishes[0].Content != "rescued" {
		t.Fatalf("GetUserWishes() = %+v, want the scanned record", wishes)
	}
	// Scanned records carry their transaction hash, so the minted id stays
	// valid after the primary enumeration recovers. A subset-relative index
	// token could point at a different record.
	if wishes[0].ID != testTxHash {
		t.Errorf("scanned wish ID = %q, want the transaction hash %q", wishes[0].ID, testTxHash)
	}
	resolved, err := repo.GetWish(context.Background(), wishes[0].ID)
	if err != nil {
		t.Fatalf("GetWish() by scanned id error = %v", err)
	}
	if resolved.Content != "rescued" {
		t.Errorf("GetWish() content = %q, want rescued", resolved.Content)
	}
}

func TestGetUserWishesRejectsBadAddress(t *testing.T) {
	repo, _ := newTestRepo(t, &mockChain{})
	if _, err := repo.GetUserWishes(context.Background(), "not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("GetUserWishes() error = %v, want ErrInvalidAddress", err)
	}
}

func TestGetWishByIndex(t *testing.T) {
	ch := &mockChain{records: []model.MethodCallRecord{wishRecord(t, testAccount, "indexed", 1700000000000)}}
	repo, _ := newTestRepo(t, ch)

	wish, err := repo.GetWish(context.Background(), "method_call_0")
	if err != nil {
		t.Fatalf("GetWish() error = %v", err)
	}
	if wish.Content != "indexed" || wish.ID != "method_call_0" {
		t.Errorf("GetWish() = %+v, want content indexed, id method_call_0", wish)
	}
}

func TestGetWishByTxHash(t *testing.T) {
	record := wishRecord(t, testAccount, "hashed", 1700000000000)
	ch := &mockChain{byTx: map[common.Hash]model.MethodCallRecord{common.HexToHash(testTxHash): record}}
	repo, _ := newTestRepo(t, ch)

	wish, err := repo.GetWish(context.Background(), testTxHash)
	if err != nil {
		t.Fatalf("GetWish() error = %v", err)
	}
	if wish.Content != "hashed" || wish.ID != testTxHash {
		t.Errorf("GetWish() = %+v, want content hashed, id %s", wish, testTxHash)
	}
}

func TestGetWishRejectsNonWishRecord(t *testing.T) {
	sealPayload, err := codec.Encode(codec.Envelope{Content: "locked", UnlockTime: 9999999999, Creator: testAccount.Hex()})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	ch := &mockChain{records: []model.MethodCallRecord{{
		Caller: testAccount.Hex(), MethodName: "storeData", Data: sealPayload, Timestamp: time.Now(),
	}}}
	repo, _ := newTestRepo(t, ch)

	if _, err := repo.GetWish(context.Background(), "method_call_0"); !errors.Is(err, ErrNotWish) {
		t.Errorf("GetWish() error = %v, want ErrNotWish", err)
	}
}

func TestGetWishUnknownIndex(t *testing.T) {
	repo, _ := newTestRepo(t, &mockChain{})
	if _, err := repo.GetWish(context.Background(), "method_call_42"); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("GetWish() error = %v, want ErrNotFound", err)
	}
}

func TestLikeWish(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, _ := newTestRepo(t, ch)

	txHash, err := repo.LikeWish(context.Background(), testAccount.Hex(), 3)
	if err != nil {
		t.Fatalf("LikeWish() error = %v", err)
	}
	if txHash != testTxHash {
		t.Errorf("LikeWish() = %q, want %q", txHash, testTxHash)
	}
	if len(ch.likeCalls) != 1 || ch.likeCalls[0].multiplier != 3 {
		t.Fatalf("likeCalls = %+v, want one call with multiplier 3", ch.likeCalls)
	}
}

func TestLikeWishRejectsNonPositiveMultiplier(t *testing.T) {
	repo, _ := newTestRepo(t, &mockChain{})
	for _, multiplier := range []int64{0, -1} {
		if _, err := repo.LikeWish(context.Background(), testAccount.Hex(), multiplier); err == nil {
			t.Errorf("LikeWish(multiplier=%d) expected error", multiplier)
		}
	}
}

func TestRewardWishConvertsDecimalAmount(t *testing.T) {
	ch := &mockChain{account: testAccount}
	repo, _ := newTestRepo(t, ch)

	if _, err := repo.RewardWish(context.Background(), testAccount.Hex(), "1.5"); err != nil {
		t.Fatalf("RewardWish() error = %v", err)
	}
	if len(ch.rewardCalls) != 1 {
		t.Fatalf("rewardCalls = %d, want 1", len(ch.rewardCalls))
	}
	want := new(big.Int)
	want.SetString("1500000000000000000", 10)
	if ch.rewardCalls[0].wei.Cmp(want) != 0 {
		t.Errorf("reward wei = %s, want %s", ch.rewardCalls[0].wei, want)
	}
}

func TestRewardWishRejectsBadAmount(t *testing.T) {
	repo, _ := newTestRepo(t, &mockChain{})
	for _, amount := range []string{"", "abc", "-1", "0.0000000000000000001"} {
		if _, err := repo.RewardWish(context.Background(), testAccount.Hex(), amount); err == nil {
			t.Errorf("RewardWish(amount=%q) expected error", amount)
		}
	}
}

func TestGetSeals(t *testing.T) {
	past := time.Now().Add(-time.Hour).Unix()
	future := time.Now().Add(time.Hour).Unix()

	encode := func(unlockTime int64) []byte {
		payload, err := codec.Encode(codec.Envelope{Content: "sealed", UnlockTime: unlockTime, Creator: testAccount.Hex()})
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		return payload
	}
	ch := &mockChain{records: []model.MethodCallRecord{
		{Caller: testAccount.Hex(), Data: encode(past), Timestamp: time.Now()},
		wishRecord(t, testAccount, "not a seal", 1700000000000),
		{Caller: testAccount.Hex(), Data: encode(future), Timestamp: time.Now()},
	}}
	repo, _ := newTestRepo(t, ch)

	seals, err := repo.GetSeals(context.Background())
	if err != nil {
		t.Fatalf("GetSeals() error = %v", err)
	}
	if len(seals) != 2 {
		t.Fatalf("GetSeals() returned %d seals, want 2", len(seals))
	}
	if !seals[0].Unlocked {
		t.Error("seal with past unlock time should be unlocked")
	}
	if seals[1].Unlocked {
		t.Error("seal with future unlock time should be locked")
	}
}

func TestCreateWishRejectsEmptyContent(t *testing.T) {
	repo, _ := newTestRepo(t, &mockChain{account: testAccount})
	for _, content := range []string{"", "   "} {
		if _, err := repo.CreateWish(context.Background(), "Ann", content, nil); err == nil {
			t.Errorf("CreateWish(content=%q) expected error", content)
		}
	}
}

func TestCreateWishRejectsOversizedContent(t *testing.T) {
	repo, _ := newTestRepo(t, &mockChain{account: testAccount})
	long := strings.Repeat("x", 2049)
	if _, err := repo.CreateWish(context.Background(), "Ann", long, nil); !errors.Is(err, ErrSchemaReject) {
		t.Errorf("CreateWish() with 2049-char content error = %v, want ErrSchemaReject", err)
	}
}
