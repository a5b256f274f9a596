// internal/server/mux_test.go
// Package server provides unit tests for the HTTP handlers and routing.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/wishplanet/wishplanet-go/internal/chain"
	"github.com/wishplanet/wishplanet-go/internal/localwish"
	"github.com/wishplanet/wishplanet-go/internal/media"
	"github.com/wishplanet/wishplanet-go/internal/model"
	"github.com/wishplanet/wishplanet-go/internal/repository"
)

var testAccount = common.HexToAddress("0xABC0000000000000000000000000000000000abc")

const testTxHash = "0x2222222222222222222222222222222222222222222222222222222222222222"

// stubService implements Service with canned data backed by an in-memory
// media store.
type stubService struct {
	wishes []model.Wish
	seals  []model.Seal
	store  media.Store
}

func newStubService() *stubService {
	return &stubService{store: media.NewMemory()}
}

func (s *stubService) CreateWish(ctx context.Context, nickname, content string, uploads []repository.Upload) (model.Wish, error) {
	if content == "" {
		return model.Wish{}, repository.ErrSchemaReject
	}
	if nickname == "" {
		nickname = repository.AnonymousNickname
	}
	var fileIDs []string
	for _, up := range uploads {
		kind, err := media.ValidateFile(up.Name, up.MimeType, int64(len(up.Data)), 100<<20)
		if err != nil {
			return model.Wish{}, err
		}
		file := model.MediaFile{ID: media.NewID(), Name: up.Name, MimeType: up.MimeType, Kind: kind, Size: int64(len(up.Data)), Data: up.Data, SealID: testTxHash}
		if err := s.store.StoreFile(ctx, file); err != nil {
			return model.Wish{}, err
		}
		fileIDs = append(fileIDs, file.ID)
	}
	wish := model.Wish{ID: testTxHash, Nickname: nickname, Content: content, FileIDs: fileIDs, Creator: testAccount.Hex(), CreatedAt: time.Now().UTC(), RewardsWei: "0"}
	s.wishes = append(s.wishes, wish)
	return wish, nil
}

func (s *stubService) CreateWishWithFiles(ctx context.Context, nickname, content string, fileIDs []string) (model.Wish, error) {
	for _, id := range fileIDs {
		if _, err := s.store.GetFile(ctx, id); err != nil {
			return model.Wish{}, fmt.Errorf("attachment %s: %w", id, err)
		}
	}
	return s.CreateWish(ctx, nickname, content, nil)
}

func (s *stubService) GetAllWishes(ctx context.Context) ([]model.Wish, error) {
	return s.wishes, nil
}

func (s *stubService) GetUserWishes(ctx context.Context, creator string) ([]model.Wish, error) {
	if !common.IsHexAddress(creator) {
		return nil, repository.ErrInvalidAddress
	}
	var out []model.Wish
	for _, w := range s.wishes {
		if common.HexToAddress(w.Creator) == common.HexToAddress(creator) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *stubService) GetWish(ctx context.Context, id string) (model.Wish, error) {
	if _, err := model.ParseWishID(id); err != nil {
		return model.Wish{}, err
	}
	for _, w := range s.wishes {
		if w.ID == id {
			return w, nil
		}
	}
	return model.Wish{}, chain.ErrNotFound
}

func (s *stubService) LikeWish(ctx context.Context, creator string, multiplier int64) (string, error) {
	if !common.IsHexAddress(creator) || multiplier <= 0 {
		return "", repository.ErrInvalidAddress
	}
	return testTxHash, nil
}

func (s *stubService) RewardWish(ctx context.Context, creator, amount string) (string, error) {
	if !common.IsHexAddress(creator) {
		return "", repository.ErrInvalidAddress
	}
	if _, err := chain.WeiFromDecimal(amount); err != nil {
		return "", err
	}
	return testTxHash, nil
}

func (s *stubService) GetSeals(ctx context.Context) ([]model.Seal, error) {
	return s.seals, nil
}

func (s *stubService) UploadMedia(ctx context.Context, up repository.Upload, sealID string) (model.MediaFile, error) {
	kind, err := media.ValidateFile(up.Name, up.MimeType, int64(len(up.Data)), 100<<20)
	if err != nil {
		return model.MediaFile{}, err
	}
	file := model.MediaFile{ID: media.NewID(), Name: up.Name, MimeType: up.MimeType, Kind: kind, Size: int64(len(up.Data)), Data: up.Data, SealID: sealID}
	if err := s.store.StoreFile(ctx, file); err != nil {
		return model.MediaFile{}, err
	}
	return file, nil
}

func (s *stubService) GetMedia(ctx context.Context, id string) (*model.MediaFile, error) {
	return s.store.GetFile(ctx, id)
}

func (s *stubService) GetSealMedia(ctx context.Context, sealID string) ([]model.MediaFile, error) {
	return s.store.GetFilesBySeal(ctx, sealID)
}

func (s *stubService) DeleteMedia(ctx context.Context, id string) error {
	return s.store.DeleteFile(ctx, id)
}

// stubSession implements Session for testing.
type stubSession struct {
	connected  bool
	connectErr error
}

func (s *stubSession) Connect(ctx context.Context) (*chain.Session, error) {
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	s.connected = true
	return &chain.Session{Account: testAccount}, nil
}

func (s *stubSession) Disconnect() { s.connected = false }

func (s *stubSession) State() chain.State {
	if s.connected {
		return chain.StateConnected
	}
	return chain.StateDisconnected
}

func newTestMux(t *testing.T, svc *stubService) *http.ServeMux {
	t.Helper()
	local, err := localwish.Open(filepath.Join(t.TempDir(), "local"))
	if err != nil {
		t.Fatalf("localwish.Open() error = %v", err)
	}
	t.Cleanup(func() { local.Close() })
	return NewMux(svc, &stubSession{}, local, nil, 100<<20, []string{"*"})
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not a JSON envelope: %v (body %s)", err, rr.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("data field decode failed: %v", err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not a JSON error envelope: %v (body %s)", err, rr.Body.String())
	}
	return envelope.Error.Code
}

// filePart attaches a file part with an explicit content type.
func filePart(t *testing.T, mw *multipart.Writer, field, filename, contentType string, data []byte) {
	t.Helper()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	mux := newTestMux(t, newStubService())
	rr := doRequest(t, mux, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", rr.Code, http.StatusOK)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rr.Body.String())
	}
}

func TestReadyzEndpoint(t *testing.T) {
	mux := newTestMux(t, newStubService())
	rr := doRequest(t, mux, "GET", "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", rr.Code, http.StatusOK)
	}
}

func TestCreateWishJSON(t *testing.T) {
	mux := newTestMux(t, newStubService())
	body, _ := json.Marshal(model.CreateWishRequest{Nickname: "Ann", Content: "peace"})
	rr := doRequest(t, mux, "POST", "/v1/wishes", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var wish model.Wish
	decodeData(t, rr, &wish)
	if wish.ID != testTxHash {
		t.Errorf("wish.ID = %q, want %q", wish.ID, testTxHash)
	}
	if wish.Nickname != "Ann" || wish.Content != "peace" {
		t.Errorf("wish = %+v, want nickname Ann, content peace", wish)
	}
}

func TestCreateWishJSONRejectsDanglingFile(t *testing.T) {
	mux := newTestMux(t, newStubService())
	body, _ := json.Marshal(model.CreateWishRequest{Content: "peace", FileIDs: []string{"file_missing"}})
	rr := doRequest(t, mux, "POST", "/v1/wishes", body)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusNotFound)
	}
	if code := errorCode(t, rr); code != "WISH_NOT_FOUND" {
		t.Errorf("error code = %q, want WISH_NOT_FOUND", code)
	}
}

func TestCreateWishMultipart(t *testing.T) {
	svc := newStubService()
	mux := newTestMux(t, svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("nickname", "Ann")
	_ = mw.WriteField("content", "peace")
	filePart(t, mw, "files", "pic.png", "image/png", []byte("pngdata"))
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/wishes", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var wish model.Wish
	decodeData(t, rr, &wish)
	if len(wish.FileIDs) != 1 {
		t.Fatalf("wish.FileIDs = %v, want one entry", wish.FileIDs)
	}
	if _, err := svc.store.GetFile(context.Background(), wish.FileIDs[0]); err != nil {
		t.Errorf("uploaded file %s not stored: %v", wish.FileIDs[0], err)
	}
}

func TestListWishes(t *testing.T) {
	svc := newStubService()
	svc.wishes = []model.Wish{
		{ID: "method_call_0", Content: "first", Creator: testAccount.Hex()},
		{ID: "method_call_1", Content: "second", Creator: testAccount.Hex()},
	}
	mux := newTestMux(t, svc)

	rr := doRequest(t, mux, "GET", "/v1/wishes", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusOK)
	}
	var wishes []model.Wish
	decodeData(t, rr, &wishes)
	if len(wishes) != 2 {
		t.Errorf("listed %d wishes, want 2", len(wishes))
	}
}

func TestListWishesByCreator(t *testing.T) {
	other := common.HexToAddress("0xDEF0000000000000000000000000000000000def")
	svc := newStubService()
	svc.wishes = []model.Wish{
		{ID: "method_call_0", Content: "mine", Creator: testAccount.Hex()},
		{ID: "method_call_1", Content: "theirs", Creator: other.Hex()},
	}
	mux := newTestMux(t, svc)

	rr := doRequest(t, mux, "GET", "/v1/wishes?creator="+testAccount.Hex(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusOK)
	}
	var wishes []model.Wish
	decodeData(t, rr, &wishes)
	if len(wishes) != 1 || wishes[0].Content != "mine" {
		t.Errorf("wishes = %+v, want single record by %s", wishes, testAccount.Hex())
	}
}

func TestGetWishInvalidID(t *testing.T) {
	mux := newTestMux(t, newStubService())
	rr := doRequest(t, mux, "GET", "/v1/wishes/bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rr); code != "WISH_ID_INVALID" {
		t.Errorf("error code = %q, want WISH_ID_INVALID", code)
	}
}

func TestGetWishNotFound(t *testing.T) {
	mux := newTestMux(t, newStubService())
	rr := doRequest(t, mux, "GET", "/v1/wishes/method_call_7", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusNotFound)
	}
	if code := errorCode(t, rr); code != "WISH_NOT_FOUND" {
		t.Errorf("error code = %q, want WISH_NOT_FOUND", code)
	}
}

func TestLikeWishEndpoint(t *testing.T) {
	mux := newTestMux(t, newStubService())
	body, _ := json.Marshal(model.LikeWishRequest{Creator: testAccount.Hex(), Multiplier: 2})
	rr := doRequest(t, mux, "POST", "/v1/wishes/like", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var tx model.TxData
	decodeData(t, rr, &tx)
	if tx.TxHash != testTxHash {
		t.Errorf("txHash = %q, want %q", tx.TxHash, testTxHash)
	}
}

func TestRewardWishRejectsBadAmount(t *testing.T) {
	mux := newTestMux(t, newStubService())
	body, _ := json.Marshal(model.RewardWishRequest{Creator: testAccount.Hex(), Amount: "abc"})
	rr := doRequest(t, mux, "POST", "/v1/wishes/reward", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rr); code != "WISH_VALIDATION" {
		t.Errorf("error code = %q, want WISH_VALIDATION", code)
	}
}

func TestUploadMediaRejectsWrongType(t *testing.T) {
	mux := newTestMux(t, newStubService())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	filePart(t, mw, "file", "doc.pdf", "application/pdf", []byte("pdfdata"))
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %v, want %v (body %s)", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
	if code := errorCode(t, rr); code != "WISH_MEDIA_TYPE" {
		t.Errorf("error code = %q, want WISH_MEDIA_TYPE", code)
	}
}

func TestMediaUploadAndFetch(t *testing.T) {
	mux := newTestMux(t, newStubService())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	filePart(t, mw, "file", "song.mp3", "audio/mpeg", []byte("mp3data"))
	mw.Close()

	req := httptest.NewRequest("POST", "/v1/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var uploaded model.MediaFile
	decodeData(t, rr, &uploaded)
	if !strings.HasPrefix(uploaded.ID, "file_") {
		t.Errorf("file id = %q, want file_ prefix", uploaded.ID)
	}

	// Raw bytes
	rr = doRequest(t, mux, "GET", "/v1/media/"+uploaded.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch status = %v, want %v", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q, want audio/mpeg", ct)
	}
	if rr.Body.String() != "mp3data" {
		t.Errorf("body = %q, want mp3data", rr.Body.String())
	}

	// Metadata only
	rr = doRequest(t, mux, "GET", "/v1/media/"+uploaded.ID+"/meta", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("meta status = %v, want %v", rr.Code, http.StatusOK)
	}
	var meta model.MediaFile
	decodeData(t, rr, &meta)
	if meta.Name != "song.mp3" || meta.Kind != model.MediaAudio {
		t.Errorf("meta = %+v, want name song.mp3, kind audio", meta)
	}
}

func TestSessionConnectFlow(t *testing.T) {
	mux := newTestMux(t, newStubService())

	rr := doRequest(t, mux, "POST", "/v1/session/connect", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("connect status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	var session sessionData
	decodeData(t, rr, &session)
	if session.State != "connected" || session.Account != testAccount.Hex() {
		t.Errorf("session = %+v, want connected as %s", session, testAccount.Hex())
	}

	rr = doRequest(t, mux, "POST", "/v1/session/disconnect", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("disconnect status = %v, want %v", rr.Code, http.StatusOK)
	}
	decodeData(t, rr, &session)
	if session.State != "disconnected" {
		t.Errorf("state after disconnect = %q, want disconnected", session.State)
	}
}

func TestConnectRejectedMapsToWalletDenied(t *testing.T) {
	local, err := localwish.Open(filepath.Join(t.TempDir(), "local"))
	if err != nil {
		t.Fatal(err)
	}
	defer local.Close()
	mux := NewMux(newStubService(), &stubSession{connectErr: chain.ErrUserRejected}, local, nil, 100<<20, nil)

	rr := doRequest(t, mux, "POST", "/v1/session/connect", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, rr); code != "WISH_WALLET_DENIED" {
		t.Errorf("error code = %q, want WISH_WALLET_DENIED", code)
	}
}

func TestLocalWishFlow(t *testing.T) {
	mux := newTestMux(t, newStubService())

	wish := model.Wish{ID: "local_1", Nickname: "Ann", Content: "offline wish"}
	body, _ := json.Marshal(wish)
	rr := doRequest(t, mux, "POST", "/v1/local/wishes", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("add status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	rr = doRequest(t, mux, "POST", "/v1/local/wishes/local_1/like", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("like status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	donation, _ := json.Marshal(model.RewardWishRequest{Amount: "1"})
	rr = doRequest(t, mux, "POST", "/v1/local/wishes/local_1/donate", donation)
	if rr.Code != http.StatusOK {
		t.Fatalf("donate status = %v, want %v (body %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	rr = doRequest(t, mux, "GET", "/v1/local/wishes", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %v, want %v", rr.Code, http.StatusOK)
	}
	var wishes []model.Wish
	decodeData(t, rr, &wishes)
	if len(wishes) != 1 || wishes[0].Likes != 1 {
		t.Fatalf("wishes = %+v, want one wish with one like", wishes)
	}
	if wishes[0].RewardsWei != "1000000000000000000" {
		t.Errorf("RewardsWei = %q, want 1000000000000000000", wishes[0].RewardsWei)
	}

	rr = doRequest(t, mux, "DELETE", "/v1/local/wishes/local_1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove status = %v, want %v", rr.Code, http.StatusOK)
	}

	rr = doRequest(t, mux, "GET", "/v1/local/wishes", nil)
	decodeData(t, rr, &wishes)
	if len(wishes) != 0 {
		t.Errorf("wishes after remove = %+v, want empty", wishes)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	mux := newTestMux(t, newStubService())
	rr := doRequest(t, mux, "GET", "/v1/wishes", nil)
	if rr.Header().Get("X-Correlation-Id") == "" {
		t.Error("X-Correlation-Id header missing from response")
	}

	req := httptest.NewRequest("GET", "/v1/wishes", nil)
	req.Header.Set("X-Correlation-Id", "test-correlation")
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-Id"); got != "test-correlation" {
		t.Errorf("X-Correlation-Id = %q, want test-correlation", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	mux := newTestMux(t, newStubService())
	req := httptest.NewRequest("OPTIONS", "/v1/wishes", nil)
	req.Header.Set("Origin", "https://wishplanet.example")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://wishplanet.example" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the request origin", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t, newStubService())
	rr := doRequest(t, mux, "DELETE", "/v1/wishes", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %v, want %v", rr.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rr); code != "WISH_BAD_REQUEST" {
		t.Errorf("error code = %q, want WISH_BAD_REQUEST", code)
	}
}
