// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the wish data
// service. It exposes wish, seal, media and local-wish endpoints over a JSON
// envelope, with correlation ids, CORS handling, and request metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wishplanet/wishplanet-go/internal/chain"
	"github.com/wishplanet/wishplanet-go/internal/codec"
	errordefs "github.com/wishplanet/wishplanet-go/internal/errors"
	"github.com/wishplanet/wishplanet-go/internal/explorer"
	"github.com/wishplanet/wishplanet-go/internal/localwish"
	"github.com/wishplanet/wishplanet-go/internal/media"
	"github.com/wishplanet/wishplanet-go/internal/metrics"
	"github.com/wishplanet/wishplanet-go/internal/model"
	"github.com/wishplanet/wishplanet-go/internal/repository"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

// ContextKeyCorrelationID stores the unique ID used for request tracking.
const ContextKeyCorrelationID ContextKey = "correlationId"

// multipartMemoryLimit bounds the in-memory portion of multipart parsing;
// larger parts spill to temp files.
const multipartMemoryLimit = 32 << 20

// Service is the domain surface the handlers call. *repository.Repository
// implements it; tests substitute a stub.
type Service interface {
	CreateWish(ctx context.Context, nickname, content string, uploads []repository.Upload) (model.Wish, error)
	CreateWishWithFiles(ctx context.Context, nickname, content string, fileIDs []string) (model.Wish, error)
	GetAllWishes(ctx context.Context) ([]model.Wish, error)
	GetUserWishes(ctx context.Context, creator string) ([]model.Wish, error)
	GetWish(ctx context.Context, id string) (model.Wish, error)
	LikeWish(ctx context.Context, creator string, multiplier int64) (string, error)
	RewardWish(ctx context.Context, creator, amount string) (string, error)
	GetSeals(ctx context.Context) ([]model.Seal, error)
	UploadMedia(ctx context.Context, up repository.Upload, sealID string) (model.MediaFile, error)
	GetMedia(ctx context.Context, id string) (*model.MediaFile, error)
	GetSealMedia(ctx context.Context, sealID string) ([]model.MediaFile, error)
	DeleteMedia(ctx context.Context, id string) error
}

// Session is the wallet session surface the handlers call. *chain.Gateway
// implements it.
type Session interface {
	Connect(ctx context.Context) (*chain.Session, error)
	Disconnect()
	State() chain.State
}

// Mux handles HTTP requests for the wish data service.
type Mux struct {
	mux      *http.ServeMux
	svc      Service
	session  Session
	local    *localwish.Store
	explorer *explorer.Client
	metrics  *metrics.Metrics

	maxMediaSize       int64
	corsAllowedOrigins []string
}

// NewMux creates a new HTTP mux with all wish service endpoints.
// local may be nil when the legacy local store is disabled; session may be
// nil when the service runs without a signing wallet (read-only mode);
// exp may be nil when no explorer is configured.
func NewMux(svc Service, session Session, local *localwish.Store, exp *explorer.Client, maxMediaSize int64, corsAllowedOrigins []string) *http.ServeMux {
	m := &Mux{
		mux:                http.NewServeMux(),
		svc:                svc,
		session:            session,
		local:              local,
		explorer:           exp,
		metrics:            metrics.NewMetrics(),
		maxMediaSize:       maxMediaSize,
		corsAllowedOrigins: corsAllowedOrigins,
	}

	// Health and monitoring endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// Wallet session endpoints
	m.mux.HandleFunc("/v1/session", m.method("GET", m.withMiddleware(m.handleSessionState)))
	m.mux.HandleFunc("/v1/session/connect", m.method("POST", m.withMiddleware(m.handleConnect)))
	m.mux.HandleFunc("/v1/session/disconnect", m.method("POST", m.withMiddleware(m.handleDisconnect)))

	// Wish endpoints
	m.mux.HandleFunc("/v1/wishes", m.withMiddleware(m.handleWishes))
	m.mux.HandleFunc("/v1/wishes/like", m.method("POST", m.withMiddleware(m.handleLikeWish)))
	m.mux.HandleFunc("/v1/wishes/reward", m.method("POST", m.withMiddleware(m.handleRewardWish)))
	m.mux.HandleFunc("/v1/wishes/", m.method("GET", m.withMiddleware(m.handleGetWish)))

	// Legacy seal endpoints
	m.mux.HandleFunc("/v1/seals", m.method("GET", m.withMiddleware(m.handleListSeals)))
	m.mux.HandleFunc("/v1/seals/", m.method("GET", m.withMiddleware(m.handleSealMedia)))

	// Media endpoints
	m.mux.HandleFunc("/v1/media", m.method("POST", m.withMiddleware(m.handleUploadMedia)))
	m.mux.HandleFunc("/v1/media/", m.withMiddleware(m.handleMedia))

	// Transaction lookup via the block explorer
	m.mux.HandleFunc("/v1/tx/", m.method("GET", m.withMiddleware(m.handleGetTransaction)))

	// Legacy local wish endpoints
	m.mux.HandleFunc("/v1/local/wishes", m.withMiddleware(m.handleLocalWishes))
	m.mux.HandleFunc("/v1/local/wishes/", m.withMiddleware(m.handleLocalWish))

	return m.mux
}

// method ensures the HTTP method matches the expected method
func (m *Mux) method(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && r.Method != http.MethodOptions {
			err := errordefs.New(errordefs.WISH_BAD_REQUEST, "method not allowed", "")
			m.writeErrorDef(w, err)
			return
		}
		h(w, r)
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withMiddleware applies common middleware to handlers
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		m.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		duration := time.Since(start)
		statusLabel := strconv.Itoa(rec.status)
		m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, statusLabel).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, statusLabel).Observe(duration.Seconds())
		m.logRequest(r, rec.status, duration, correlationID)
	}
}

// setCORSHeaders applies the configured origin policy. An empty origin list
// denies all cross-origin requests.
func (m *Mux) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(m.corsAllowedOrigins) == 0 {
		return
	}
	for _, allowed := range m.corsAllowedOrigins {
		if allowed == "*" || allowed == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-Id")
			w.Header().Set("Access-Control-Max-Age", "86400")
			return
		}
	}
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeError writes an error response following the service error taxonomy
func (m *Mux) writeError(w http.ResponseWriter, statusCode int, code, message, correlationID string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":          code,
			"message":       message,
			"correlationId": correlationID,
		},
	}

	if details != nil {
		response["error"].(map[string]interface{})["details"] = details
	}

	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response using the error definitions package
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	m.writeError(w, err.HTTPStatus, string(err.Code), err.Message, err.CorrelationID, err.Details)
}

// writeDomainError maps a domain error to the service taxonomy and writes it.
// Errors that already carry a taxonomy code pass through unchanged.
func (m *Mux) writeDomainError(w http.ResponseWriter, err error, correlationID string) {
	var def *errordefs.Error
	if errors.As(err, &def) {
		def.CorrelationID = correlationID
		m.writeErrorDef(w, def)
		return
	}
	m.writeErrorDef(w, errorFor(err, correlationID))
}

// errorFor translates domain sentinel errors into taxonomy errors.
func errorFor(err error, correlationID string) *errordefs.Error {
	var code errordefs.ErrorCode
	switch {
	case errors.Is(err, chain.ErrNotConnected), errors.Is(err, chain.ErrNoWallet):
		code = errordefs.WISH_NOT_CONNECTED
	case errors.Is(err, chain.ErrUserRejected):
		code = errordefs.WISH_WALLET_DENIED
	case errors.Is(err, chain.ErrNetworkSwitch), errors.Is(err, chain.ErrUnknownChain):
		code = errordefs.WISH_WRONG_NETWORK
	case errors.Is(err, chain.ErrTxFailed):
		code = errordefs.WISH_TX_REVERTED
	case errors.Is(err, codec.ErrMalformed):
		code = errordefs.WISH_DECODE_FAILED
	case errors.Is(err, model.ErrInvalidWishID):
		code = errordefs.WISH_ID_INVALID
	case errors.Is(err, repository.ErrSchemaReject):
		code = errordefs.WISH_SCHEMA_REJECT
	case errors.Is(err, repository.ErrInvalidAddress), errors.Is(err, chain.ErrBadAmount):
		code = errordefs.WISH_VALIDATION
	case errors.Is(err, chain.ErrNotFound), errors.Is(err, media.ErrNotFound),
		errors.Is(err, localwish.ErrNotFound), errors.Is(err, repository.ErrNotWish),
		errors.Is(err, explorer.ErrNotFound):
		code = errordefs.WISH_NOT_FOUND
	case errors.Is(err, media.ErrTooLarge):
		code = errordefs.WISH_MEDIA_SIZE
	case errors.Is(err, media.ErrBadType):
		code = errordefs.WISH_MEDIA_TYPE
	case errors.Is(err, media.ErrBadName):
		code = errordefs.WISH_MEDIA_NAME
	case errors.Is(err, media.ErrConflict):
		code = errordefs.WISH_CONFLICT
	default:
		code = errordefs.WISH_INTERNAL
	}
	return errordefs.New(code, err.Error(), correlationID)
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("correlation_id", correlationID),
	}
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.LogAttrs(r.Context(), level, "request completed", attrs...)
}

func correlationFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests. The media store is
// probed with a lookup that is expected to miss; any other failure marks the
// service not ready.
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, err := m.svc.GetMedia(ctx, "readiness-probe")
	if err != nil && !errors.Is(err, media.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// sessionData is the JSON shape of session state responses.
type sessionData struct {
	State   string `json:"state"`
	Account string `json:"account,omitempty"`
	ChainID uint64 `json:"chainId,omitempty"`
}

// handleSessionState handles GET /v1/session
func (m *Mux) handleSessionState(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationFrom(r.Context())
	if m.session == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_NOT_IMPLEMENTED, "service is running without a wallet", correlationID))
		return
	}
	m.writeSuccess(w, http.StatusOK, sessionData{State: m.session.State().String()})
}

// handleConnect handles POST /v1/session/connect
func (m *Mux) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleConnect")
	defer span.End()

	correlationID := correlationFrom(ctx)
	if m.session == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_NOT_IMPLEMENTED, "service is running without a wallet", correlationID))
		return
	}

	session, err := m.session.Connect(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "connect failed")
		m.writeDomainError(w, err, correlationID)
		return
	}
	span.SetAttributes(attribute.String("account", session.Account.Hex()))
	m.writeSuccess(w, http.StatusOK, sessionData{
		State:   m.session.State().String(),
		Account: session.Account.Hex(),
	})
}

// handleDisconnect handles POST /v1/session/disconnect
func (m *Mux) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationFrom(r.Context())
	if m.session == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_NOT_IMPLEMENTED, "service is running without a wallet", correlationID))
		return
	}
	m.session.Disconnect()
	m.writeSuccess(w, http.StatusOK, sessionData{State: m.session.State().String()})
}

// handleWishes dispatches /v1/wishes by method: GET lists, POST creates.
func (m *Mux) handleWishes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m.handleListWishes(w, r)
	case http.MethodPost:
		m.handleCreateWish(w, r)
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_BAD_REQUEST, "method not allowed", correlationFrom(r.Context())))
	}
}

// handleCreateWish handles POST /v1/wishes. Multipart requests carry inline
// file parts; JSON requests reference previously uploaded file ids.
func (m *Mux) handleCreateWish(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleCreateWish")
	defer span.End()
	defer r.Body.Close()

	correlationID := correlationFrom(ctx)

	var wish model.Wish
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		wish, err = m.createWishMultipart(ctx, r)
	} else {
		var req model.CreateWishRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			span.SetStatus(codes.Error, "invalid JSON")
			m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "invalid JSON", correlationID))
			return
		}
		wish, err = m.svc.CreateWishWithFiles(ctx, req.Nickname, req.Content, req.FileIDs)
	}
	if err != nil {
		span.SetStatus(codes.Error, "create wish failed")
		m.writeDomainError(w, err, correlationID)
		return
	}

	span.SetAttributes(
		attribute.String("wishId", wish.ID),
		attribute.Int("attachments", len(wish.FileIDs)),
	)
	m.writeSuccess(w, http.StatusOK, wish)
}

// createWishMultipart parses a multipart create request: nickname and content
// fields plus zero or more "files" parts.
func (m *Mux) createWishMultipart(ctx context.Context, r *http.Request) (model.Wish, error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return model.Wish{}, errordefs.New(errordefs.WISH_VALIDATION, "invalid multipart form", correlationFrom(ctx))
	}

	var uploads []repository.Upload
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			if header.Size > m.maxMediaSize {
				return model.Wish{}, media.ErrTooLarge
			}
			part, err := header.Open()
			if err != nil {
				return model.Wish{}, err
			}
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return model.Wish{}, err
			}
			uploads = append(uploads, repository.Upload{
				Name:     header.Filename,
				MimeType: header.Header.Get("Content-Type"),
				Data:     data,
			})
		}
	}

	return m.svc.CreateWish(ctx, r.FormValue("nickname"), r.FormValue("content"), uploads)
}

// handleListWishes handles GET /v1/wishes, optionally filtered by creator.
func (m *Mux) handleListWishes(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleListWishes")
	defer span.End()

	correlationID := correlationFrom(ctx)
	creator := r.URL.Query().Get("creator")
	span.SetAttributes(attribute.Bool("filtered", creator != ""))

	var wishes []model.Wish
	var err error
	if creator != "" {
		wishes, err = m.svc.GetUserWishes(ctx, creator)
	} else {
		wishes, err = m.svc.GetAllWishes(ctx)
	}
	if err != nil {
		span.SetStatus(codes.Error, "list wishes failed")
		m.writeDomainError(w, err, correlationID)
		return
	}

	span.SetAttributes(attribute.Int("count", len(wishes)))
	m.writeSuccess(w, http.StatusOK, wishes)
}

// handleGetWish handles GET /v1/wishes/:id
func (m *Mux) handleGetWish(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleGetWish")
	defer span.End()

	correlationID := correlationFrom(ctx)
	id := strings.TrimPrefix(r.URL.Path, "/v1/wishes/")
	if id == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "wish id is required", correlationID))
		return
	}
	span.SetAttributes(attribute.String("wishId", id))

	wish, err := m.svc.GetWish(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "get wish failed")
		m.writeDomainError(w, err, correlationID)
		return
	}
	m.writeSuccess(w, http.StatusOK, wish)
}

// handleLikeWish handles POST /v1/wishes/like
func (m *Mux) handleLikeWish(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleLikeWish")
	defer span.End()
	defer r.Body.Close()

	correlationID := correlationFrom(ctx)
	var req model.LikeWishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "invalid JSON", correlationID))
		return
	}
	span.SetAttributes(
		attribute.String("creator", req.Creator),
		attribute.Int64("multiplier", req.Multiplier),
	)

	txHash, err := m.svc.LikeWish(ctx, req.Creator, req.Multiplier)
	if err != nil {
		span.SetStatus(codes.Error, "like failed")
		m.writeDomainError(w, err, correlationID)
		return
	}
	m.writeSuccess(w, http.StatusOK, model.TxData{TxHash: txHash})
}

// handleRewardWish handles POST /v1/wishes/reward
func (m *Mux) handleRewardWish(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleRewardWish")
	defer span.End()
	defer r.Body.Close()

	correlationID := correlationFrom(ctx)
	var req model.RewardWishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "invalid JSON")
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "invalid JSON", correlationID))
		return
	}
	span.SetAttributes(attribute.String("creator", req.Creator))

	txHash, err := m.svc.RewardWish(ctx, req.Creator, req.Amount)
	if err != nil {
		span.SetStatus(codes.Error, "reward failed")
		m.writeDomainError(w, err, correlationID)
		return
	}
	m.writeSuccess(w, http.StatusOK, model.TxData{TxHash: txHash})
}

// handleListSeals handles GET /v1/seals
func (m *Mux) handleListSeals(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleListSeals")
	defer span.End()

	correlationID := correlationFrom(ctx)
	seals, err := m.svc.GetSeals(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "list seals failed")
		m.writeDomainError(w, err, correlationID)
		return
	}
	span.SetAttributes(attribute.Int("count", len(seals)))
	m.writeSuccess(w, http.StatusOK, seals)
}

// handleSealMedia handles GET /v1/seals/:id/media
func (m *Mux) handleSealMedia(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleSealMedia")
	defer span.End()

	correlationID := correlationFrom(ctx)
	path := strings.TrimPrefix(r.URL.Path, "/v1/seals/")
	sealID, ok := strings.CutSuffix(path, "/media")
	if !ok || sealID == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "seal id is required", correlationID))
		return
	}
	span.SetAttributes(attribute.String("sealId", sealID))

	files, err := m.svc.GetSealMedia(ctx, sealID)
	if err != nil {
		span.SetStatus(codes.Error, "list seal media failed")
		m.writeDomainError(w, err, correlationID)
		return
	}
	m.writeSuccess(w, http.StatusOK, files)
}

// handleUploadMedia handles POST /v1/media. The request is multipart with one
// "file" part and an optional "sealId" field.
func (m *Mux) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleUploadMedia")
	defer span.End()
	defer r.Body.Close()

	correlationID := correlationFrom(ctx)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		span.SetStatus(codes.Error, "invalid multipart form")
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "invalid multipart form", correlationID))
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "file part is required", correlationID))
		return
	}
	defer part.Close()

	if header.Size > m.maxMediaSize {
		m.writeDomainError(w, media.ErrTooLarge, correlationID)
		return
	}
	data, err := io.ReadAll(part)
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_INTERNAL, "failed to read file", correlationID))
		return
	}

	span.SetAttributes(
		attribute.String("name", header.Filename),
		attribute.Int64("size", header.Size),
	)

	file, err := m.svc.UploadMedia(ctx, repository.Upload{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, r.FormValue("sealId"))
	if err != nil {
		span.SetStatus(codes.Error, "upload failed")
		m.writeDomainError(w, err, correlationID)
		return
	}

	file.Data = nil
	m.writeSuccess(w, http.StatusOK, file)
}

// handleMedia dispatches /v1/media/:id and /v1/media/:id/meta.
func (m *Mux) handleMedia(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleMedia")
	defer span.End()

	correlationID := correlationFrom(ctx)
	path := strings.TrimPrefix(r.URL.Path, "/v1/media/")
	id, meta := strings.CutSuffix(path, "/meta")
	if id == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "media id is required", correlationID))
		return
	}
	span.SetAttributes(attribute.String("mediaId", id))

	switch {
	case r.Method == http.MethodDelete && !meta:
		if err := m.svc.DeleteMedia(ctx, id); err != nil {
			span.SetStatus(codes.Error, "delete failed")
			m.writeDomainError(w, err, correlationID)
			return
		}
		m.writeSuccess(w, http.StatusOK, map[string]string{"id": id})
	case r.Method == http.MethodGet:
		file, err := m.svc.GetMedia(ctx, id)
		if err != nil {
			span.SetStatus(codes.Error, "get failed")
			m.writeDomainError(w, err, correlationID)
			return
		}
		if meta {
			file.Data = nil
			m.writeSuccess(w, http.StatusOK, file)
			return
		}
		w.Header().Set("Content-Type", file.MimeType)
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(file.Data)
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_BAD_REQUEST, "method not allowed", correlationID))
	}
}

// transactionData is the JSON shape of explorer lookup responses.
type transactionData struct {
	explorer.Transaction
	URL string `json:"url"`
}

// handleGetTransaction handles GET /v1/tx/:hash
func (m *Mux) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("wish-service").Start(r.Context(), "handleGetTransaction")
	defer span.End()

	correlationID := correlationFrom(ctx)
	if m.explorer == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_NOT_IMPLEMENTED, "no block explorer configured", correlationID))
		return
	}

	txHash := strings.TrimPrefix(r.URL.Path, "/v1/tx/")
	if !strings.HasPrefix(txHash, "0x") || len(txHash) != 66 {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "malformed transaction hash", correlationID))
		return
	}
	span.SetAttributes(attribute.String("txHash", txHash))

	tx, err := m.explorer.GetTransaction(ctx, txHash)
	if err != nil {
		span.SetStatus(codes.Error, "explorer lookup failed")
		m.writeDomainError(w, err, correlationID)
		return
	}
	m.writeSuccess(w, http.StatusOK, transactionData{Transaction: tx, URL: m.explorer.TxURL(txHash)})
}

// handleLocalWishes dispatches /v1/local/wishes: GET lists, POST adds,
// DELETE clears.
func (m *Mux) handleLocalWishes(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationFrom(r.Context())
	if m.local == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_NOT_IMPLEMENTED, "local wish store is disabled", correlationID))
		return
	}

	switch r.Method {
	case http.MethodGet:
		var wishes []model.Wish
		var err error
		if creator := r.URL.Query().Get("creator"); creator != "" {
			wishes, err = m.local.ByCreator(creator)
		} else {
			wishes, err = m.local.List()
		}
		if err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		if wishes == nil {
			wishes = []model.Wish{}
		}
		m.writeSuccess(w, http.StatusOK, wishes)
	case http.MethodPost:
		defer r.Body.Close()
		var wish model.Wish
		if err := json.NewDecoder(r.Body).Decode(&wish); err != nil {
			m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "invalid JSON", correlationID))
			return
		}
		if wish.Content == "" {
			m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "content is required", correlationID))
			return
		}
		stored, err := m.local.Add(wish)
		if err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		m.writeSuccess(w, http.StatusOK, stored)
	case http.MethodDelete:
		if err := m.local.Clear(); err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		m.writeSuccess(w, http.StatusOK, map[string]bool{"cleared": true})
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_BAD_REQUEST, "method not allowed", correlationID))
	}
}

// handleLocalWish dispatches /v1/local/wishes/:id and its like and donate
// subpaths.
func (m *Mux) handleLocalWish(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationFrom(r.Context())
	if m.local == nil {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_NOT_IMPLEMENTED, "local wish store is disabled", correlationID))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/local/wishes/")
	id, like := strings.CutSuffix(path, "/like")
	donate := false
	if !like {
		id, donate = strings.CutSuffix(path, "/donate")
	}
	if id == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "wish id is required", correlationID))
		return
	}

	switch {
	case r.Method == http.MethodPost && like:
		if err := m.local.Like(id); err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		m.writeSuccess(w, http.StatusOK, map[string]string{"id": id})
	case r.Method == http.MethodPost && donate:
		defer r.Body.Close()
		var req model.RewardWishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "invalid JSON", correlationID))
			return
		}
		wei, err := chain.WeiFromDecimal(req.Amount)
		if err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		if err := m.local.AddDonation(id, wei); err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		m.writeSuccess(w, http.StatusOK, map[string]string{"id": id})
	case r.Method == http.MethodPut && !like && !donate:
		defer r.Body.Close()
		var wish model.Wish
		if err := json.NewDecoder(r.Body).Decode(&wish); err != nil {
			m.writeErrorDef(w, errordefs.New(errordefs.WISH_VALIDATION, "invalid JSON", correlationID))
			return
		}
		wish.ID = id
		if err := m.local.Update(wish); err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		m.writeSuccess(w, http.StatusOK, wish)
	case r.Method == http.MethodDelete && !like && !donate:
		if err := m.local.Remove(id); err != nil {
			m.writeDomainError(w, err, correlationID)
			return
		}
		m.writeSuccess(w, http.StatusOK, map[string]string{"id": id})
	default:
		m.writeErrorDef(w, errordefs.New(errordefs.WISH_BAD_REQUEST, "method not allowed", correlationID))
	}
}
