package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xtravels/backend/internal/domain/shared"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// QueryPath is the path of the remote query endpoint below the base URL
const QueryPath = "/query"

// maxErrorBody bounds how much of a failed response is kept for the error
const maxErrorBody = 512

// HTTPSource reads master data from a remote query endpoint
type HTTPSource struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// HTTPSourceOption configures an HTTPSource
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient replaces the default client
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithSourceLogger sets the logger
func WithSourceLogger(logger *zap.Logger) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.logger = logger
	}
}

// NewHTTPSource creates a source for the endpoint at baseURL
func NewHTTPSource(baseURL string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// envelope mirrors the success/error wrapper of the query endpoint
type envelope struct {
	Success bool           `json:"success"`
	Data    *QueryResponse `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Select posts q to the remote endpoint. The query locale is sent as
// Accept-Language. Numbers are decoded as json.Number so decimals stay exact.
func (s *HTTPSource) Select(ctx context.Context, q store.Query) (*store.Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "remote", "select", telemetry.SpanAttrEntity, q.Entity)
	defer span.End()

	res, err := s.do(ctx, q)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrRows, res.RowCount())
	return res, nil
}

func (s *HTTPSource) do(ctx context.Context, q store.Query) (*store.Result, error) {
	body, err := EncodeQuery(q)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode remote query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+QueryPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build remote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if q.Locale != "" {
		req.Header.Set("Accept-Language", q.Locale)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrRemoteUnavailable, q.Entity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		s.logger.Debug("remote query rejected",
			zap.String("entity", q.Entity),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return nil, fmt.Errorf("%w: %s: status %d", shared.ErrRemoteUnavailable, q.Entity, resp.StatusCode)
	}

	var env envelope
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode remote response for %s: %w", q.Entity, err)
	}
	if !env.Success || env.Data == nil {
		msg := "empty response"
		if env.Error != nil {
			msg = env.Error.Code + ": " + env.Error.Message
		}
		return nil, fmt.Errorf("%w: %s: %s", shared.ErrRemoteUnavailable, q.Entity, msg)
	}

	rows := env.Data.Rows
	if rows == nil {
		rows = []store.Row{}
	}
	return &store.Result{Rows: rows}, nil
}

// Close releases idle connections
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
