package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aradsms/otp_relay/internal/otp_relay_service/evidence"
)

const (
	mnitName            = "mnit"
	mnitAPIKeyHeader    = "mapikey"
	mnitSuccessMetaCode = 200
	defaultTimeout      = 30 * time.Second
)

// ProviderRequestDuration tracks provider latency per operation and outcome.
var ProviderRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "otp_relay_provider_request_duration_seconds",
		Help:    "Duration of requests to the number provider.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"provider", "operation", "outcome"},
)

type MNITProvider struct {
	logger      *slog.Logger
	httpClient  *http.Client
	allocateURL string
	infoURL     string
	apiKey      string
}

func NewMNITProvider(logger *slog.Logger, allocateURL, infoURL, apiKey string, httpClient *http.Client) *MNITProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &MNITProvider{
		logger:      logger.With("provider", mnitName),
		httpClient:  httpClient,
		allocateURL: allocateURL,
		infoURL:     infoURL,
		apiKey:      apiKey,
	}
}

// MNITAllocateRequest is the body of the allocate call. Nil pointers encode as JSON null.
type MNITAllocateRequest struct {
	Range      string `json:"range"`
	IsNational *bool  `json:"is_national"`
	RemovePlus *bool  `json:"remove_plus"`
}

type mnitMeta struct {
	Code json.Number `json:"code"`
}

type mnitAllocateResponse struct {
	Meta mnitMeta       `json:"meta"`
	Data map[string]any `json:"data"`
}

type mnitInboxResponse struct {
	Meta mnitMeta `json:"meta"`
	Data any      `json:"data"`
}

func (p *MNITProvider) Allocate(ctx context.Context, rangeSpec string) (*AllocationResult, error) {
	p.logger.InfoContext(ctx, "Requesting number allocation", "range", rangeSpec)

	reqBytes, err := json.Marshal(MNITAllocateRequest{Range: rangeSpec})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal allocate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.allocateURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create allocate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := p.do(httpReq, "allocate")
	if err != nil {
		p.logger.WarnContext(ctx, "Allocation request failed", "range", rangeSpec, "error", err)
		return nil, err
	}

	var resp mnitAllocateResponse
	if err := decodeJSON(body, &resp); err != nil {
		p.logger.WarnContext(ctx, "Failed to parse allocate response", "error", err, "body", shortBody(body))
		return &AllocationResult{RawError: shortBody(body)}, nil
	}
	if code, _ := strconv.Atoi(resp.Meta.Code.String()); code != mnitSuccessMetaCode {
		p.logger.WarnContext(ctx, "Provider refused allocation", "range", rangeSpec, "meta_code", resp.Meta.Code.String())
		return &AllocationResult{RawError: shortBody(body)}, nil
	}

	number := firstPresent(resp.Data, "full_number", "number", "copy")
	if number == "" {
		return &AllocationResult{RawError: shortBody(body)}, nil
	}
	country := firstPresent(resp.Data, "country", "iso")

	p.logger.InfoContext(ctx, "Number allocated", "range", rangeSpec, "phone_number", number, "country", country)
	return &AllocationResult{Succeeded: true, PhoneNumber: number, Country: country}, nil
}

func (p *MNITProvider) FetchInbox(ctx context.Context, query InboxQuery) ([]Record, error) {
	params := url.Values{}
	params.Set("date", query.Date)
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("search", "")
	if query.Status != "" {
		params.Set("status", query.Status)
	}
	u, err := url.Parse(p.infoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid inbox url: %w", err)
	}
	u.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox request: %w", err)
	}

	body, err := p.do(httpReq, "inbox")
	if err != nil {
		return nil, err
	}

	var resp mnitInboxResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse inbox response: %w", err)
	}
	return recordsOf(resp.Data), nil
}

func (p *MNITProvider) GetName() string {
	return mnitName
}

// do sends the request with the api key and returns the body of a 2xx response.
func (p *MNITProvider) do(httpReq *http.Request, operation string) ([]byte, error) {
	httpReq.Header.Set(mnitAPIKeyHeader, p.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	outcome := "error"
	defer func() {
		ProviderRequestDuration.WithLabelValues(mnitName, operation, outcome).Observe(time.Since(start).Seconds())
	}()

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response (status %d): %w", operation, httpResp.StatusCode, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		outcome = "http_" + strconv.Itoa(httpResp.StatusCode)
		return nil, &APIError{Operation: operation, StatusCode: httpResp.StatusCode, Body: shortBody(body)}
	}
	outcome = "ok"
	return body, nil
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

// recordsOf accepts the provider's data field as a list of records or a single record.
func recordsOf(data any) []Record {
	switch t := data.(type) {
	case []any:
		out := make([]Record, 0, len(t))
		for _, e := range t {
			if rec, ok := e.(map[string]any); ok && len(rec) > 0 {
				out = append(out, rec)
			}
		}
		return out
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
		return []Record{t}
	}
	return nil
}

func firstPresent(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := evidence.Flatten(m[k]); s != "" {
			return s
		}
	}
	return ""
}
