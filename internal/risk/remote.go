package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/shopspring/decimal"
)

// RemoteEvaluator calls GET {baseURL}/allow and expects a JSON boolean.
type RemoteEvaluator struct {
	baseURL    string
	delay      time.Duration
	httpClient *http.Client
}

// NewRemoteEvaluator builds a client for the risk service. delay is passed as
// the delayMs knob understood by the mock evaluator; zero omits it.
func NewRemoteEvaluator(baseURL string, delay time.Duration, httpClient *http.Client) *RemoteEvaluator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RemoteEvaluator{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		delay:      delay,
		httpClient: httpClient,
	}
}

func (r *RemoteEvaluator) IsAllowed(ctx context.Context, currency, txType string, amount decimal.Decimal) (bool, error) {
	if r.baseURL == "" {
		return false, fmt.Errorf("risk service base url is empty")
	}

	query := url.Values{}
	query.Set("currency", currency)
	query.Set("type", txType)
	query.Set("amount", amount.String())
	query.Set("fail", "false")
	if r.delay > 0 {
		query.Set("delayMs", strconv.FormatInt(r.delay.Milliseconds(), 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/allow?"+query.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create risk request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if id := correlation.FromContext(ctx); id != "" {
		req.Header.Set(correlation.HeaderName, id)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call risk service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, &StatusError{Code: resp.StatusCode}
	}

	var allowed bool
	if err := json.NewDecoder(resp.Body).Decode(&allowed); err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return allowed, nil
}
