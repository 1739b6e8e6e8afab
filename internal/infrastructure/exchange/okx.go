package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/swap_monitor/internal/domain"
	"go.uber.org/zap"
)

const (
	OKXBaseURL = "https://www.okx.com"
	OKXWSURL   = "wss://ws.okx.com:8443/ws/v5/business"
)

// OKX error codes that get special retry treatment.
const (
	codeTooManyRequests = "50011"
	codeServiceBusy     = "50013"
	codeSystemError     = "50026"
	codeEndpointBusy    = "50113"
)

type OKXClientConfig struct {
	BaseURL           string
	Timeout           time.Duration // per-call timeout
	RateLimitCooldown time.Duration // mandatory wait after a 50011
	RateLimitRetries  int           // bounded retries after cooldown
	TransientDelay    time.Duration // fixed wait before the single transient retry
}

func DefaultOKXClientConfig() OKXClientConfig {
	return OKXClientConfig{
		BaseURL:           OKXBaseURL,
		Timeout:           10 * time.Second,
		RateLimitCooldown: 2100 * time.Millisecond,
		RateLimitRetries:  3,
		TransientDelay:    time.Second,
	}
}

// OKXClient is the REST market data client. Every call passes through the
// shared rate limiter before hitting the network.
type OKXClient struct {
	cfg     OKXClientConfig
	client  *http.Client
	limiter *RateLimiter
	logger  *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error // test seam
}

func NewOKXClient(cfg OKXClientConfig, limiter *RateLimiter, logger *zap.Logger) *OKXClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OKXBaseURL
	}
	return &OKXClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// classifyCode maps an OKX error code to a retry class.
func classifyCode(code string) domain.ErrorKind {
	switch code {
	case codeTooManyRequests:
		return domain.ErrKindRateLimited
	case codeServiceBusy, codeSystemError, codeEndpointBusy:
		return domain.ErrKindTransient
	default:
		return domain.ErrKindPermanent
	}
}

// classifyStatus maps an HTTP status to a retry class.
func classifyStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrKindRateLimited
	case status >= 500:
		return domain.ErrKindTransient
	default:
		return domain.ErrKindPermanent
	}
}

// getOnce performs one rate-limited GET and decodes the envelope payload.
func (c *OKXClient) getOnce(ctx context.Context, op, path string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return &domain.ProviderError{Kind: domain.ErrKindPermanent, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Connection resets and timeouts surface here.
		return &domain.ProviderError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.ProviderError{Kind: domain.ErrKindTransient, Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		return &domain.ProviderError{
			Kind: classifyStatus(resp.StatusCode),
			Op:   op,
			Code: strconv.Itoa(resp.StatusCode),
			Err:  fmt.Errorf("http %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	var env okxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &domain.ProviderError{Kind: domain.ErrKindPermanent, Op: op, Err: err}
	}
	if env.Code != "0" {
		return &domain.ProviderError{
			Kind: classifyCode(env.Code),
			Op:   op,
			Code: env.Code,
			Err:  fmt.Errorf("okx error: %s", env.Msg),
		}
	}

	if err := json.Unmarshal(env.Data, dst); err != nil {
		return &domain.ProviderError{Kind: domain.ErrKindPermanent, Op: op, Err: err}
	}
	return nil
}

// get wraps getOnce with the retry policy: rate-limited errors wait out the
// cooldown and retry a bounded number of times, transient errors get exactly
// one retry after a short delay, everything else is returned as-is.
func (c *OKXClient) get(ctx context.Context, op, path string, dst any) error {
	rateLimitRetries := 0
	transientRetried := false

	for {
		err := c.getOnce(ctx, op, path, dst)
		if err == nil {
			return nil
		}

		switch domain.KindOf(err) {
		case domain.ErrKindRateLimited:
			rateLimitRetries++
			if rateLimitRetries > c.cfg.RateLimitRetries {
				return err
			}
			c.logger.Warn("rate limited, cooling down",
				zap.String("op", op),
				zap.Duration("cooldown", c.cfg.RateLimitCooldown),
				zap.Int("attempt", rateLimitRetries))
			if serr := c.sleep(ctx, c.cfg.RateLimitCooldown); serr != nil {
				return serr
			}

		case domain.ErrKindTransient:
			if transientRetried {
				return err
			}
			transientRetried = true
			c.logger.Warn("transient error, retrying once",
				zap.String("op", op),
				zap.Error(err))
			if serr := c.sleep(ctx, c.cfg.TransientDelay); serr != nil {
				return serr
			}

		default:
			return err
		}
	}
}

// GetTicker fetches the 24h ticker for one instrument.
func (c *OKXClient) GetTicker(ctx context.Context, instID string) (*domain.TickerSnapshot, error) {
	var data []struct {
		InstID    string `json:"instId"`
		Last      string `json:"last"`
		Open24h   string `json:"open24h"`
		VolCcy24h string `json:"volCcy24h"`
		Ts        string `json:"ts"`
	}

	path := "/api/v5/market/ticker?instId=" + instID
	if err := c.get(ctx, "get_ticker", path, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &domain.ProviderError{
			Kind: domain.ErrKindPermanent,
			Op:   "get_ticker",
			Err:  fmt.Errorf("empty ticker response for %s", instID),
		}
	}

	raw := data[0]
	last, err1 := parseFloat(raw.Last)
	open24h, err2 := parseFloat(raw.Open24h)
	volCcy, err3 := parseFloat(raw.VolCcy24h)
	if err := firstErr(err1, err2, err3); err != nil {
		return nil, &domain.ProviderError{Kind: domain.ErrKindPermanent, Op: "get_ticker", Err: err}
	}

	ts, _ := strconv.ParseInt(raw.Ts, 10, 64)
	return &domain.TickerSnapshot{
		InstID:    raw.InstID,
		Last:      last,
		Open24h:   open24h,
		VolCcy24h: volCcy,
		Ts:        time.UnixMilli(ts),
	}, nil
}

// GetOpenInterestHistory fetches open interest samples, newest first.
// Rows are [ts, oi, oiCcy, oiUsd].
func (c *OKXClient) GetOpenInterestHistory(ctx context.Context, instID, period string, limit int) ([]domain.OIPoint, error) {
	var data [][]string

	path := fmt.Sprintf("/api/v5/rubik/stat/contracts/open-interest-history?instId=%s&period=%s&limit=%d",
		instID, period, limit)
	if err := c.get(ctx, "get_oi_history", path, &data); err != nil {
		return nil, err
	}

	points := make([]domain.OIPoint, 0, len(data))
	for _, row := range data {
		if len(row) < 4 {
			continue
		}
		ts, errT := strconv.ParseInt(row[0], 10, 64)
		oi, err1 := parseFloat(row[1])
		oiCcy, err2 := parseFloat(row[2])
		oiUsd, err3 := parseFloat(row[3])
		if errT != nil || firstErr(err1, err2, err3) != nil {
			continue
		}
		points = append(points, domain.OIPoint{
			Ts:    time.UnixMilli(ts),
			OI:    oi,
			OICcy: oiCcy,
			OIUsd: oiUsd,
		})
	}
	if len(points) == 0 {
		return nil, &domain.ProviderError{
			Kind: domain.ErrKindPermanent,
			Op:   "get_oi_history",
			Err:  fmt.Errorf("no open interest points for %s", instID),
		}
	}
	return points, nil
}

// ListInstruments fetches all listed instruments of the given type.
func (c *OKXClient) ListInstruments(ctx context.Context, instType string) ([]domain.InstrumentInfo, error) {
	var data []struct {
		InstID string `json:"instId"`
		State  string `json:"state"`
	}

	path := "/api/v5/public/instruments?instType=" + instType
	if err := c.get(ctx, "list_instruments", path, &data); err != nil {
		return nil, err
	}

	out := make([]domain.InstrumentInfo, 0, len(data))
	for _, raw := range data {
		out = append(out, domain.InstrumentInfo{InstID: raw.InstID, State: raw.State})
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
