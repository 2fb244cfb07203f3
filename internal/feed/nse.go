package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/models"
	"options-analyzer/pkg/utils"
)

const (
	nseBaseURL  = "https://www.nseindia.com"
	nseChainURL = nseBaseURL + "/api/option-chain-indices"
	nseIndexURL = nseBaseURL + "/api/equity-stockIndices"

	// The endpoint rejects requests without a browser user agent.
	nseUserAgent = "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/126.0"

	// Cookies from the landing page expire server-side; re-prime the
	// session after this long.
	sessionTTL = 5 * time.Minute
)

// indexName maps an option symbol to its index endpoint name for the
// previous-close lookup.
var indexName = map[string]string{
	"NIFTY":      "NIFTY 50",
	"BANKNIFTY":  "NIFTY BANK",
	"FINNIFTY":   "NIFTY FINANCIAL SERVICES",
	"MIDCPNIFTY": "NIFTY MIDCAP SELECT",
}

// NSESource fetches live chains from the public NSE endpoint with a
// cookie-primed session.
type NSESource struct {
	symbol     string
	client     *http.Client
	loc        *time.Location
	log        zerolog.Logger
	retry      utils.RetryConfig
	lastPrimed time.Time
	prevClose  float64
}

// NewNSESource creates a live source for symbol.
func NewNSESource(symbol string, timeout time.Duration, loc *time.Location, log zerolog.Logger) (*NSESource, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating cookie jar")
	}
	return &NSESource{
		symbol: symbol,
		client: &http.Client{Jar: jar, Timeout: timeout},
		loc:    loc,
		log:    logging.WithComponent(log, "feed").With().Str("source", "nse").Logger(),
		retry:  utils.DefaultRetryConfig(),
	}, nil
}

// Fetch retrieves and parses the current chain.
func (s *NSESource) Fetch(ctx context.Context) (*models.OptionChainSnapshot, error) {
	if err := s.prime(ctx); err != nil {
		return nil, err
	}

	payload, err := utils.RetryWithResult(ctx, s.retry, func() (*chainPayload, error) {
		return s.fetchChain(ctx)
	})
	if err != nil {
		return nil, errors.NewFeedError("nse", s.symbol, "fetching option chain", err)
	}

	// Previous close is static intraday; fetch it once and reuse.
	if s.prevClose == 0 {
		prev, err := s.fetchPrevClose(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("Previous close unavailable, expiry scoring degraded")
		} else {
			s.prevClose = prev
		}
	}

	return buildSnapshot(s.symbol, payload, s.prevClose, time.Now().In(s.loc), s.loc)
}

// Close implements ChainSource.
func (s *NSESource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// prime hits the landing page to obtain the session cookies the API
// endpoints demand.
func (s *NSESource) prime(ctx context.Context) error {
	if time.Since(s.lastPrimed) < sessionTTL {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nseBaseURL, nil)
	if err != nil {
		return errors.Wrap(err, "building prime request")
	}
	req.Header.Set("User-Agent", nseUserAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	logging.LogAPICall(s.log, http.MethodGet, nseBaseURL, time.Since(start), err)
	if err != nil {
		return errors.NewFeedError("nse", s.symbol, "priming session", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	s.lastPrimed = time.Now()
	return nil
}

func (s *NSESource) fetchChain(ctx context.Context) (*chainPayload, error) {
	u := fmt.Sprintf("%s?symbol=%s", nseChainURL, url.QueryEscape(s.symbol))
	body, err := s.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var payload chainPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrapf(err, "decoding chain payload for %s", s.symbol)
	}
	return &payload, nil
}

func (s *NSESource) fetchPrevClose(ctx context.Context) (float64, error) {
	name, ok := indexName[s.symbol]
	if !ok {
		return 0, errors.ErrSymbolNotFound
	}
	u := fmt.Sprintf("%s?index=%s", nseIndexURL, url.QueryEscape(name))
	body, err := s.get(ctx, u)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Data []struct {
			PreviousClose float64 `json:"previousClose"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, errors.Wrapf(err, "decoding index payload for %s", name)
	}
	if len(payload.Data) == 0 {
		return 0, errors.ErrDataNotFound
	}
	return payload.Data[0].PreviousClose, nil
}

func (s *NSESource) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", nseUserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	logging.LogAPICall(s.log, http.MethodGet, u, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		// Session went stale; force a re-prime on the next attempt.
		s.lastPrimed = time.Time{}
		return nil, fmt.Errorf("status %d: session rejected", resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, errors.ErrRateLimited
	default:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}
