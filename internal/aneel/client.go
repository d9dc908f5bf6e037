// Package aneel reads the tariff flag and applicable tariff datasets from
// the ANEEL open-data portal (a CKAN datastore).
package aneel

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/kwhmedio/internal/cache"
	"github.com/bher20/kwhmedio/internal/log"
	"github.com/bher20/kwhmedio/internal/metrics"
	"github.com/bher20/kwhmedio/internal/storage"
)

const (
	DefaultBaseURL          = "https://dadosabertos.aneel.gov.br/api/3/action"
	DefaultFlagsResourceID  = "0591b8f6-fe54-437b-b72b-1aa2efd46e42"
	DefaultTariffResourceID = "fcf2906c-7c32-4b9b-a637-054e7a5234f4"
	DefaultPageSize         = 100

	datasetFlags   = "flags"
	datasetTariffs = "tariffs"
)

// ErrUpstreamUnavailable is returned when the live fetch failed and no
// cached copy could stand in for it.
var ErrUpstreamUnavailable = errors.New("aneel: upstream unavailable")

// Client fetches complete datasets page by page. A failed fetch falls back to
// the last successful result held in the configured cache.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	timeout    time.Duration

	flagsResourceID  string
	tariffResourceID string

	flagCache   cache.Cache[[]FlagActivation]
	tariffCache cache.Cache[[]TariffRecord]
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTimeout bounds every page request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

func WithFlagCache(fc cache.Cache[[]FlagActivation]) Option {
	return func(c *Client) { c.flagCache = fc }
}

func WithTariffCache(tc cache.Cache[[]TariffRecord]) Option {
	return func(c *Client) { c.tariffCache = tc }
}

// WithStorage backs both caches with JSON snapshots in st. Caches set
// explicitly with WithFlagCache or WithTariffCache are left alone.
func WithStorage(st storage.Storage) Option {
	return func(c *Client) {
		if st == nil {
			return
		}
		if c.flagCache == nil {
			c.flagCache = cache.NewSnapshots[[]FlagActivation](st)
		}
		if c.tariffCache == nil {
			c.tariffCache = cache.NewSnapshots[[]TariffRecord](st)
		}
	}
}

func WithResourceIDs(flags, tariffs string) Option {
	return func(c *Client) {
		if flags != "" {
			c.flagsResourceID = flags
		}
		if tariffs != "" {
			c.tariffResourceID = tariffs
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:       NewHTTPClient(0),
		baseURL:          DefaultBaseURL,
		pageSize:         DefaultPageSize,
		flagsResourceID:  DefaultFlagsResourceID,
		tariffResourceID: DefaultTariffResourceID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FlagActivations returns the whole flag series ordered by competency month.
func (c *Client) FlagActivations(ctx context.Context) ([]FlagActivation, error) {
	records, err := paginate(ctx, c.pageSize, func(ctx context.Context, offset, limit int) ([]FlagActivation, error) {
		q := url.Values{}
		q.Set("resource_id", c.flagsResourceID)
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))
		return getRecords[FlagActivation](ctx, c, datasetFlags, "datastore_search", q)
	}, shortPage)
	if err != nil {
		return fallback(ctx, c.flagCache, datasetFlags, flagsCacheKey, err)
	}

	// an activation without a competency month cannot be placed in the series
	if n := len(records); n > 0 {
		records = slices.DeleteFunc(records, func(f FlagActivation) bool { return f.Competency.IsZero() })
		if dropped := n - len(records); dropped > 0 {
			log.Ctx(ctx).Warn("dropped flag activations without competency", "count", dropped)
		}
	}

	slices.SortStableFunc(records, func(a, b FlagActivation) int {
		return a.Competency.Compare(b.Competency.Time)
	})
	refresh(ctx, c.flagCache, datasetFlags, flagsCacheKey, records)
	return records, nil
}

// ApplicableTariffs returns the "Tarifa de Aplicação" records matching q,
// ordered by record id.
func (c *Client) ApplicableTariffs(ctx context.Context, q TariffQuery) ([]TariffRecord, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	key := TariffsCacheKey(q)

	records, err := paginate(ctx, c.pageSize, func(ctx context.Context, offset, limit int) ([]TariffRecord, error) {
		stmt := tariffStatement(c.tariffResourceID, q).page(limit, offset)
		v := url.Values{}
		v.Set("sql", stmt.String())
		return getRecords[TariffRecord](ctx, c, datasetTariffs, "datastore_search_sql", v)
	}, shortPage)
	if err != nil {
		return fallback(ctx, c.tariffCache, datasetTariffs, key, err)
	}

	slices.SortStableFunc(records, func(a, b TariffRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})
	refresh(ctx, c.tariffCache, datasetTariffs, key, records)
	return records, nil
}

func getRecords[T any](ctx context.Context, c *Client, dataset, action string, q url.Values) (records []T, err error) {
	started := time.Now()
	defer func() { metrics.ObserveUpstreamPage(dataset, started, err) }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/" + action + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: status %d", action, resp.StatusCode)
	}

	var env envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", action, err)
	}
	if !env.Success {
		msg := "success=false"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return nil, fmt.Errorf("%s: %s", action, msg)
	}
	return env.Result.Records, nil
}

// fallback answers a failed live fetch from the cache. A caller that gave up
// gets its context error, not a stale copy.
func fallback[T any](ctx context.Context, c cache.Cache[T], dataset, key string, cause error) (T, error) {
	var zero T
	logger := log.Ctx(ctx).With("dataset", dataset, "key", key)

	if ctx.Err() != nil {
		return zero, fmt.Errorf("aneel: %s: %w", dataset, cause)
	}
	if c == nil {
		metrics.CacheFallbackTotal.WithLabelValues(dataset, "miss").Inc()
		return zero, fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, dataset, cause)
	}

	v, ok, err := c.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheFallbackTotal.WithLabelValues(dataset, "error").Inc()
		logger.Error("cache lookup failed after upstream error", "error", err, "upstream_error", cause)
		return zero, fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, dataset, cause)
	case !ok:
		metrics.CacheFallbackTotal.WithLabelValues(dataset, "miss").Inc()
		return zero, fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, dataset, cause)
	}

	metrics.CacheFallbackTotal.WithLabelValues(dataset, "hit").Inc()
	logger.Warn("upstream fetch failed, serving cached copy", "error", cause)
	return v, nil
}

// refresh overwrites the cached copy after a successful fetch. Errors are
// logged only.
func refresh[T any](ctx context.Context, c cache.Cache[T], dataset, key string, v T) {
	if c == nil {
		return
	}
	if err := c.Set(ctx, key, v); err != nil {
		log.Ctx(ctx).Warn("failed to refresh cache", "dataset", dataset, "key", key, "error", err)
	}
}
