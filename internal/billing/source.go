package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

// DefaultPageSize is the largest page the provider accepts.
const DefaultPageSize = 100

// Source yields the provider's complete subscription list.
type Source interface {
	FetchAllActiveSubscriptions(ctx context.Context) (*FetchResult, error)
}

// PageRequest asks for one page of subscriptions after Cursor.
type PageRequest struct {
	Limit  int
	Status string
	Cursor string
}

// RawSubscription is a provider subscription before boundary normalization.
type RawSubscription struct {
	ID                string
	CustomerID        string
	CustomerEmail     string
	Status            string
	CancelAtPeriodEnd bool
}

// Page is one provider response.
type Page struct {
	Records []RawSubscription
	HasMore bool
}

// PageFetcher performs a single paginated list call against the provider.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// FetchResult is the normalized billing view for a run.
type FetchResult struct {
	Records          []domain.BillingRecord
	Pages            int
	SkippedMalformed int
	// Malformed holds the ids of subscriptions skipped for lacking an email.
	Malformed []string
}

// SourceFetchError aborts a run: a truncated billing view would misclassify identities.
type SourceFetchError struct {
	Page   int
	Cursor string
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("billing source fetch failed on page %d (cursor %q): %v", e.Page, e.Cursor, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// IsSourceFetchError reports whether err came from reading the billing source.
func IsSourceFetchError(err error) bool {
	var sfe *SourceFetchError
	return errors.As(err, &sfe)
}

var errEmptyPageWithMore = errors.New("provider reported more pages after an empty page")

// Client pages through the provider sequentially and normalizes records.
type Client struct {
	fetcher     PageFetcher
	pageSize    int
	pageTimeout time.Duration
	logger      *zap.Logger
}

// ClientOptions configures a Client.
type ClientOptions struct {
	PageSize    int
	PageTimeout time.Duration
	Logger      *zap.Logger
}

// NewClient wraps a PageFetcher.
func NewClient(fetcher PageFetcher, opts ClientOptions) *Client {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > DefaultPageSize {
		pageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		fetcher:     fetcher,
		pageSize:    pageSize,
		pageTimeout: opts.PageTimeout,
		logger:      logger,
	}
}

// FetchAllActiveSubscriptions reads every page in order. Despite the name it
// asks for all statuses; the merger needs canceled records too.
func (c *Client) FetchAllActiveSubscriptions(ctx context.Context) (*FetchResult, error) {
	result := &FetchResult{}
	cursor := ""

	for {
		page, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return nil, &SourceFetchError{Page: result.Pages + 1, Cursor: cursor, Err: err}
		}
		result.Pages++

		for _, raw := range page.Records {
			rec, ok := normalize(raw)
			if !ok {
				result.SkippedMalformed++
				result.Malformed = append(result.Malformed, raw.ID)
				c.logger.Debug("skipping billing record without customer email", zap.String("subscription_id", raw.ID))
				continue
			}
			result.Records = append(result.Records, rec)
		}

		if !page.HasMore {
			break
		}
		if len(page.Records) == 0 {
			return nil, &SourceFetchError{Page: result.Pages, Cursor: cursor, Err: errEmptyPageWithMore}
		}
		cursor = page.Records[len(page.Records)-1].ID
	}

	c.logger.Info("billing source fetched",
		zap.Int("pages", result.Pages),
		zap.Int("records", len(result.Records)),
		zap.Int("skipped_malformed", result.SkippedMalformed))
	return result, nil
}

func (c *Client) fetchPage(ctx context.Context, cursor string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pageCtx := ctx
	if c.pageTimeout > 0 {
		var cancel context.CancelFunc
		pageCtx, cancel = context.WithTimeout(ctx, c.pageTimeout)
		defer cancel()
	}
	page, err := c.fetcher.FetchPage(pageCtx, PageRequest{Limit: c.pageSize, Status: "all", Cursor: cursor})
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, errors.New("provider returned no page")
	}
	return page, nil
}

func normalize(raw RawSubscription) (domain.BillingRecord, bool) {
	key := domain.NormalizeIdentityKey(raw.CustomerEmail)
	if key == "" {
		return domain.BillingRecord{}, false
	}
	return domain.BillingRecord{
		ExternalSubscriptionID: raw.ID,
		ExternalCustomerID:     raw.CustomerID,
		IdentityKey:            key,
		Status:                 domain.ParseSubscriptionStatus(raw.Status),
		CancelAtPeriodEnd:      raw.CancelAtPeriodEnd,
	}, true
}
