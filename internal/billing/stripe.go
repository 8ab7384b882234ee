package billing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/zap"
)

// StripeOptions configures the Stripe-backed PageFetcher.
type StripeOptions struct {
	HTTPTimeout       time.Duration
	MaxNetworkRetries int
	Logger            *zap.Logger
}

// StripePager lists subscriptions one page at a time with the customer expanded inline.
type StripePager struct {
	subs subscription.Client
}

// NewStripePager builds a pager with its own backend rather than the package-global one.
func NewStripePager(secretKey string, opts StripeOptions) *StripePager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := stripelib.GetBackendWithConfig(stripelib.APIBackend, &stripelib.BackendConfig{
		HTTPClient:        &http.Client{Timeout: opts.HTTPTimeout},
		MaxNetworkRetries: stripelib.Int64(int64(opts.MaxNetworkRetries)),
		LeveledLogger:     &zapLeveledLogger{logger: logger.Named("stripe").Sugar()},
	})
	return &StripePager{subs: subscription.Client{B: backend, Key: secretKey}}
}

// FetchPage implements PageFetcher.
func (p *StripePager) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	params := &stripelib.SubscriptionListParams{}
	params.Context = ctx
	params.Single = true
	params.Limit = stripelib.Int64(int64(req.Limit))
	if req.Status != "" {
		params.Status = stripelib.String(req.Status)
	}
	if req.Cursor != "" {
		params.StartingAfter = stripelib.String(req.Cursor)
	}
	params.AddExpand("data.customer")

	it := p.subs.List(params)
	page := &Page{}
	for it.Next() {
		page.Records = append(page.Records, fromStripeSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if meta := it.Meta(); meta != nil {
		page.HasMore = meta.HasMore
	}
	return page, nil
}

func fromStripeSubscription(sub *stripelib.Subscription) RawSubscription {
	if sub == nil {
		return RawSubscription{}
	}
	raw := RawSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		raw.CustomerID = sub.Customer.ID
		if !sub.Customer.Deleted {
			raw.CustomerEmail = sub.Customer.Email
		}
	}
	return raw
}

// zapLeveledLogger routes stripe-go's internal logging through zap.
type zapLeveledLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLeveledLogger) Debugf(format string, v ...interface{}) { l.logger.Debugf(format, v...) }
// Infof is demoted: stripe-go logs every request at info.
func (l *zapLeveledLogger) Infof(format string, v ...interface{}) { l.logger.Debugf(format, v...) }
func (l *zapLeveledLogger) Warnf(format string, v ...interface{}) { l.logger.Warnf(format, v...) }
func (l *zapLeveledLogger) Errorf(format string, v ...interface{}) { l.logger.Errorf(format, v...) }
