package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/spec-kit/subscription-reconciler/internal/billing"
	"github.com/spec-kit/subscription-reconciler/internal/domain"
)

var errStoreDown = errors.New("store unavailable")

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, c := range l.all() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type memPrimary struct {
	mu         sync.Mutex
	log        *callLog
	order      []string
	identities map[string]domain.IdentityRecord
	failIDs    map[string]error
	listErr    error
	onUpdate   func(id string)
}

func newMemPrimary(log *callLog, identities ...domain.IdentityRecord) *memPrimary {
	p := &memPrimary{log: log, identities: map[string]domain.IdentityRecord{}, failIDs: map[string]error{}}
	for _, identity := range identities {
		p.order = append(p.order, identity.ID)
		p.identities[identity.ID] = identity
	}
	return p
}

func (p *memPrimary) ListIdentities(ctx context.Context) ([]domain.IdentityRecord, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.IdentityRecord, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.identities[id])
	}
	return out, nil
}

func (p *memPrimary) UpdateEntitlement(ctx context.Context, id string, target domain.TargetState) error {
	p.log.add("primary:" + id)
	if p.onUpdate != nil {
		p.onUpdate(id)
	}
	if err, ok := p.failIDs[id]; ok {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	identity := p.identities[id]
	identity.EntitlementActive = target.EntitlementActive
	identity.SubscriptionStatus = target.SubscriptionStatus
	identity.ExternalCustomerID = target.ExternalCustomerID
	identity.ExternalSubscriptionID = target.ExternalSubscriptionID
	p.identities[id] = identity
	return nil
}

func (p *memPrimary) get(id string) domain.IdentityRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identities[id]
}

type memClaims struct {
	mu      sync.Mutex
	log     *callLog
	claims  map[string]domain.Claims
	failIDs map[string]error
}

func newMemClaims(log *callLog) *memClaims {
	return &memClaims{log: log, claims: map[string]domain.Claims{}, failIDs: map[string]error{}}
}

func (c *memClaims) SetClaims(ctx context.Context, id string, claims domain.Claims) error {
	c.log.add("claims:" + id)
	if err, ok := c.failIDs[id]; ok {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims[id] = claims
	return nil
}

func (c *memClaims) GetClaims(ctx context.Context, id string) (*domain.Claims, error) {
	c.log.add("claims-read:" + id)
	c.mu.Lock()
	defer c.mu.Unlock()
	claims, ok := c.claims[id]
	if !ok {
		return nil, nil
	}
	return &claims, nil
}

type staticSource struct {
	result *billing.FetchResult
	err    error
	calls  int
}

func (s *staticSource) FetchAllActiveSubscriptions(ctx context.Context) (*billing.FetchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func sourceOf(records ...domain.BillingRecord) *staticSource {
	return &staticSource{result: &billing.FetchResult{Records: records, Pages: 1}}
}

func record(subID, email string, status domain.SubscriptionStatus) domain.BillingRecord {
	return domain.BillingRecord{
		ExternalSubscriptionID: subID,
		ExternalCustomerID:     "cus_" + subID,
		IdentityKey:            domain.NormalizeIdentityKey(email),
		Status:                 status,
	}
}
