package dns

import (
	"context"
	"strings"
	"sync"

	mdns "github.com/miekg/dns"

	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/models"
)

// MockResolver is a map-backed Resolver for tests. Names are matched without the
// trailing dot and case-insensitively.
type MockResolver struct {
	MX      map[string][]models.MXRecord
	A       map[string][]string
	TXT     map[string][]string
	Timeout map[string]bool

	mu      sync.Mutex
	queries []string
}

func NewMockResolver() *MockResolver {
	return &MockResolver{
		MX:      map[string][]models.MXRecord{},
		A:       map[string][]string{},
		TXT:     map[string][]string{},
		Timeout: map[string]bool{},
	}
}

func (r *MockResolver) record(qtype uint16, name string) string {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	r.mu.Lock()
	r.queries = append(r.queries, mdns.TypeToString[qtype]+" "+name)
	r.mu.Unlock()
	return name
}

func (r *MockResolver) LookupMX(_ context.Context, domain string) ([]models.MXRecord, error) {
	name := r.record(mdns.TypeMX, domain)
	if r.Timeout[name] {
		return nil, mperrors.ErrDNSTimeout
	}
	return append([]models.MXRecord{}, r.MX[name]...), nil
}

func (r *MockResolver) LookupA(_ context.Context, host string) ([]string, error) {
	name := r.record(mdns.TypeA, host)
	if r.Timeout[name] {
		return []string{}, mperrors.ErrDNSTimeout
	}
	return append([]string{}, r.A[name]...), nil
}

func (r *MockResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	key := r.record(mdns.TypeTXT, name)
	if r.Timeout[key] {
		return []string{}, mperrors.ErrDNSTimeout
	}
	return append([]string{}, r.TXT[key]...), nil
}

// Queries returns every lookup issued so far as "TYPE name".
func (r *MockResolver) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.queries...)
}
