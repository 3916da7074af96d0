package blacklist

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/customeros/mailwatcher/blscan"
	"github.com/opentracing/opentracing-go/log"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/services/dns"
)

const maxParallelLookups = 16

// Per-list reputation weights, matched by substring of the zone name.
var reputationWeights = []struct {
	match  string
	weight int
}{
	{match: "spamhaus", weight: -40},
	{match: "spamcop", weight: -30},
}

type hit struct {
	order  int
	list   string
	reason string
}

type Service struct {
	log          logger.Logger
	resolver     dns.Resolver
	domainZones  []string
	ipZones      []string
	timeout      time.Duration
	extended     bool
	extendedScan func(domain string) *models.ExtendedBlacklist
}

func NewService(cfg *config.BlacklistConfig, resolver dns.Resolver, log logger.Logger) *Service {
	timeout := time.Duration(cfg.LookupTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Service{
		log:          log,
		resolver:     resolver,
		domainZones:  cfg.DomainZones,
		ipZones:      cfg.IPZones,
		timeout:      timeout,
		extended:     cfg.ExtendedScan,
		extendedScan: scanWithMailwatcher,
	}
}

func scanWithMailwatcher(domain string) *models.ExtendedBlacklist {
	result := blscan.ScanBlacklists(domain, "domain")
	return &models.ExtendedBlacklist{
		MajorLists:    result.MajorLists,
		MinorLists:    result.MinorLists,
		SpamTrapLists: result.SpamTrapLists,
	}
}

// CollectIPs returns the distinct IPv4 addresses of the domain and of each of its
// mail exchangers.
func (s *Service) CollectIPs(ctx context.Context, domain string, mx []models.MXRecord) []string {
	seen := make(map[string]struct{})
	var ips []string
	add := func(addresses []string) {
		for _, ip := range addresses {
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			ips = append(ips, ip)
		}
	}

	addresses, _ := s.resolver.LookupA(ctx, domain)
	add(addresses)
	for _, record := range mx {
		addresses, _ := s.resolver.LookupA(ctx, record.Host)
		add(addresses)
	}
	return ips
}

// Check queries every configured list in parallel. A lookup failure counts as
// clean for that list.
func (s *Service) Check(ctx context.Context, domain string, ips []string) *models.BlacklistInfo {
	span, ctx := tracing.StartTracerSpan(ctx, "BlacklistService.Check")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagDomain(span, domain)
	span.LogFields(log.Int("ips.count", len(ips)))

	info := models.NewBlacklistInfo()
	info.LastChecked = time.Now().UTC().Format(time.RFC3339)

	var (
		mu    sync.Mutex
		hits  []hit
		order int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)

	schedule := func(query, list string) {
		position := order
		order++
		g.Go(func() error {
			if listed, reason := s.lookup(gctx, query, list); listed {
				mu.Lock()
				hits = append(hits, hit{order: position, list: list, reason: reason})
				mu.Unlock()
			}
			return nil
		})
	}

	reversedDomain := reverseLabels(domain)
	for _, zone := range s.domainZones {
		schedule(reversedDomain+"."+zone, zone)
	}
	for _, ip := range ips {
		reversedIP, ok := reverseIPv4(ip)
		if !ok {
			continue
		}
		for _, zone := range s.ipZones {
			schedule(reversedIP+"."+zone, fmt.Sprintf("%s (IP: %s)", zone, ip))
		}
	}
	_ = g.Wait()

	sort.Slice(hits, func(i, j int) bool { return hits[i].order < hits[j].order })
	for _, h := range hits {
		info.IsBlacklisted = true
		info.ListsFound = append(info.ListsFound, h.list)
		info.Reasons = append(info.Reasons, h.reason)
	}
	info.ReputationScore = ReputationScore(info.ListsFound)

	if s.extended && s.extendedScan != nil {
		info.Extended = s.extendedScan(domain)
	}

	tracing.LogObjectAsJson(span, "result", info)
	return &info
}

func (s *Service) lookup(ctx context.Context, query, list string) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	zone := list
	if i := strings.Index(zone, " "); i > 0 {
		zone = zone[:i]
	}

	addresses, err := s.resolver.LookupA(ctx, query)
	if err != nil {
		s.log.Warnf("dnsbl lookup %s failed: %v", query, err)
	}
	if len(addresses) == 0 {
		metrics.DNSBLLookup(zone, false)
		return false, ""
	}
	metrics.DNSBLLookup(zone, true)

	reason := zone + ": Listed"
	if txt, _ := s.resolver.LookupTXT(ctx, query); len(txt) > 0 && strings.TrimSpace(txt[0]) != "" {
		reason = strings.Trim(txt[0], `"`)
	}
	return true, reason
}

// ReputationScore starts at 100 and applies the weight of every matching list.
func ReputationScore(lists []string) int {
	score := 100
	for _, list := range lists {
		lower := strings.ToLower(list)
		for _, w := range reputationWeights {
			if strings.Contains(lower, w.match) {
				score += w.weight
				break
			}
		}
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func reverseLabels(domain string) string {
	labels := strings.Split(strings.TrimSuffix(domain, "."), ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, ".")
}

func reverseIPv4(ip string) (string, bool) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d.%d", parsed[3], parsed[2], parsed[1], parsed[0]), true
}
