package dns

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailprobe/config"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
)

const resolvConfPath = "/etc/resolv.conf"

// Resolver answers the record lookups used by the pipeline. Implementations
// return an error only when the lookup timed out; every other failure yields an
// empty answer.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]models.MXRecord, error)
	LookupA(ctx context.Context, host string) ([]string, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type Client struct {
	log     logger.Logger
	udp     *mdns.Client
	tcp     *mdns.Client
	servers []string
	timeout time.Duration
}

func NewClient(cfg *config.ValidationConfig, log logger.Logger) *Client {
	timeout := cfg.DNSTimeoutDuration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		log:     log,
		udp:     &mdns.Client{Net: "udp", Timeout: timeout},
		tcp:     &mdns.Client{Net: "tcp", Timeout: timeout},
		servers: systemServers(cfg.DNSServers),
		timeout: timeout,
	}
}

// NewClientWithServers skips resolv.conf discovery.
func NewClientWithServers(servers []string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		log:     log,
		udp:     &mdns.Client{Net: "udp", Timeout: timeout},
		tcp:     &mdns.Client{Net: "tcp", Timeout: timeout},
		servers: servers,
		timeout: timeout,
	}
}

func systemServers(fallback []string) []string {
	var servers []string
	if conf, err := mdns.ClientConfigFromFile(resolvConfPath); err == nil {
		for _, server := range conf.Servers {
			servers = append(servers, net.JoinHostPort(server, conf.Port))
		}
	}
	for _, server := range fallback {
		server = strings.TrimSpace(server)
		if server == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		servers = append(servers, server)
	}
	return servers
}

func (c *Client) LookupMX(ctx context.Context, domain string) ([]models.MXRecord, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "DNSClient.LookupMX")
	defer span.Finish()
	tracing.TagDomain(span, domain)

	msg, err := c.query(ctx, domain, mdns.TypeMX)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if msg == nil {
		return []models.MXRecord{}, nil
	}

	records := make([]models.MXRecord, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		if mx, ok := rr.(*mdns.MX); ok {
			host := strings.TrimSuffix(mx.Mx, ".")
			if host == "" {
				continue
			}
			records = append(records, models.MXRecord{Host: strings.ToLower(host), Preference: mx.Preference})
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Preference < records[j].Preference
	})
	span.LogFields(log.Int("result.count", len(records)))
	return records, nil
}

func (c *Client) LookupA(ctx context.Context, host string) ([]string, error) {
	msg, err := c.query(ctx, host, mdns.TypeA)
	if err != nil || msg == nil {
		return []string{}, err
	}
	addresses := make([]string, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		if a, ok := rr.(*mdns.A); ok {
			addresses = append(addresses, a.A.String())
		}
	}
	return addresses, nil
}

func (c *Client) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg, err := c.query(ctx, name, mdns.TypeTXT)
	if err != nil || msg == nil {
		return []string{}, err
	}
	records := make([]string, 0, len(msg.Answer))
	for _, rr := range msg.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

// query asks each configured server in turn. A nil message with a nil error means
// the name does not resolve or no server gave a usable answer.
func (c *Client) query(ctx context.Context, name string, qtype uint16) (*mdns.Msg, error) {
	if len(c.servers) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(name), qtype)
	m.RecursionDesired = true

	timedOut := false
	for _, server := range c.servers {
		in, _, err := c.udp.ExchangeContext(ctx, m, server)
		if err == nil && in != nil && in.Truncated {
			in, _, err = c.tcp.ExchangeContext(ctx, m, server)
		}
		if err != nil {
			if isTimeout(err) {
				timedOut = true
			}
			c.log.Debugf("dns query %s %s via %s failed: %v", mdns.TypeToString[qtype], name, server, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch in.Rcode {
		case mdns.RcodeSuccess:
			return in, nil
		case mdns.RcodeNameError:
			return nil, nil
		default:
			c.log.Debugf("dns query %s %s via %s returned %s", mdns.TypeToString[qtype], name, server, mdns.RcodeToString[in.Rcode])
		}
	}

	if timedOut || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, errors.Wrapf(mperrors.ErrDNSTimeout, "%s %s", mdns.TypeToString[qtype], name)
	}
	return nil, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
