package smtp

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/tracing"
	"github.com/customeros/mailprobe/internal/utils"
)

// Free-mail domains whose published MX does not answer RCPT probes reliably.
var mxOverrides = map[string]string{
	"gmail.com":   "gmail-smtp-in.l.google.com",
	"outlook.com": "outlook.office365.com",
	"hotmail.com": "outlook.office365.com",
	"yahoo.com":   "mta5.am0.yahoodns.net",
	"aol.com":     "mx.aol.com",
}

// DialFunc opens the TCP connection to a mail exchanger.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Prober struct {
	log      logger.Logger
	dial     DialFunc
	port     int
	helo     string
	mailFrom string
	timeout  time.Duration
	slotWait time.Duration
	sem      *semaphore.Weighted
}

func NewProber(cfg *config.ValidationConfig, log logger.Logger) *Prober {
	dialer := &net.Dialer{Timeout: cfg.SMTPTimeoutDuration()}
	limit := cfg.MaxConcurrentValidations
	if limit <= 0 {
		limit = 1
	}
	return &Prober{
		log:      log,
		dial:     dialer.DialContext,
		port:     cfg.SMTPPort,
		helo:     cfg.SMTPHeloDomain,
		mailFrom: cfg.SMTPMailFrom,
		timeout:  cfg.SMTPTimeoutDuration(),
		slotWait: cfg.SMTPTimeoutDuration(),
		sem:      semaphore.NewWeighted(int64(limit)),
	}
}

// WithDialer replaces the network dialer, mainly for tests.
func (p *Prober) WithDialer(dial DialFunc) *Prober {
	p.dial = dial
	return p
}

// ProbeHosts returns the exchangers to try for a domain, in order.
func ProbeHosts(domain string, mx []string) []string {
	if host, ok := mxOverrides[strings.ToLower(domain)]; ok {
		return []string{host}
	}
	return mx
}

// Probe runs the RCPT sequence against each exchanger until one gives a
// definitive answer. Waiting for a local slot is bounded separately; the SMTP
// timeout only covers the sessions themselves.
func (p *Prober) Probe(ctx context.Context, req models.ProbeRequest) *models.ProbeResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Prober.Probe")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEmail(span, req.Email)
	tracing.TagDomain(span, req.Domain)

	if err := p.acquire(ctx); err != nil {
		tracing.TraceErr(span, err)
		metrics.SMTPProbe("skipped")
		result := timeoutResult("SMTP validation timeout")
		result.Skipped = true
		return result
	}
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	hosts := ProbeHosts(req.Domain, req.MXHosts)
	if len(hosts) == 0 {
		return &models.ProbeResult{
			Status:    enum.StatusUndeliverable,
			SubStatus: enum.SubStatusInvalidDomain,
			Reason:    "No MX records found",
		}
	}

	var best *models.ProbeResult
	failures := 0
	for _, host := range hosts {
		result := p.session(ctx, host, req.Email, req.Domain, req.CheckCatchAll)
		span.LogFields(log.String("host", host), log.Int("code", result.Code), log.String("sub_status", result.SubStatus.String()))
		if result.TransportFailure {
			failures++
		}
		if isDefinitive(result.Code) {
			best = result
			break
		}
		best = preferred(best, result)
		if ctx.Err() != nil {
			if !best.Exists {
				if !result.TransportFailure {
					failures++
				}
				best = timeoutResult("SMTP validation timeout")
				best.TransportFailure = true
				best.Host = host
			}
			break
		}
	}
	best.TransportFailures = failures

	metrics.SMTPProbe(outcome(best))
	tracing.LogObjectAsJson(span, "result", best)
	return best
}

// CatchAll reports whether the domain accepts RCPT for a synthetic local part.
// A transport failure is returned as an error; a missed slot as
// ErrSMTPSlotUnavailable.
func (p *Prober) CatchAll(ctx context.Context, domain string, mx []string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Prober.CatchAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDomain(span, domain)

	if err := p.acquire(ctx); err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	defer p.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	hosts := ProbeHosts(domain, mx)
	if len(hosts) == 0 {
		return false, nil
	}

	probe := utils.GenerateProbeLocalPart() + "@" + domain
	client, err := p.open(ctx, hosts[0])
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	defer closeQuietly(client)

	code, _, err := rcpt(client, probe)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	span.LogFields(log.Int("code", code))
	return code == 250, nil
}

// acquire waits for a session slot, at most slotWait.
func (p *Prober) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.slotWait)
	defer cancel()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		return errors.Wrap(mperrors.ErrSMTPSlotUnavailable, err.Error())
	}
	return nil
}

// preferred keeps an existing mailbox over a protocol answer, and a protocol
// answer over a transport failure. Ties go to the later host.
func preferred(current, next *models.ProbeResult) *models.ProbeResult {
	if current == nil || rank(next) >= rank(current) {
		return next
	}
	return current
}

func rank(result *models.ProbeResult) int {
	switch {
	case result.Exists:
		return 2
	case result.TransportFailure:
		return 0
	default:
		return 1
	}
}

func (p *Prober) session(ctx context.Context, host, email, domain string, checkCatchAll bool) *models.ProbeResult {
	result := &models.ProbeResult{Host: host}

	client, err := p.open(ctx, host)
	if err != nil {
		return classifyFailure(result, err)
	}
	defer closeQuietly(client)

	if checkCatchAll {
		code, _, err := rcpt(client, utils.GenerateProbeLocalPart()+"@"+domain)
		if err != nil {
			return classifyFailure(result, err)
		}
		result.CatchAllTested = true
		result.CatchAll = code == 250
	}

	code, message, err := rcpt(client, email)
	if err != nil {
		return classifyFailure(result, err)
	}
	return classifyRcpt(result, code, message)
}

// open connects and completes the greeting, HELO and MAIL FROM steps.
func (p *Prober) open(ctx context.Context, host string) (*smtp.Client, error) {
	address := net.JoinHostPort(host, strconv.Itoa(p.port))
	conn, err := p.dial(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", address)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "greeting from %s", host)
	}
	if err = client.Hello(p.helo); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "HELO")
	}
	if err = client.Mail(p.mailFrom); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "MAIL FROM")
	}
	return client, nil
}

// rcpt issues RCPT TO and returns the reply code. Protocol rejections are
// returned as codes, transport errors as err.
func rcpt(client *smtp.Client, address string) (int, string, error) {
	err := client.Rcpt(address)
	if err == nil {
		return 250, "OK", nil
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code, protoErr.Msg, nil
	}
	return 0, "", errors.Wrap(err, "RCPT TO")
}

func classifyRcpt(result *models.ProbeResult, code int, message string) *models.ProbeResult {
	result.Code = code
	result.Message = message
	switch code {
	case 250, 251:
		result.Exists = true
		result.Status = enum.StatusDeliverable
		result.Reason = "Email exists"
	case 552:
		result.Exists = true
		result.MailboxFull = true
		result.Status = enum.StatusDeliverable
		result.Reason = nonEmpty(message, "Mailbox full")
	case 550, 551, 553:
		result.Status = enum.StatusUndeliverable
		result.SubStatus = enum.SubStatusRejectedEmail
		result.Reason = nonEmpty(message, "Mailbox unavailable")
	case 421, 450, 451:
		result.Status = enum.StatusUnknown
		result.SubStatus = enum.SubStatusUnavailableSMTP
		result.Reason = nonEmpty(message, "Server temporary error")
	default:
		result.Status = enum.StatusUnknown
		result.SubStatus = enum.SubStatusUnavailableSMTP
		result.Reason = nonEmpty(message, fmt.Sprintf("Unexpected SMTP response %d", code))
	}
	return result
}

// classifyFailure maps an error raised before a RCPT reply. Reply codes from
// the greeting, HELO or MAIL steps are protocol rejections; anything else is a
// transport failure.
func classifyFailure(result *models.ProbeResult, err error) *models.ProbeResult {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		result.Code = protoErr.Code
		result.Message = protoErr.Msg
		result.Reason = nonEmpty(protoErr.Msg, err.Error())
		if protoErr.Code >= 500 {
			result.Status = enum.StatusUndeliverable
			result.SubStatus = enum.SubStatusInvalidSMTP
		} else {
			result.Status = enum.StatusUnknown
			result.SubStatus = enum.SubStatusUnavailableSMTP
		}
		return result
	}

	result.TransportFailure = true
	result.Status = enum.StatusUnknown
	result.Reason = err.Error()
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		result.SubStatus = enum.SubStatusTimeout
		result.Reason = "SMTP connection timeout"
	} else {
		result.SubStatus = enum.SubStatusNoConnect
	}
	return result
}

func timeoutResult(reason string) *models.ProbeResult {
	return &models.ProbeResult{
		Status:    enum.StatusUnknown,
		SubStatus: enum.SubStatusTimeout,
		Reason:    reason,
	}
}

func isDefinitive(code int) bool {
	switch code {
	case 250, 251, 550, 551, 553:
		return true
	}
	return false
}

func outcome(result *models.ProbeResult) string {
	switch {
	case result.Skipped:
		return "skipped"
	case result.MailboxFull:
		return "mailbox_full"
	case result.Exists:
		return "exists"
	case result.SubStatus == enum.SubStatusRejectedEmail:
		return "rejected"
	case result.SubStatus == enum.SubStatusTimeout:
		return "timeout"
	case result.TransportFailure:
		return "no_connect"
	case result.Status == enum.StatusUndeliverable:
		return "invalid_smtp"
	default:
		return "transient"
	}
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func closeQuietly(client *smtp.Client) {
	if err := client.Quit(); err != nil {
		_ = client.Close()
	}
}
