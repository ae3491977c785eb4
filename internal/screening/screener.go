package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrCheckFailed means a reputation lookup could not be completed. Screening
// fails closed on it.
var ErrCheckFailed = errors.New("screening: failed to check the URL")

// Reputation is the subset of the upstream reputation payload screening reads.
type Reputation struct {
	Success    *bool  `json:"success,omitempty"`
	Message    string `json:"message,omitempty"`
	Unsafe     bool   `json:"unsafe"`
	Suspicious bool   `json:"suspicious"`
	Phishing   bool   `json:"phishing,omitempty"`
	Malware    bool   `json:"malware,omitempty"`
	RiskScore  int    `json:"risk_score,omitempty"`
	Domain     string `json:"domain,omitempty"`
}

// ParseReputation decodes an upstream payload. A payload that reports
// success:false is an error.
func ParseReputation(raw []byte) (*Reputation, error) {
	var rep Reputation
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("decode reputation: %w", err)
	}
	if rep.Success != nil && !*rep.Success {
		return nil, fmt.Errorf("reputation lookup rejected: %s", rep.Message)
	}
	return &rep, nil
}

type Verdict int

const (
	Clean Verdict = iota
	Suspicious
	Unsafe
)

func (v Verdict) String() string {
	switch v {
	case Unsafe:
		return "unsafe"
	case Suspicious:
		return "suspicious"
	default:
		return "clean"
	}
}

// Classify maps a reputation to a verdict. Unsafe wins over suspicious.
func Classify(rep *Reputation) Verdict {
	switch {
	case rep.Unsafe:
		return Unsafe
	case rep.Suspicious:
		return Suspicious
	default:
		return Clean
	}
}

type Checker interface {
	Check(ctx context.Context, url string) (*Reputation, error)
}

type CheckerFunc func(ctx context.Context, url string) (*Reputation, error)

func (f CheckerFunc) Check(ctx context.Context, url string) (*Reputation, error) {
	return f(ctx, url)
}

// ConfirmFunc asks whether to send despite suspicious URLs.
type ConfirmFunc func(ctx context.Context, urls []string) bool

// Always returns a ConfirmFunc with a fixed answer.
func Always(answer bool) ConfirmFunc {
	return func(context.Context, []string) bool { return answer }
}

type UnsafeURLError struct {
	URL string
}

func (e *UnsafeURLError) Error() string {
	return fmt.Sprintf("The URL %q is flagged as unsafe.", e.URL)
}

type SuspiciousURLError struct {
	URLs []string
}

func (e *SuspiciousURLError) Error() string {
	return "Message not sent due to suspicious URLs detected: " + strings.Join(e.URLs, ", ")
}

type Result struct {
	Checked    []string
	Suspicious []string
}

type Screener struct {
	checker Checker
	log     zerolog.Logger
}

func NewScreener(checker Checker, log zerolog.Logger) *Screener {
	return &Screener{checker: checker, log: log.With().Str("component", "screening").Logger()}
}

// Screen decides whether text may be sent. URLs are checked one at a time in
// order. The first unsafe verdict stops screening. Suspicious URLs are
// collected and confirmed once at the end, and declining aborts the send.
func (s *Screener) Screen(ctx context.Context, text string, confirm ConfirmFunc) (*Result, error) {
	res := &Result{}
	candidates := Extract(text)
	if len(candidates) == 0 {
		return res, nil
	}

	for _, c := range candidates {
		rep, err := s.checker.Check(ctx, Normalize(c))
		if err != nil {
			s.log.Warn().Err(err).Str("url", c).Msg("reputation check failed")
			return res, fmt.Errorf("%w: %v", ErrCheckFailed, err)
		}
		res.Checked = append(res.Checked, c)

		switch Classify(rep) {
		case Unsafe:
			s.log.Info().Str("url", c).Int("risk_score", rep.RiskScore).Msg("blocked unsafe url")
			return res, &UnsafeURLError{URL: c}
		case Suspicious:
			res.Suspicious = append(res.Suspicious, c)
		}
	}

	if len(res.Suspicious) > 0 {
		if confirm == nil || !confirm(ctx, res.Suspicious) {
			return res, &SuspiciousURLError{URLs: res.Suspicious}
		}
	}
	return res, nil
}
