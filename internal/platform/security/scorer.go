package security

import (
	"net"
	"net/url"
	"strings"
)

// ruleFunc inspects request inputs and returns a partial score contribution.
type ruleFunc func(identity string, input map[string]string) int

// Scorer computes a 0-100 risk score from a fixed rule set. The score is
// advisory: the core logs it, external collaborators act on it.
type Scorer struct {
	rules []ruleFunc
}

func NewScorer() *Scorer {
	return &Scorer{
		rules: []ruleFunc{
			rulePlainHTTPTarget,
			rulePrivateAddressTarget,
			ruleSuspiciousKeywords,
			ruleMissingIdentity,
		},
	}
}

func (s *Scorer) Score(identity string, input map[string]string) int {
	total := 0
	for _, r := range s.rules {
		total += r(identity, input)
	}
	if total > 100 {
		total = 100
	}
	return total
}

func rulePlainHTTPTarget(_ string, input map[string]string) int {
	target := input["url"]
	if strings.HasPrefix(strings.ToLower(target), "http://") {
		return 20
	}
	return 0
}

// Webhook targets pointing at loopback or RFC1918 space suggest SSRF probing.
func rulePrivateAddressTarget(_ string, input map[string]string) int {
	target := input["url"]
	if target == "" {
		return 0
	}
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return 0
	}
	host := u.Hostname()
	if host == "localhost" {
		return 40
	}
	ip := net.ParseIP(host)
	if ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
		return 40
	}
	return 0
}

var suspiciousKeywords = []string{"metadata", "169.254.", "internal", "admin", "..%2f"}

func ruleSuspiciousKeywords(_ string, input map[string]string) int {
	score := 0
	for _, v := range input {
		lower := strings.ToLower(v)
		for _, kw := range suspiciousKeywords {
			if strings.Contains(lower, kw) {
				score += 15
				break
			}
		}
	}
	return score
}

func ruleMissingIdentity(identity string, _ map[string]string) int {
	if identity == "" {
		return 10
	}
	return 0
}
