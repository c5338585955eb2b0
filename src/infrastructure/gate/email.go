package gate

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"packsight/src/log"
)

// EmailGate validates the email credential presented when starting a
// gated pipeline. It checks address shape and, when configured, that
// the address belongs to an allowed domain. Pass/fail only; nothing is
// persisted.
type EmailGate struct {
	allowedDomains []string
}

func NewEmailGate(allowedDomains []string) *EmailGate {
	domains := make([]string, 0, len(allowedDomains))
	for _, d := range allowedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return &EmailGate{allowedDomains: domains}
}

func (g *EmailGate) Validate(ctx context.Context, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return fmt.Errorf("email is required")
	}

	addr, err := mail.ParseAddress(credential)
	if err != nil {
		return fmt.Errorf("invalid email address %q", credential)
	}

	if len(g.allowedDomains) == 0 {
		return nil
	}

	at := strings.LastIndex(addr.Address, "@")
	domain := strings.ToLower(addr.Address[at+1:])
	for _, allowed := range g.allowedDomains {
		if domain == allowed {
			return nil
		}
	}

	log.Debug("email domain rejected", "domain", domain)
	return fmt.Errorf("email domain %q is not allowed", domain)
}
