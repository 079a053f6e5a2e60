package proxy

import (
	"errors"
	"fmt"
	"net/http"
)

const defaultCredentialHeader = "x-api-key"

// Headers a sandboxed client may use to carry its placeholder credential
var placeholderHeaders = []string{"Authorization", "X-Api-Key"}

// CredentialInjector swaps the caller's placeholder credential for the real
// upstream secret. The secret is never exposed through String or logs.
type CredentialInjector struct {
	header string
	prefix string
	secret string
}

func NewCredentialInjector(header, prefix, secret string) (*CredentialInjector, error) {
	if secret == "" {
		return nil, errors.New("upstream api key is not configured")
	}
	if header == "" {
		header = defaultCredentialHeader
	}
	return &CredentialInjector{header: header, prefix: prefix, secret: secret}, nil
}

// Apply removes every placeholder credential header and sets the real one
func (i *CredentialInjector) Apply(h http.Header) {
	for _, name := range placeholderHeaders {
		h.Del(name)
	}
	h.Set(i.header, i.prefix+i.secret)
}

func (i *CredentialInjector) String() string {
	return fmt.Sprintf("CredentialInjector{header: %s, secret: [REDACTED]}", i.header)
}
