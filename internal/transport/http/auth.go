package http

import (
	"errors"
	"net/http"
)

// ErrNoPrincipal means the request carries no resolvable identity.
var ErrNoPrincipal = errors.New("no authenticated principal")

// PrincipalResolver maps inbound credentials to a stable owner ID. Credential
// issuance and token validation live in the hosted auth layer in front of this
// service; sync logic never runs for an unresolved principal.
type PrincipalResolver interface {
	ResolvePrincipal(r *http.Request) (string, error)
}

// HeaderPrincipalResolver trusts a subject header injected by the auth proxy
// after it has validated the bearer token.
type HeaderPrincipalResolver struct {
	Header string
}

func NewHeaderPrincipalResolver() *HeaderPrincipalResolver {
	return &HeaderPrincipalResolver{Header: "X-User-ID"}
}

func (p *HeaderPrincipalResolver) ResolvePrincipal(r *http.Request) (string, error) {
	owner := r.Header.Get(p.Header)
	if owner == "" {
		return "", ErrNoPrincipal
	}
	return owner, nil
}
