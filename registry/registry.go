/*
Package registry looks citizens up in the national person registry.

IMPLEMENTATIONS:
  Mock  a fixed test citizen for every well-formed CPR number
  HTTP  a JSON client for a registry gateway

ENRICHMENT:
  PersonInfo looks the person up and then each relation, attaching the
  relative's record to the relation. Relatives the registry does not know
  are left bare.

SEE ALSO:
  - core/registry.go: Person, Relation and the PersonRegistry contract
  - api/handlers.go: GET /api/related-persons
*/
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/warp/appropriation-engine/core"
)

var cprPattern = regexp.MustCompile(`^\d{10}$`)

// ValidCPR reports whether cpr is ten digits.
func ValidCPR(cpr string) bool { return cprPattern.MatchString(cpr) }

// PersonInfo returns the person with every relation enriched.
func PersonInfo(ctx context.Context, reg core.PersonRegistry, cpr string) (*core.Person, error) {
	p, err := reg.Lookup(ctx, cpr)
	if err != nil {
		return nil, err
	}
	for i := range p.Relations {
		rel := &p.Relations[i]
		relative, err := reg.Lookup(ctx, rel.CPR)
		if core.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("relation %s: %w", rel.Kind, err)
		}
		rel.Person = relative
	}
	return p, nil
}

// =============================================================================
// MOCK
// =============================================================================

// Mock answers every well-formed CPR number with the same test citizen.
type Mock struct{}

func (Mock) Lookup(_ context.Context, cpr string) (*core.Person, error) {
	if !ValidCPR(cpr) {
		return nil, core.NotFound("person", cpr)
	}
	return &core.Person{
		CPR:        "2704785263",
		FirstName:  "Jens Jensner",
		LastName:   "Jensen",
		Address:    "Sterkelsvej 17 A,2",
		PostalCode: "4700",
		City:       "Næstved",
		Relations: []core.Relation{
			{CPR: "0123456780", Kind: "aegtefaelle"},
			{CPR: "1123456789", Kind: "barn"},
			{CPR: "2123456789", Kind: "barn"},
			{CPR: "3123456789", Kind: "barn"},
			{CPR: "0000000000", Kind: "mor"},
			{CPR: "0000000000", Kind: "far"},
		},
		Extra: map[string]any{
			"adresseringsnavn": "Jens Jensner Jensen",
			"foedselsdato":     "1978-04-27",
			"civilstand":       "G",
			"kommunekode":      "370",
		},
	}, nil
}

// =============================================================================
// HTTP CLIENT
// =============================================================================

// HTTP fetches GET {BaseURL}/persons/{cpr}. A 404 maps to ErrNotFound.
type HTTP struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTP(baseURL string) *HTTP {
	return &HTTP{BaseURL: baseURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (h *HTTP) Lookup(ctx context.Context, cpr string) (*core.Person, error) {
	if !ValidCPR(cpr) {
		return nil, core.NotFound("person", cpr)
	}
	endpoint, err := url.JoinPath(h.BaseURL, "persons", cpr)
	if err != nil {
		return nil, fmt.Errorf("registry url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry lookup: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.NotFound("person", cpr)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("registry lookup: unexpected status %d", resp.StatusCode)
	}

	var p core.Person
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	return &p, nil
}
