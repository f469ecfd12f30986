package core

import "context"

// Person is a citizen record from the national person registry.
type Person struct {
	CPR        string         `json:"cpr"`
	FirstName  string         `json:"first_name"`
	LastName   string         `json:"last_name"`
	Address    string         `json:"address,omitempty"`
	PostalCode string         `json:"postal_code,omitempty"`
	City       string         `json:"city,omitempty"`
	Relations  []Relation     `json:"relations"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Relation links a person to a relative. Person is filled in by enrichment.
type Relation struct {
	CPR    string  `json:"cpr"`
	Kind   string  `json:"relation"`
	Person *Person `json:"person,omitempty"`
}

// PersonRegistry looks people up by CPR number. Lookup returns an error
// wrapping ErrNotFound when the registry has no record.
type PersonRegistry interface {
	Lookup(ctx context.Context, cpr string) (*Person, error)
}
