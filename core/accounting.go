package core

// DefaultAccountCode is used when department or kind is not configured.
const DefaultAccountCode = "XXX"

// AccountingConfig holds the externally configured account-string codes.
type AccountingConfig struct {
	Department string
	Kind       string
}

// Format renders "{department}-{number}-{kind}".
func (c AccountingConfig) Format(number string) string {
	dept, kind := c.Department, c.Kind
	if dept == "" {
		dept = DefaultAccountCode
	}
	if kind == "" {
		kind = DefaultAccountCode
	}
	return dept + "-" + number + "-" + kind
}
