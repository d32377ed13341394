package models

import "strings"

// Address identifies an entity on the messaging network as node@domain/resource.
type Address struct {
	Node     string `json:"node,omitempty"`
	Domain   string `json:"domain"`
	Resource string `json:"resource,omitempty"`
}

// NewAddress builds an address for a local user. Node is lowercased the way
// the directory stores usernames.
func NewAddress(node, domain, resource string) Address {
	return Address{
		Node:     strings.ToLower(strings.TrimSpace(node)),
		Domain:   strings.ToLower(domain),
		Resource: resource,
	}
}

// Bare returns the address without its resource.
func (a Address) Bare() Address {
	return Address{Node: a.Node, Domain: a.Domain}
}

// String renders the address in node@domain/resource form.
func (a Address) String() string {
	var b strings.Builder
	if a.Node != "" {
		b.WriteString(a.Node)
		b.WriteByte('@')
	}
	b.WriteString(a.Domain)
	if a.Resource != "" {
		b.WriteByte('/')
		b.WriteString(a.Resource)
	}
	return b.String()
}
