package id

import "github.com/rs/xid"

// New returns a sortable, URL-safe job id.
func New() string {
	return xid.New().String()
}
