package soda

import (
	"net/url"
	"strconv"
)

// Query is a SoQL query against a dataset resource. Zero-valued fields are
// omitted from the encoded parameters. Only SoQL fields live here; transport
// settings (timeouts, auth) belong to the Client.
type Query struct {
	Select string
	Where  string
	Order  string
	Limit  int
	Offset int
}

// Values encodes the query as SODA request parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Select != "" {
		v.Set("$select", q.Select)
	}
	if q.Where != "" {
		v.Set("$where", q.Where)
	}
	if q.Order != "" {
		v.Set("$order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("$limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("$offset", strconv.Itoa(q.Offset))
	}
	return v
}
