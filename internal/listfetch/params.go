package listfetch

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultPage = 1
	DefaultSize = 10
	MaxSize     = 100
)

// Params are the list query parameters. A hook replaces them wholesale.
type Params struct {
	Page   int
	Size   int
	Search string
	// Sort is a field name, prefixed with '-' for descending.
	Sort    string
	Filters map[string]string
}

// Normalized fills defaults and clamps Size.
func (p Params) Normalized() Params {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Size < 1 {
		p.Size = DefaultSize
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}
	return p
}

// Clone returns a copy with its own Filters map.
func (p Params) Clone() Params {
	if p.Filters != nil {
		f := make(map[string]string, len(p.Filters))
		for k, v := range p.Filters {
			f[k] = v
		}
		p.Filters = f
	}
	return p
}

// WithPage returns a copy on another page.
func (p Params) WithPage(page int) Params {
	next := p.Clone()
	next.Page = page
	return next
}

// WithSearch returns a copy with a new search term, back on the first page.
func (p Params) WithSearch(term string) Params {
	next := p.Clone()
	next.Search = strings.TrimSpace(term)
	next.Page = DefaultPage
	return next
}

// Values encodes the params as page, size, search, sort and filter[key].
func (p Params) Values() url.Values {
	p = p.Normalized()
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("size", strconv.Itoa(p.Size))
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if p.Filters[k] != "" {
			v.Set("filter["+k+"]", p.Filters[k])
		}
	}
	return v
}

// URL appends the encoded params to endpoint.
func (p Params) URL(endpoint string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + p.Values().Encode()
}

// ParseParams reads params from query values, falling back to defaults for
// anything missing or malformed.
func ParseParams(query map[string]string, defaults Params) Params {
	p := defaults.Clone()

	for key, val := range query {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		if p.Filters == nil {
			p.Filters = map[string]string{}
		}
		p.Filters[key[7:len(key)-1]] = val
	}

	if v, err := strconv.Atoi(query["page"]); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(query["size"]); err == nil && v > 0 {
		p.Size = v
	}
	if s, ok := query["search"]; ok {
		p.Search = strings.TrimSpace(s)
	}
	if s, ok := query["sort"]; ok {
		p.Sort = strings.TrimSpace(s)
	}
	return p.Normalized()
}
