package paging

// Page is the request side of offset pagination.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Clamp normalizes a caller-supplied page against a default limit.
func (p Page) Clamp(defaultLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Info is the response side: the echoed page plus the total row count
// computed over the same filter predicate as the page itself.
type Info struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

func NewInfo(p Page, total int) Info {
	return Info{
		Limit:   p.Limit,
		Offset:  p.Offset,
		Total:   total,
		HasMore: p.Offset+p.Limit < total,
	}
}
