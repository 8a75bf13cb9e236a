package pagination

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 10
	// MaxLimit caps how many rows any page can request.
	MaxLimit = 100
)

// Params holds page-number pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the returned page alongside the data.
type Meta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	TotalItems int  `json:"totalItems"`
	HasNext    bool `json:"hasNext"`
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize returns params with a 1-based page and a bounded limit.
func (p Params) Normalize() Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	p.Limit = NormalizeLimit(p.Limit)
	return p
}

// NewMeta builds the page meta from the totals reported by the data source.
func NewMeta(p Params, totalPages, totalItems int) Meta {
	p = p.Normalize()
	return Meta{
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: totalPages,
		TotalItems: totalItems,
		HasNext:    p.Page < totalPages,
	}
}
