package segregation

import "github.com/itchyny/timefmt-go"

// Router maps a classification to a destination prefix.
type Router struct {
	template    string
	errorPrefix string
}

// NewRouter returns a Router formatting dated objects with template.
func NewRouter(template, errorPrefix string) *Router {
	return &Router{template: template, errorPrefix: errorPrefix}
}

// Route returns the segregated prefix for dated objects and the error prefix,
// verbatim, for everything else.
func (r *Router) Route(c Classification) string {
	if !c.Dated {
		return r.errorPrefix
	}
	return timefmt.Format(c.Time, r.template)
}
