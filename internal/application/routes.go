package application

import "strings"

// RouteClass names the authentication requirements of a route.
type RouteClass int

const (
	// RouteSigned requires a valid request signature. Unmatched routes fall
	// back to this class so a missing rule fails closed.
	RouteSigned RouteClass = iota
	// RoutePublic skips all authentication.
	RoutePublic
	// RouteBearer requires a valid first-party access token.
	RouteBearer
	// RouteSignedAndBearer requires both checks to pass.
	RouteSignedAndBearer
)

func (c RouteClass) String() string {
	switch c {
	case RoutePublic:
		return "public"
	case RouteBearer:
		return "bearer"
	case RouteSignedAndBearer:
		return "signed+bearer"
	default:
		return "signed"
	}
}

// RouteRule assigns a class to a method + path prefix. Method "*" matches any
// method. Prefixes match on segment boundaries only, so "/health" does not
// capture "/healthz".
type RouteRule struct {
	Method string
	Prefix string
	Class  RouteClass
}

// RouteClassifier resolves a request to its RouteClass. The rule table is
// built once at startup; longer prefixes win over shorter ones.
type RouteClassifier struct {
	rules []RouteRule
}

func NewRouteClassifier(rules []RouteRule) *RouteClassifier {
	compiled := make([]RouteRule, 0, len(rules))
	for _, r := range rules {
		r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
		if r.Method == "" {
			r.Method = "*"
		}
		r.Prefix = strings.TrimSuffix(strings.TrimSpace(r.Prefix), "/")
		if r.Prefix == "" {
			r.Prefix = "/"
		}
		compiled = append(compiled, r)
	}
	return &RouteClassifier{rules: compiled}
}

// Classify returns the class of the most specific matching rule, or
// RouteSigned when nothing matches.
func (c *RouteClassifier) Classify(method, path string) RouteClass {
	method = strings.ToUpper(strings.TrimSpace(method))
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		path = "/"
	}

	best := -1
	class := RouteSigned
	for _, r := range c.rules {
		if r.Method != "*" && r.Method != method {
			continue
		}
		if !prefixOnSegment(path, r.Prefix) {
			continue
		}
		if len(r.Prefix) > best {
			best = len(r.Prefix)
			class = r.Class
		}
	}
	return class
}

func prefixOnSegment(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
