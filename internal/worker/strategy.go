package worker

import (
	"net/url"
	"regexp"
	"strings"
)

// Strategy names the caching algorithm used for a request.
type Strategy int

const (
	StrategyStaleWhileRevalidate Strategy = iota
	StrategyImage
	StrategyFont
	StrategyStatic
	StrategyNetworkFirst
)

func (s Strategy) String() string {
	switch s {
	case StrategyImage:
		return "image"
	case StrategyFont:
		return "font"
	case StrategyStatic:
		return "static"
	case StrategyNetworkFirst:
		return "network-first"
	default:
		return "stale-while-revalidate"
	}
}

var (
	imagePattern  = regexp.MustCompile(`\.(?:png|jpg|jpeg|svg|gif|webp|avif)$`)
	fontPattern   = regexp.MustCompile(`\.(?:woff|woff2|ttf|otf)$`)
	staticPattern = regexp.MustCompile(`\.(?:css|js)$`)
)

// Classify picks the strategy for u by its path. The checks run in a fixed
// priority order: images, fonts, css/js, API-like paths, then everything else.
func Classify(u *url.URL) Strategy {
	p := u.Path
	switch {
	case imagePattern.MatchString(p):
		return StrategyImage
	case fontPattern.MatchString(p):
		return StrategyFont
	case staticPattern.MatchString(p):
		return StrategyStatic
	case strings.Contains(p, "/api/") || strings.HasSuffix(p, ".json"):
		return StrategyNetworkFirst
	default:
		return StrategyStaleWhileRevalidate
	}
}
