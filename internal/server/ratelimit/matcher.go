package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited marks requests that never consume tokens.
var unlimited = &EndpointConfig{}

// MatchEndpoint returns the rule for a request, or nil when the default
// limit applies. Rules whose path ends in "/" match by prefix.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	// health checks and CORS preflights are free
	if method == http.MethodOptions || (path == "/health" && method == http.MethodGet) {
		return unlimited
	}

	for i := range configs {
		if configs[i].Path == path && configs[i].Method == method {
			return &configs[i]
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}
	return nil
}
