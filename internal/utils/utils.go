package utils

import (
	"net"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var envPattern = regexp.MustCompile(`\${([^}]+)}`)

func QueryParamsToLower(queryParams url.Values) url.Values {
	lowercaseParams := url.Values{}

	for key, values := range queryParams {
		lowercaseKey := strings.ToLower(key)
		lowercaseParams[lowercaseKey] = append(lowercaseParams[lowercaseKey], values...)
	}

	return lowercaseParams
}

func QueryParamsContainMultipleKeys(queryParams url.Values) bool {
	params := map[string]bool{}

	for key, values := range queryParams {
		lowercaseKey := strings.ToLower(key)
		if params[lowercaseKey] || len(values) > 1 {
			return true
		}

		params[lowercaseKey] = true
	}

	return false
}

// EnvSubst replaces ${NAME} with the value of the environment variable
// NAME, or the empty string when it is unset.
func EnvSubst(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := match[2 : len(match)-1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		return ""
	})
}

func ReadUserIP(r *http.Request) string {
	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func StringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

func AnyInSlice(candidates, list []string) bool {
	for _, a := range candidates {
		if StringInSlice(a, list) {
			return true
		}
	}
	return false
}
