// Package privacy scrubs host-identifying data from outbound telemetry.
// Error messages may embed stream URLs, collector endpoints or local
// paths; before a message leaves the station those are replaced with
// stable anonymized tokens that still let identical failures group.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`\b(?:https?|rtsp|rtmp|ftp|sftp)://\S+`)

var ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// ScrubMessage replaces every URL embedded in the message with its
// anonymized form. The rest of the message is left untouched.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL reduces a URL to a stable hash token that keeps scheme,
// host category and path shape but drops credentials, hostnames and
// path content. The same URL always maps to the same token.
func AnonymizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		digest := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", digest[:8])
	}

	var parts []string
	if parsed.Scheme != "" {
		parts = append(parts, parsed.Scheme)
	}
	if host := parsed.Hostname(); host != "" {
		// The category alone would collapse every public host into one
		// token; a hashed hostname segment keeps distinct endpoints
		// distinguishable without exposing the name.
		hostDigest := sha256.Sum256([]byte(host))
		parts = append(parts, categorizeHost(host), fmt.Sprintf("host-%x", hostDigest[:4]))
	}
	if port := parsed.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		parts = append(parts, anonymizePath(parsed.Path))
	}

	digest := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("url-%x", digest[:12])
}

// categorizeHost keeps only the broad category of a host so grouped
// errors remain distinguishable without exposing the address.
func categorizeHost(host string) string {
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return "localhost"
	case isPrivateIP(host):
		return "private-ip"
	case isIPAddress(host):
		return "public-ip"
	}
	if parts := strings.Split(host, "."); len(parts) >= 2 {
		return "domain-" + parts[len(parts)-1]
	}
	return "unknown-host"
}

// anonymizePath hashes each path segment so the path shape survives
// while its content does not.
func anonymizePath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "root"
	}

	segments := strings.Split(path, "/")
	anonymized := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		if isNumeric(segment) {
			anonymized = append(anonymized, "numeric")
			continue
		}
		digest := sha256.Sum256([]byte(segment))
		anonymized = append(anonymized, fmt.Sprintf("seg-%x", digest[:4]))
	}
	return strings.Join(anonymized, "/")
}

func isPrivateIP(host string) bool {
	host = strings.ToLower(host)
	prefixes := []string{
		"10.", "192.168.", "169.254.",
		"172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.",
		"172.22.", "172.23.", "172.24.", "172.25.", "172.26.", "172.27.",
		"172.28.", "172.29.", "172.30.", "172.31.",
		"fc00:", "fd00:", "fe80:", "::1",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

func isIPAddress(host string) bool {
	return ipv4Pattern.MatchString(host) || strings.Contains(host, ":")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
