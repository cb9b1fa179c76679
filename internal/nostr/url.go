package nostr

import (
	"net"
	"net/url"
	"strings"

	"nostr-relaypool/internal/util"
)

// NormalizeRelayURL validates and normalizes a relay URL.
// Returns empty string if URL is invalid/malformed.
func NormalizeRelayURL(relayURL string) string {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return ""
	}

	// Quick reject for obviously bad URLs (no colon = no protocol)
	if !strings.Contains(relayURL, "://") {
		return ""
	}

	// Reject URL-encoded spaces (indicates garbage text as URL)
	if strings.Contains(relayURL, "%20") || strings.Contains(relayURL, "+") {
		return ""
	}

	// Reject double protocols (wss://https://...)
	if strings.Count(relayURL, "://") > 1 {
		return ""
	}

	parsed, err := url.Parse(relayURL)
	if err != nil {
		return ""
	}

	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return ""
	}

	host := parsed.Hostname()
	if host == "" || strings.Contains(host, " ") {
		return ""
	}
	if !util.IsLoopbackHost(host) {
		if len(host) < 3 || !strings.Contains(host, ".") {
			return ""
		}
		if util.IsInternalHost(host) {
			return ""
		}
	}

	// Normalize: strip trailing slash, lowercase
	result := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(host)
	if parsed.Port() != "" {
		result += ":" + parsed.Port()
	}
	if parsed.Path != "" && parsed.Path != "/" {
		result += strings.TrimSuffix(parsed.Path, "/")
	}
	return result
}

// IsRelayURLSafe validates that a relay URL is safe to connect to.
// Allows localhost for development but blocks other private IP ranges.
func IsRelayURLSafe(relayURL string) bool {
	parsed, err := url.Parse(relayURL)
	if err != nil {
		return false
	}

	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return false
	}

	host := parsed.Hostname()
	if host == "" {
		return false
	}

	if util.IsLoopbackHost(host) {
		return true
	}

	if ip := net.ParseIP(host); ip != nil {
		return isRelayIPSafe(ip)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable here may still be valid for the dialer's resolver,
		// but obvious internal names are refused.
		return !strings.HasSuffix(host, ".") && !util.IsInternalHost(host)
	}

	for _, ip := range ips {
		if !isRelayIPSafe(ip) {
			return false
		}
	}

	return true
}

// isRelayIPSafe checks if an IP is safe for relay connections.
// Allows loopback (localhost) but blocks other private ranges.
func isRelayIPSafe(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	if ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	return true
}
