// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// URLValidationOptions configures URL validation behavior
type URLValidationOptions struct {
	// AllowPrivateIPs permits connections to private/internal IP addresses
	AllowPrivateIPs bool
	// AllowedSchemes specifies permitted URL schemes (default: ["https"])
	AllowedSchemes []string
	// AllowedHostSuffixes restricts URLs to specific domain suffixes
	// e.g., [".sharepoint.com", ".snowflakecomputing.com"]
	AllowedHostSuffixes []string
	// AllowedHosts restricts URLs to specific exact hostnames
	AllowedHosts []string
	// BlockedHosts explicitly blocks certain hostnames
	BlockedHosts []string
	// SkipResolve disables DNS resolution; literal IP hosts are still checked.
	SkipResolve bool
}

// Vendor host suffixes accepted for connection_url overrides.
var (
	SlackHostSuffixes      = []string{".slack.com"}
	DocuSignHostSuffixes   = []string{".docusign.com", ".docusign.net"}
	SnowflakeHostSuffixes  = []string{".snowflakecomputing.com"}
	HubSpotHostSuffixes    = []string{".hubapi.com", ".hubspot.com"}
	SharePointHostSuffixes = []string{".sharepoint.com", ".microsoft.com", ".microsoftonline.com"}
)

// DefaultURLValidationOptions returns secure defaults for URL validation
func DefaultURLValidationOptions() URLValidationOptions {
	return URLValidationOptions{
		AllowPrivateIPs: false,
		AllowedSchemes:  []string{"https"},
	}
}

// VendorURLValidationOptions restricts URLs to https on the given host
// suffixes. Hosts on a vendor suffix are not resolved.
func VendorURLValidationOptions(suffixes []string) URLValidationOptions {
	opts := DefaultURLValidationOptions()
	opts.AllowedHostSuffixes = suffixes
	opts.SkipResolve = len(suffixes) > 0
	return opts
}

// ValidateURL validates a URL against SSRF rules: format and scheme,
// blocklist and allowlist, and private address ranges after resolution.
func ValidateURL(rawURL string, opts URLValidationOptions) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if err := validateScheme(parsedURL.Scheme, opts.AllowedSchemes); err != nil {
		return err
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must contain a hostname")
	}

	if isHostBlocked(hostname, opts.BlockedHosts) {
		return fmt.Errorf("hostname %q is blocked", hostname)
	}

	if len(opts.AllowedHosts) > 0 || len(opts.AllowedHostSuffixes) > 0 {
		if !isHostAllowed(hostname, opts.AllowedHosts, opts.AllowedHostSuffixes) {
			return fmt.Errorf("hostname %q is not in the allowed list", hostname)
		}
	}

	if !opts.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil {
			if isPrivateIP(ip) {
				return fmt.Errorf("connection to private/internal IP %s is not allowed", ip)
			}
			return nil
		}
		if opts.SkipResolve {
			return nil
		}
		if err := validateHostNotPrivate(hostname); err != nil {
			return err
		}
	}

	return nil
}

func validateScheme(scheme string, allowedSchemes []string) error {
	if len(allowedSchemes) == 0 {
		allowedSchemes = []string{"https"}
	}

	scheme = strings.ToLower(scheme)
	for _, allowed := range allowedSchemes {
		if scheme == strings.ToLower(allowed) {
			return nil
		}
	}

	return fmt.Errorf("URL scheme %q is not allowed; permitted schemes: %v", scheme, allowedSchemes)
}

func validateHostNotPrivate(hostname string) error {
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname %q: %w", hostname, err)
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("connection to private/internal IP %s is not allowed (hostname: %s)", ip, hostname)
		}
	}

	return nil
}

// reservedV4 lists IPv4 ranges not covered by the net.IP helpers.
var reservedV4 = func() []*net.IPNet {
	cidrs := []string{
		"0.0.0.0/8",       // current network
		"100.64.0.0/10",   // carrier-grade NAT
		"192.0.0.0/24",    // IETF protocol assignments
		"192.0.2.0/24",    // TEST-NET-1
		"198.51.100.0/24", // TEST-NET-2
		"203.0.113.0/24",  // TEST-NET-3
		"224.0.0.0/4",     // multicast
		"240.0.0.0/4",     // reserved
	}
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, _ := net.ParseCIDR(c)
		nets = append(nets, n)
	}
	return nets
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		for _, n := range reservedV4 {
			if n.Contains(ip4) {
				return true
			}
		}
	}

	return false
}

func isHostBlocked(hostname string, blockedHosts []string) bool {
	hostname = strings.ToLower(hostname)
	for _, blocked := range blockedHosts {
		blocked = strings.ToLower(blocked)
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	return false
}

func isHostAllowed(hostname string, allowedHosts, allowedSuffixes []string) bool {
	hostname = strings.ToLower(hostname)

	for _, allowed := range allowedHosts {
		if strings.ToLower(allowed) == hostname {
			return true
		}
	}

	for _, suffix := range allowedSuffixes {
		if strings.HasSuffix(hostname, strings.ToLower(suffix)) {
			return true
		}
	}

	return false
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

const maxLogLength = 500

// SanitizeLogString escapes line breaks, removes ANSI escapes and truncates
// values taken from requests before they reach a log line.
func SanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = ansiEscape.ReplaceAllString(s, "")
	if len(s) > maxLogLength {
		s = s[:maxLogLength] + "...[truncated]"
	}
	return s
}

var (
	plainIdentifier  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*$`)
	quotedIdentifier = regexp.MustCompile(`^"(?:[^"]|"")+"$`)
)

var reservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "TABLE": true, "DATABASE": true, "SCHEMA": true,
	"FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true, "NULL": true,
	"TRUE": true, "FALSE": true, "JOIN": true, "ON": true, "AS": true, "ORDER": true,
	"BY": true, "GROUP": true, "HAVING": true, "UNION": true, "ALL": true,
	"DISTINCT": true, "LIMIT": true, "INTO": true, "VALUES": true, "SET": true,
	"GRANT": true, "REVOKE": true, "TRUNCATE": true, "CASCADE": true,
}

// ValidateSQLIdentifier checks that an identifier is safe to interpolate into
// a statement. Dotted names (DB.SCHEMA.TABLE) are validated part by part, and
// each part is either a plain identifier or a double-quoted one.
func ValidateSQLIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if strings.ContainsAny(identifier, ";\x00") {
		return fmt.Errorf("invalid SQL identifier: %q", identifier)
	}

	parts := splitIdentifier(identifier)
	if len(parts) > 3 {
		return fmt.Errorf("invalid SQL identifier: %q has too many parts", identifier)
	}
	for _, part := range parts {
		if quotedIdentifier.MatchString(part) {
			continue
		}
		if !plainIdentifier.MatchString(part) {
			return fmt.Errorf("invalid SQL identifier: %q", identifier)
		}
		if reservedWords[strings.ToUpper(part)] {
			return fmt.Errorf("identifier %q is a SQL reserved word", part)
		}
	}
	return nil
}

// splitIdentifier splits on dots outside double quotes.
func splitIdentifier(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == '.' && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(parts, cur.String())
}
