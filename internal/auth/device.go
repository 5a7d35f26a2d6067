package auth

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceSummary condenses a raw User-Agent into "browser major/os/platform"
// for audit logs, where the full string is noise. Returns "" for an empty
// input so callers can omit the attribute.
func DeviceSummary(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, version := ua.Browser()

	majorVersion := "unknown"
	if version != "" {
		if parts := strings.Split(version, "."); len(parts) > 0 && parts[0] != "" {
			majorVersion = parts[0]
		}
	}

	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}

	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}

	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}

	return browser + " " + majorVersion + "/" + os + "/" + platform
}
