// Package device summarizes client User-Agent strings for audit records.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Describe extracts a human-readable device display name from a User-Agent
// string, in the form "Browser on OS" (e.g., "Chrome on macOS").
// Audit details carry this summary instead of the raw User-Agent so entries
// stay readable in review tooling.
func Describe(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgentString)

	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		platform := ua.Platform()
		if platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}
