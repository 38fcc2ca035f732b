package device

import (
	"strings"

	"github.com/mileusna/useragent"
)

// Profile is what a raw User-Agent string parses down to.
type Profile struct {
	Name    string
	Type    string
	Browser string
	OS      string
}

// ParseUserAgent classifies a User-Agent header. Unknown agents come
// back as a generic desktop profile rather than an error; bots are
// typed "other".
func ParseUserAgent(raw string) Profile {
	ua := useragent.Parse(raw)

	deviceType := "desktop"
	switch {
	case ua.Bot:
		deviceType = "other"
	case ua.Mobile:
		deviceType = "mobile"
	case ua.Tablet:
		deviceType = "tablet"
	}

	browser := ua.Name
	if browser == "" {
		browser = "Unknown"
	}
	if major := majorVersion(ua.Version); major != "" {
		browser = browser + " " + major
	}

	os := ua.OS
	if os == "" {
		os = "Unknown"
	}
	if ua.OSVersion != "" {
		os = os + " " + ua.OSVersion
	}

	return Profile{
		Name:    browser + " on " + os,
		Type:    deviceType,
		Browser: browser,
		OS:      os,
	}
}

func majorVersion(version string) string {
	if version == "" {
		return ""
	}
	if i := strings.IndexByte(version, '.'); i > 0 {
		return version[:i]
	}
	return version
}
