package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo holds parsed information from a User-Agent string
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
	Platform   string `json:"platform"` // android, ios, windows, mac, linux
}

var tabletIndicators = []string{"ipad", "tablet", "kindle", "playbook", "nexus 7", "nexus 9", "nexus 10", "xoom", "sm-t"}

// matched against the OS name and platform token, first hit wins
var platforms = []struct{ key, platform string }{
	{"android", "android"},
	{"iphone", "ios"},
	{"ipad", "ios"},
	{"ipod", "ios"},
	{"chrome os", "chromeos"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"linux", "linux"},
	{"ubuntu", "linux"},
}

// ParseUserAgent parses a User-Agent string for payment audit metadata
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown", Platform: "unknown"}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		IsBot:      parser.Bot(),
		OS:         "Unknown",
		Browser:    "Unknown",
		Platform:   "unknown",
		DeviceType: "desktop",
	}

	osInfo := parser.OSInfo()
	if osInfo.Name != "" {
		info.OS = strings.TrimSpace(osInfo.Name + " " + osInfo.Version)
	}
	if name, _ := parser.Browser(); name != "" {
		info.Browser = name
	}

	osName := strings.ToLower(osInfo.Name + " " + parser.Platform())
	for _, p := range platforms {
		if strings.Contains(osName, p.key) {
			info.Platform = p.platform
			break
		}
	}

	lower := strings.ToLower(userAgent)
	for _, indicator := range tabletIndicators {
		if strings.Contains(lower, indicator) {
			info.DeviceType = "tablet"
			return info
		}
	}
	if parser.Mobile() {
		info.DeviceType = "mobile"
	}

	return info
}
