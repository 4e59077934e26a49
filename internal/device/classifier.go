// Package device classifies checkout clients from the User-Agent header to
// choose between a deep-link redirect (mobile) and a QR code (desktop).
package device

import "strings"

// Platform tags the mobile operating system family.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformOther   Platform = "other"
)

// Classification is the result of inspecting one user-agent string.
type Classification struct {
	IsMobile bool
	Platform Platform
}

var iosMarkers = []string{"iphone", "ipad", "ipod"}

// Classify inspects the raw user-agent string. It is total: any input,
// including empty, yields a valid classification.
func Classify(userAgent string) Classification {
	ua := strings.ToLower(userAgent)
	for _, marker := range iosMarkers {
		if strings.Contains(ua, marker) {
			return Classification{IsMobile: true, Platform: PlatformIOS}
		}
	}
	if strings.Contains(ua, "android") {
		return Classification{IsMobile: true, Platform: PlatformAndroid}
	}
	return Classification{IsMobile: false, Platform: PlatformOther}
}
