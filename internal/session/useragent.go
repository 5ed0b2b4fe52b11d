package session

import (
	"regexp"
	"strings"

	"github.com/frahmantamala/rbac-admin/pkg/strutil"
)

var browserPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"Edge", regexp.MustCompile(`Edg/([\d.]{1,32})`)},
	{"Chrome", regexp.MustCompile(`Chrome/([\d.]{1,32})`)},
	{"Firefox", regexp.MustCompile(`Firefox/([\d.]{1,32})`)},
	{"Safari", regexp.MustCompile(`Version/([\d.]{1,32}).*Safari`)},
}

// ParseUserAgent extracts a display browser ("Chrome 120.0") and OS family from a
// User-Agent header. Unknown values come back empty.
func ParseUserAgent(ua string) (browser, os string) {
	if ua == "" {
		return "", ""
	}
	return parseBrowser(ua), parseOS(ua)
}

func parseBrowser(ua string) string {
	for _, p := range browserPatterns {
		if m := p.re.FindStringSubmatch(ua); m != nil {
			return strutil.TruncateRunes(p.name+" "+m[1], maxBrowserLength)
		}
	}
	return ""
}

func parseOS(ua string) string {
	lower := strings.ToLower(ua)
	mobileApple := strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad")
	switch {
	case strings.Contains(lower, "windows nt"):
		return "Windows"
	case strings.Contains(lower, "mac os x") && !mobileApple:
		return "macOS"
	case strings.Contains(lower, "android"):
		return "Android"
	case mobileApple:
		return "iOS"
	case strings.Contains(lower, "linux"):
		return "Linux"
	}
	return ""
}
