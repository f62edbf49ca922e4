package readiness

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BrowserInfo describes the embedding client. CLI callers fill this from
// flags or the environment; web embedders pass the real user agent.
type BrowserInfo struct {
	Name           string
	MajorVersion   int
	SupportsWebRTC bool
}

// Minimum supported major versions. Older releases miss the capture APIs
// the interview flow needs.
var minBrowserVersions = map[string]int{
	"chrome":  80,
	"edge":    80,
	"firefox": 75,
	"safari":  13,
}

var uaPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	// Edge ships a Chrome UA; match it first.
	{"edge", regexp.MustCompile(`Edg(?:e|A|iOS)?/(\d+)`)},
	{"chrome", regexp.MustCompile(`Chrome/(\d+)`)},
	{"firefox", regexp.MustCompile(`Firefox/(\d+)`)},
	{"safari", regexp.MustCompile(`Version/(\d+).*Safari`)},
}

// ParseUserAgent extracts a BrowserInfo from a user agent string. Unknown
// agents come back with an empty name; callers treat those as incompatible.
func ParseUserAgent(ua string) BrowserInfo {
	for _, p := range uaPatterns {
		m := p.re.FindStringSubmatch(ua)
		if m == nil {
			continue
		}
		major, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return BrowserInfo{Name: p.name, MajorVersion: major, SupportsWebRTC: true}
	}
	return BrowserInfo{}
}

func checkBrowser(info BrowserInfo) *CheckError {
	name := strings.ToLower(info.Name)
	minVersion, known := minBrowserVersions[name]
	if !known {
		return newCheckError(CodeBrowserIncompatible,
			"this browser is not supported",
			"Use a recent version of Chrome, Firefox, Safari or Edge.", nil)
	}
	if !info.SupportsWebRTC {
		return newCheckError(CodeBrowserIncompatible,
			"the browser does not support real-time audio",
			"Use a recent version of Chrome, Firefox, Safari or Edge.", nil)
	}
	if info.MajorVersion < minVersion {
		return newCheckError(CodeBrowserOutdated,
			fmt.Sprintf("%s %d is below the supported minimum %d", name, info.MajorVersion, minVersion),
			"Update the browser to its latest version and try again.", nil)
	}
	return nil
}
