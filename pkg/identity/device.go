package identity

import (
	"regexp"

	"github.com/seentics/tracker/pkg/models"
)

var (
	tabletPattern  = regexp.MustCompile(`(?i)ipad|tablet|playbook|silk|kindle`)
	androidPattern = regexp.MustCompile(`(?i)android`)
	mobileWord     = regexp.MustCompile(`(?i)mobile`)
	mobilePattern  = regexp.MustCompile(`(?i)mobi|iphone|ipod|android|blackberry|opera mini|iemobile|windows phone`)
)

type family struct {
	name    string
	pattern *regexp.Regexp
}

// Order matters: more specific families come first.
var browsers = []family{
	{"Edge", regexp.MustCompile(`Edg(e|A|iOS)?/`)},
	{"Opera", regexp.MustCompile(`OPR/|Opera`)},
	{"Samsung Internet", regexp.MustCompile(`SamsungBrowser/`)},
	{"Chrome", regexp.MustCompile(`Chrome/|CriOS/`)},
	{"Firefox", regexp.MustCompile(`Firefox/|FxiOS/`)},
	{"Safari", regexp.MustCompile(`Safari/`)},
	{"Internet Explorer", regexp.MustCompile(`MSIE |Trident/`)},
}

var systems = []family{
	{"iOS", regexp.MustCompile(`iPhone|iPad|iPod`)},
	{"Android", regexp.MustCompile(`Android`)},
	{"Windows", regexp.MustCompile(`Windows`)},
	{"macOS", regexp.MustCompile(`Macintosh|Mac OS X`)},
	{"ChromeOS", regexp.MustCompile(`CrOS`)},
	{"Linux", regexp.MustCompile(`Linux`)},
}

const unknown = "Unknown"

// ClassifyDevice derives browser, form factor and OS from a user agent.
// Tablets win over phones; an Android UA without "Mobile" is a tablet.
func ClassifyDevice(userAgent string) models.DeviceInfo {
	return models.DeviceInfo{
		Browser: match(browsers, userAgent),
		Device:  formFactor(userAgent),
		OS:      match(systems, userAgent),
	}
}

func formFactor(ua string) string {
	switch {
	case tabletPattern.MatchString(ua):
		return models.DeviceTablet
	case androidPattern.MatchString(ua) && !mobileWord.MatchString(ua):
		return models.DeviceTablet
	case mobilePattern.MatchString(ua):
		return models.DeviceMobile
	default:
		return models.DeviceDesktop
	}
}

func match(families []family, ua string) string {
	for _, f := range families {
		if f.pattern.MatchString(ua) {
			return f.name
		}
	}

	return unknown
}
