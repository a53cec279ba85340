// Package detect derives visitor attributes from an inbound collect request.
package detect

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
)

// ClientInfo is computed per request and never persisted on its own.
type ClientInfo struct {
	UserAgent    string
	Browser      string
	OS           string
	IP           string
	Country      string
	Subdivision1 string
	Subdivision2 string
	City         string
	Device       string
	Bot          bool
}

const (
	desktopScreenWidth = 1920
	laptopScreenWidth  = 1024
	mobileScreenWidth  = 479
)

// ipHeaders are consulted in order before falling back to the socket peer.
var ipHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// Detector resolves client info; the MaxMind reader is optional.
type Detector struct {
	geo *geoip2.Reader
}

// NewDetector opens the MaxMind city database when geoPath is set.
func NewDetector(geoPath string) (*Detector, error) {
	geoPath = strings.TrimSpace(geoPath)
	if geoPath == "" {
		return &Detector{}, nil
	}
	reader, err := geoip2.Open(geoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &Detector{geo: reader}, nil
}

// IsBot reports whether the user agent belongs to a crawler or headless client.
func IsBot(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return false
	}
	return useragent.New(userAgent).Bot()
}

// Close releases the geo database.
func (d *Detector) Close() error {
	if d.geo == nil {
		return nil
	}
	return d.geo.Close()
}

// ClientInfo derives visitor attributes from the request headers and payload.
func (d *Detector) ClientInfo(r *http.Request, p *Payload) ClientInfo {
	rawUA := r.Header.Get("User-Agent")
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	osName := ua.OSInfo().Name

	info := ClientInfo{
		UserAgent: rawUA,
		Browser:   browser,
		OS:        osName,
		IP:        ClientIP(r),
		Bot:       ua.Bot(),
	}

	var screen string
	if p != nil {
		screen = p.Screen
	}
	info.Device = Device(screen, ua.Mobile(), ua.OSInfo().Name == "CrOS")

	d.fillLocation(r, &info)
	return info
}

func (d *Detector) fillLocation(r *http.Request, info *ClientInfo) {
	if country := strings.ToUpper(strings.TrimSpace(r.Header.Get("CF-IPCountry"))); country != "" && country != "XX" {
		info.Country = country
		if region := strings.TrimSpace(r.Header.Get("CF-Region-Code")); region != "" {
			info.Subdivision1 = country + "-" + region
		}
		info.City = strings.TrimSpace(r.Header.Get("CF-IPCity"))
		return
	}

	if d.geo == nil {
		return
	}
	ip := net.ParseIP(info.IP)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return
	}
	record, err := d.geo.City(ip)
	if err != nil {
		return
	}
	info.Country = record.Country.IsoCode
	if len(record.Subdivisions) > 0 && record.Subdivisions[0].IsoCode != "" {
		info.Subdivision1 = info.Country + "-" + record.Subdivisions[0].IsoCode
	}
	if len(record.Subdivisions) > 1 && record.Subdivisions[1].IsoCode != "" {
		info.Subdivision2 = info.Country + "-" + record.Subdivisions[1].IsoCode
	}
	info.City = record.City.Names["en"]
}

// ClientIP returns the first address from the proxy headers, else the socket peer.
func ClientIP(r *http.Request) string {
	for _, header := range ipHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		first, _, _ := strings.Cut(value, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// Device classifies by screen width, nudged by whether the OS is mobile.
// An empty or malformed screen yields "".
func Device(screen string, mobileOS, chromeOS bool) string {
	widthPart, _, _ := strings.Cut(screen, "x")
	width, err := strconv.Atoi(strings.TrimSpace(widthPart))
	if err != nil || width <= 0 {
		return ""
	}

	switch {
	case mobileOS:
		if width > mobileScreenWidth {
			return "tablet"
		}
		return "mobile"
	case chromeOS:
		return "laptop"
	case width >= desktopScreenWidth:
		return "desktop"
	case width >= laptopScreenWidth:
		return "laptop"
	case width >= mobileScreenWidth:
		return "tablet"
	default:
		return "mobile"
	}
}
