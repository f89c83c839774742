package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"smsledger/internal/log"
)

var (
	suspiciousPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		".git", ".ssh", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb"}
)

// Detector resolves client addresses behind trusted proxies and flags
// requests that look like probing.
type Detector struct {
	suspicious     atomic.Int64
	trustedProxies []*net.IPNet
	logger         *log.Logger
}

func NewDetector(logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.Nop()
	}
	return &Detector{
		logger: logger.WithComponent(log.ComponentSecurity),
		trustedProxies: []*net.IPNet{
			mustParseCIDR("127.0.0.0/8"),
			mustParseCIDR("::1/128"),
			mustParseCIDR("10.0.0.0/8"),
			mustParseCIDR("172.16.0.0/12"),
			mustParseCIDR("192.168.0.0/16"),
		},
	}
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// IsSuspicious reports whether r matches a known probing pattern.
func (d *Detector) IsSuspicious(r *http.Request) bool {
	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	for _, p := range suspiciousPatterns {
		if strings.Contains(target, p) {
			return true
		}
	}

	ua := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(ua, a) {
			return true
		}
	}

	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", http.MethodConnect:
		return true
	}

	return len(r.URL.String()) > 2048
}

// ClientIP extracts the real client IP. Forwarding headers are honoured only
// when the direct peer is a trusted proxy.
func (d *Detector) ClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// Suspicious returns how many flagged requests have been seen.
func (d *Detector) Suspicious() int64 {
	return d.suspicious.Load()
}

// Middleware logs and counts suspicious requests. It never blocks them; the
// router answers unknown paths with 404 anyway.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.IsSuspicious(r) {
			d.suspicious.Add(1)
			d.logger.WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, d.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}
