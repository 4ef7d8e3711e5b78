// Package geo tags device records with the country an address resolves to.
package geo

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Locator maps an IP address to an ISO country code, or "" when unknown.
type Locator interface {
	Country(ip string) string
	Close() error
}

// NoopLocator is used when no GeoIP database is configured.
type NoopLocator struct{}

func (NoopLocator) Country(string) string { return "" }
func (NoopLocator) Close() error          { return nil }

// GeoIP2Locator reads a MaxMind City or Country database.
type GeoIP2Locator struct {
	reader *geoip2.Reader
}

func NewGeoIP2Locator(dbPath string) (*GeoIP2Locator, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &GeoIP2Locator{reader: reader}, nil
}

func (l *GeoIP2Locator) Country(ipAddress string) string {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return ""
	}
	record, err := l.reader.Country(ip)
	if err != nil {
		slog.Debug("geoip lookup failed", "ip", ipAddress, "error", err)
		return ""
	}
	return record.Country.IsoCode
}

func (l *GeoIP2Locator) Close() error {
	return l.reader.Close()
}

// NewLocator opens dbPath, or returns a NoopLocator when it is empty.
func NewLocator(dbPath string) (Locator, error) {
	if dbPath == "" {
		return NoopLocator{}, nil
	}
	return NewGeoIP2Locator(dbPath)
}
