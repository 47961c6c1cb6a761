package executions

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoInfo — результат геолокации адреса клиента.
type GeoInfo struct {
	CountryCode   string
	ContinentCode string
	EU            bool
}

// GeoResolver определяет страну по IP.
type GeoResolver interface {
	Lookup(ip string) (GeoInfo, bool)
}

// MaxMindResolver читает базу GeoLite2/GeoIP2 City.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// OpenMaxMind открывает базу по пути.
func OpenMaxMind(path string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

// Lookup возвращает страну и континент. Нераспознанный адрес даёт false.
func (r *MaxMindResolver) Lookup(ip string) (GeoInfo, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return GeoInfo{}, false
	}
	record, err := r.reader.City(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return GeoInfo{}, false
	}
	return GeoInfo{
		CountryCode:   record.Country.IsoCode,
		ContinentCode: record.Continent.Code,
		EU:            record.Country.IsInEuropeanUnion,
	}, true
}

// Close закрывает базу.
func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}
