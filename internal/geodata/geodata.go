// Package geodata provides the static country reference dataset for IP screening.
//
// The dataset maps countries to ISO 3166-1 alpha-2 codes, regions, and land
// borders. It is loaded once at startup and immutable afterwards. The
// sanctioned-jurisdiction list is a fixed literal and works even when the
// dataset file is missing.
package geodata

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// sanctioned is the fixed high-risk jurisdiction list. Membership triggers
// elevated scoring regardless of VPN status. Independent of the dataset file.
var sanctioned = map[string]bool{
	"MM": true, "KP": true, "IR": true, "SY": true, "YE": true,
	"DZ": true, "AO": true, "BO": true, "BG": true, "CM": true,
	"CI": true, "HT": true, "KE": true, "LB": true, "LA": true,
	"MC": true, "NA": true, "NP": true, "SS": true, "VE": true,
	"VN": true, "RU": true,
}

// IsSanctioned reports whether a country code is on the high-risk list.
// Unknown or empty codes are not sanctioned.
func IsSanctioned(code string) bool {
	return sanctioned[strings.ToUpper(code)]
}

// Country is one entry in the reference dataset.
type Country struct {
	Name    string   `json:"name"`
	CCA2    string   `json:"cca2"`
	Region  string   `json:"region"`
	Borders []string `json:"borders"`
}

// fileEntry matches the on-disk dataset shape, keyed by country name:
//
//	{"Syria": {"cca2": "SY", "region": "Asia", "borders": ["IQ", ...]}}
type fileEntry struct {
	CCA2    string   `json:"cca2"`
	Region  string   `json:"region"`
	Borders []string `json:"borders"`
}

// Service answers country metadata lookups. Read-only after Load.
type Service struct {
	byCode map[string]*Country
}

// Load reads the dataset file and builds the code index.
func Load(path string) (*Service, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from server config, not user input
	if err != nil {
		return nil, fmt.Errorf("read geodata: %w", err)
	}

	var raw map[string]fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse geodata: %w", err)
	}

	s := &Service{byCode: make(map[string]*Country, len(raw))}
	for name, e := range raw {
		if e.CCA2 == "" {
			continue
		}
		code := strings.ToUpper(e.CCA2)
		s.byCode[code] = &Country{
			Name:    name,
			CCA2:    code,
			Region:  e.Region,
			Borders: e.Borders,
		}
	}
	return s, nil
}

// Empty returns a service with no dataset. Lookups miss, IsSanctioned
// still works. Used when the dataset file is absent at startup.
func Empty() *Service {
	return &Service{byCode: make(map[string]*Country)}
}

// IsSanctioned is the method form of the package-level check, so
// consumers can depend on the service alone.
func (s *Service) IsSanctioned(code string) bool {
	return IsSanctioned(code)
}

// Country looks up metadata by ISO code.
func (s *Service) Country(code string) (*Country, bool) {
	c, ok := s.byCode[strings.ToUpper(code)]
	return c, ok
}

// Count returns the number of loaded countries.
func (s *Service) Count() int {
	return len(s.byCode)
}

// RegionsMatch reports whether two country codes share a region.
// Unknown codes never match.
func (s *Service) RegionsMatch(a, b string) bool {
	ca, ok := s.Country(a)
	if !ok {
		return false
	}
	cb, ok := s.Country(b)
	if !ok {
		return false
	}
	return ca.Region != "" && ca.Region == cb.Region
}

// Neighbors reports whether two countries share a land border.
func (s *Service) Neighbors(a, b string) bool {
	ca, ok := s.Country(a)
	if !ok {
		return false
	}
	bu := strings.ToUpper(b)
	for _, border := range ca.Borders {
		if strings.ToUpper(border) == bu {
			return true
		}
	}
	return false
}
