// Command geodata fetches the country reference dataset from
// restcountries.com and writes it in the shape internal/geodata loads:
//
//	{"Syria": {"cca2": "SY", "region": "Asia", "borders": ["IQ", ...]}}
//
// Usage:
//
//	go run ./cmd/geodata -out geodata.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/paydesk/ipintel/internal/logging"
	"github.com/paydesk/ipintel/internal/retry"
)

const apiURL = "https://restcountries.com/v3.1/all?fields=name,cca2,cca3,region,borders"

// country mirrors the fields requested from restcountries.com.
type country struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA2    string   `json:"cca2"`
	CCA3    string   `json:"cca3"`
	Region  string   `json:"region"`
	Borders []string `json:"borders"`
}

// entry is the output dataset shape, keyed by common name.
type entry struct {
	CCA2    string   `json:"cca2"`
	Region  string   `json:"region"`
	Borders []string `json:"borders"`
}

func main() {
	out := flag.String("out", "geodata.json", "output path")
	timeout := flag.Duration("timeout", 30*time.Second, "fetch timeout per attempt")
	flag.Parse()

	logger := logging.New("info", "text")
	ctx := context.Background()

	countries, err := fetch(ctx, *timeout)
	if err != nil {
		logger.Error("failed to fetch country data", "error", err)
		os.Exit(1)
	}
	logger.Info("country data fetched", "rows", len(countries))

	formatted := process(countries)
	logger.Info("country data processed", "countries", len(formatted))

	if err := save(*out, formatted); err != nil {
		logger.Error("failed to write dataset", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("dataset written", "path", *out)
}

func fetch(ctx context.Context, timeout time.Duration) ([]country, error) {
	client := &http.Client{Timeout: timeout}

	var countries []country
	err := retry.Do(ctx, 3, 2*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch countries: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("fetch countries: unexpected status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if err := json.Unmarshal(body, &countries); err != nil {
			return retry.Permanent(fmt.Errorf("parse response: %w", err))
		}
		return nil
	})
	return countries, err
}

// process converts API rows into the dataset shape, translating
// three-letter border codes to two-letter ones. Rows without a common
// name or alpha-2 code are dropped, as are borders without a known
// translation.
func process(countries []country) map[string]entry {
	cca3to2 := make(map[string]string, len(countries))
	for _, c := range countries {
		if c.CCA3 != "" && c.CCA2 != "" {
			cca3to2[c.CCA3] = c.CCA2
		}
	}

	formatted := make(map[string]entry, len(countries))
	for _, c := range countries {
		if c.Name.Common == "" || c.CCA2 == "" {
			continue
		}

		region := c.Region
		if region == "" {
			region = "Unknown"
		}

		borders := make([]string, 0, len(c.Borders))
		for _, b := range c.Borders {
			if code, ok := cca3to2[b]; ok {
				borders = append(borders, code)
			}
		}

		formatted[c.Name.Common] = entry{
			CCA2:    c.CCA2,
			Region:  region,
			Borders: borders,
		}
	}
	return formatted
}

func save(path string, data map[string]entry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}
