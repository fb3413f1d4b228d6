package quota

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML document used to provision quota records:
//
//	quotas:
//	  - api: orders
//	    verb: POST
//	    clientId: default
//	    windows:
//	      second: {maxCalls: 5}
//	      hour: {maxCalls: 1000, maxRate: 0.0005}
type SeedFile struct {
	Quotas []SeedQuota `yaml:"quotas"`
}

type SeedQuota struct {
	API      string                `yaml:"api"`
	Verb     string                `yaml:"verb"`
	ClientID string                `yaml:"clientId"`
	Windows  map[string]SeedWindow `yaml:"windows"`
}

// SeedWindow configures one period. When MaxRate is omitted it defaults to
// MaxCalls spread evenly over the period.
type SeedWindow struct {
	MaxCalls int64   `yaml:"maxCalls"`
	MaxRate  float64 `yaml:"maxRate"`
}

// LoadSeedFile reads and converts a seed file from disk
func LoadSeedFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed decodes seed YAML into fresh records with zeroed counters
func LoadSeed(r io.Reader) ([]*Record, error) {
	var file SeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	records := make([]*Record, 0, len(file.Quotas))
	for i, q := range file.Quotas {
		if q.API == "" || q.Verb == "" {
			return nil, fmt.Errorf("quota %d: api and verb are required", i)
		}
		clientID := q.ClientID
		if clientID == "" {
			clientID = DefaultClientID
		}
		rec := &Record{
			HashKey:  HashKey(q.API, q.Verb),
			ClientID: clientID,
			Windows:  make(map[Period]*WindowState, len(q.Windows)),
		}
		for name, w := range q.Windows {
			p, err := ParsePeriod(name)
			if err != nil {
				return nil, fmt.Errorf("quota %s: %w", rec.Key(), err)
			}
			if w.MaxCalls <= 0 {
				return nil, fmt.Errorf("quota %s: %s maxCalls must be positive", rec.Key(), p)
			}
			maxRate := w.MaxRate
			if maxRate <= 0 {
				maxRate = float64(w.MaxCalls) / float64(p.Millis())
			}
			rec.Windows[p] = &WindowState{
				MaxAllowedRate:          maxRate,
				MaxAllowedCallsInPeriod: w.MaxCalls,
			}
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("quota %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
