package knowledge

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

//go:embed plants.json
var curatedDataset []byte

// contributedKey is the single durable key holding the full contributed set.
const contributedKey = "contributed_plants"

// DefaultContributedProvenance is assigned when a taught record carries no citation.
const DefaultContributedProvenance = "افزوده شده توسط کاربر (یادگیری سیستم)"

// KV is the durable storage the contributed set is persisted to. A failing
// or absent KV degrades the store to in-memory operation; it never makes
// Teach fail.
type KV interface {
	Get(key string) (value string, found bool, err error)
	Put(key, value string) error
}

// FactStore holds the curated dataset plus runtime-contributed records.
// Curated records are read-only for the process lifetime; contributed
// records are append-only and checked first on lookup, so a user's own
// corrections outrank the shipped data.
type FactStore struct {
	mu          sync.Mutex
	curated     []PlantRecord
	contributed []PlantRecord
	kv          KV
	logger      *zap.Logger
}

func NewFactStore(kv KV, logger *zap.Logger) (*FactStore, error) {
	var dataset struct {
		Plants []PlantRecord `json:"plants"`
	}
	if err := json.Unmarshal(curatedDataset, &dataset); err != nil {
		return nil, fmt.Errorf("failed to parse curated plant dataset: %w", err)
	}
	for i := range dataset.Plants {
		dataset.Plants[i].Origin = OriginCurated
	}

	s := &FactStore{
		curated: dataset.Plants,
		kv:      kv,
		logger:  logger,
	}
	s.contributed = s.loadContributed()
	return s, nil
}

func (s *FactStore) loadContributed() []PlantRecord {
	if s.kv == nil {
		return nil
	}
	raw, found, err := s.kv.Get(contributedKey)
	if err != nil {
		s.logger.Warn("contributed records unreadable, starting in-memory only", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	var records []PlantRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn("contributed records corrupted, starting in-memory only", zap.Error(err))
		return nil
	}
	for i := range records {
		records[i].Origin = OriginContributed
	}
	return records
}

// Lookup returns the first record whose scientific or local name contains
// the query, scanning contributed records (insertion order) before curated
// ones (dataset order). First match wins; there is no scoring.
func (s *FactStore) Lookup(query string) (PlantRecord, bool) {
	needle := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.contributed {
		if matches(rec, needle) {
			return rec, true
		}
	}
	for _, rec := range s.curated {
		if matches(rec, needle) {
			return rec, true
		}
	}
	return PlantRecord{}, false
}

func matches(rec PlantRecord, needle string) bool {
	return strings.Contains(strings.ToLower(rec.ScientificName), needle) ||
		strings.Contains(strings.ToLower(rec.LocalName), needle)
}

// ListAll returns contributed records followed by curated ones, in the
// same order Lookup scans them.
func (s *FactStore) ListAll() []PlantRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]PlantRecord, 0, len(s.contributed)+len(s.curated))
	all = append(all, s.contributed...)
	all = append(all, s.curated...)
	return all
}

// Teach appends a contributed record and persists the full contributed
// set. The store stamps the origin and fills a default provenance tag when
// none was given; it performs no further validation and never fails.
func (s *FactStore) Teach(record PlantRecord) PlantRecord {
	record.Origin = OriginContributed
	if record.Provenance == "" {
		record.Provenance = DefaultContributedProvenance
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributed = append(s.contributed, record)
	s.persistContributedLocked()
	return record
}

func (s *FactStore) persistContributedLocked() {
	if s.kv == nil {
		return
	}
	raw, err := json.Marshal(s.contributed)
	if err != nil {
		s.logger.Warn("failed to serialize contributed records", zap.Error(err))
		return
	}
	if err := s.kv.Put(contributedKey, string(raw)); err != nil {
		s.logger.Warn("failed to persist contributed records, keeping in-memory copy", zap.Error(err))
	}
}
