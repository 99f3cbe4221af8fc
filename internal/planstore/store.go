// Package planstore archives plan specifications on disk. Each plan is a
// msgpack record holding the IMC packet of the PlanSpecification, compressed
// with zstd.
package planstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brunoga/deep"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/signalsfoundry/imc-missions/imc"
)

// Extension is appended to the plan id to form the file name.
const Extension = ".plan.zst"

const defaultCacheSize = 64

var (
	// ErrNotFound is returned when no archive file exists for an id.
	ErrNotFound = errors.New("planstore: plan not found")
	// ErrInvalidID is returned for ids that are not safe file names.
	ErrInvalidID = errors.New("planstore: invalid plan id")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateID reports whether id can be used as a file name.
func ValidateID(id string) error {
	if !validID.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// Record is the on-disk form of an archived plan.
type Record struct {
	ID          string    `msgpack:"id"`
	Description string    `msgpack:"description"`
	SavedAt     time.Time `msgpack:"saved_at"`
	Maneuvers   int       `msgpack:"maneuvers"`
	Packet      []byte    `msgpack:"packet"` // IMC encoded PlanSpecification
}

// Summary describes an archived plan without its maneuvers.
type Summary struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	SavedAt     time.Time `json:"saved_at"`
	Maneuvers   int       `json:"maneuvers"`
}

type entry struct {
	summary Summary
	spec    *imc.PlanSpecification
}

// Store is a directory of archived plans with an in-memory cache of
// decoded specifications.
type Store struct {
	dir string

	mu    sync.Mutex
	cache *lru.Cache[string, *entry]
}

// Open creates dir if needed and returns a store rooted there. A
// non-positive cacheSize selects the default.
func Open(dir string, cacheSize int) (*Store, error) {
	if dir == "" {
		return nil, errors.New("planstore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create plan directory: %w", err)
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *entry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, cache: cache}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+Extension)
}

// Save archives spec under its PlanID, replacing any previous version.
func (s *Store) Save(spec *imc.PlanSpecification) (Summary, error) {
	if spec == nil {
		return Summary{}, errors.New("planstore: nil plan")
	}
	if err := ValidateID(spec.PlanID); err != nil {
		return Summary{}, err
	}
	packet, err := imc.Encode(imc.Header{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Dst:       imc.BroadcastAddress,
		DstEnt:    imc.AnyEntity,
	}, spec)
	if err != nil {
		return Summary{}, fmt.Errorf("encode plan %s: %w", spec.PlanID, err)
	}
	rec := Record{
		ID:          spec.PlanID,
		Description: spec.Description,
		SavedAt:     time.Now().UTC().Truncate(time.Millisecond),
		Maneuvers:   len(spec.Maneuvers),
		Packet:      packet,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeRecord(rec); err != nil {
		return Summary{}, err
	}
	sum := summaryOf(rec)
	s.cache.Add(rec.ID, &entry{summary: sum, spec: deep.MustCopy(spec)})
	return sum, nil
}

func (s *Store) writeRecord(rec Record) error {
	tmp, err := os.CreateTemp(s.dir, "."+rec.ID+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(rec); err != nil {
		zw.Close()
		tmp.Close()
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(rec.ID))
}

func (s *Store) readRecord(id string) (Record, error) {
	f, err := os.Open(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return Record{}, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return Record{}, err
	}
	defer zr.Close()

	var rec Record
	if err := msgpack.NewDecoder(zr).Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) load(id string) (*entry, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if e, ok := s.cache.Get(id); ok {
		return e, nil
	}

	rec, err := s.readRecord(id)
	if err != nil {
		return nil, err
	}
	_, msg, err := imc.Decode(rec.Packet)
	if err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", id, err)
	}
	spec, ok := msg.(*imc.PlanSpecification)
	if !ok {
		return nil, fmt.Errorf("plan %s: %w: got %s", id, imc.ErrUnexpectedType, msg.Abbrev())
	}
	e := &entry{summary: summaryOf(rec), spec: spec}
	s.cache.Add(id, e)
	return e, nil
}

// Load returns the archived plan. The result is a private copy.
func (s *Store) Load(id string) (*imc.PlanSpecification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return deep.Copy(e.spec)
}

// Stat returns the summary of an archived plan.
func (s *Store) Stat(id string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.load(id)
	if err != nil {
		return Summary{}, err
	}
	return e.summary, nil
}

// List returns the summaries of all archived plans ordered by id.
// Unreadable files are skipped.
func (s *Store) List() ([]Summary, error) {
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read plan directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Summary
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, Extension) {
			continue
		}
		id := strings.TrimSuffix(name, Extension)
		if ValidateID(id) != nil {
			continue
		}
		if e, ok := s.cache.Get(id); ok {
			out = append(out, e.summary)
			continue
		}
		rec, err := s.readRecord(id)
		if err != nil {
			continue
		}
		out = append(out, summaryOf(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes an archived plan.
func (s *Store) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(id)
	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

func summaryOf(rec Record) Summary {
	return Summary{
		ID:          rec.ID,
		Description: rec.Description,
		SavedAt:     rec.SavedAt,
		Maneuvers:   rec.Maneuvers,
	}
}
