package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// StorageKey is the key the identity record lives under.
	StorageKey = "free-chat:user-identity"
	// MaxNameLength caps display names, counted in characters.
	MaxNameLength = 36
)

// ErrInvalidName is returned when renaming to a blank name.
var ErrInvalidName = errors.New("user name is required")

var (
	adjectives = []string{"Curious", "Brave", "Swift", "Bright", "Lively", "Calm"}
	animals    = []string{"Fox", "Otter", "Hawk", "Panda", "Lynx", "Dolphin"}
)

// Identity is who this client posts as.
type Identity struct {
	UserUID  string `json:"userUid"`
	UserName string `json:"userName"`
}

// Store persists the identity in a local pebble database.
type Store struct {
	db *pebble.DB
	mu sync.Mutex
}

// Open opens (or creates) the store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := pebble.Open(filepath.Join(filepath.Clean(dir), "identity"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the stored identity, creating and persisting one when absent
// or unreadable.
func (s *Store) Load() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.read()
	if err != nil {
		return Identity{}, err
	}
	if ok {
		return id, nil
	}

	id = Identity{UserUID: uuid.NewString(), UserName: RandomName()}
	if err := s.write(id); err != nil {
		return Identity{}, err
	}
	log.Info().Str("user_uid", id.UserUID).Str("user_name", id.UserName).Msg("[identity] created")
	return id, nil
}

// Save overwrites the stored identity.
func (s *Store) Save(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(id)
}

// Rename keeps the uid and replaces the display name, cut to MaxNameLength.
func (s *Store) Rename(name string) (Identity, error) {
	name = normaliseName(name)
	if name == "" {
		return Identity{}, ErrInvalidName
	}

	current, err := s.Load()
	if err != nil {
		return Identity{}, err
	}
	current.UserName = name

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(current); err != nil {
		return Identity{}, err
	}
	return current, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) read() (Identity, bool, error) {
	val, closer, err := s.db.Get([]byte(StorageKey))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Identity{}, false, nil
		}
		return Identity{}, false, fmt.Errorf("read identity: %w", err)
	}
	defer closer.Close()

	var id Identity
	if err := json.Unmarshal(val, &id); err != nil || id.UserUID == "" || id.UserName == "" {
		log.Warn().Err(err).Msg("[identity] stored record unreadable, regenerating")
		return Identity{}, false, nil
	}
	return id, true, nil
}

func (s *Store) write(id Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := s.db.Set([]byte(StorageKey), data, pebble.Sync); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}

func normaliseName(name string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return name
}

// RandomName picks an "Adjective Animal" display name.
func RandomName() string {
	return adjectives[rand.IntN(len(adjectives))] + " " + animals[rand.IntN(len(animals))]
}
