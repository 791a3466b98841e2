package auth

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"wolfpack-sync/domain"
)

const stateFileName = "state.json"

// State is the persisted local session record: the bearer token, the user
// record kept for the local stand-in auth mode, and the tour-seen flag.
type State struct {
	Token     string      `json:"token,omitempty"`
	User      domain.User `json:"user"`
	LocalUser bool        `json:"localUser,omitempty"`
	TourSeen  bool        `json:"tourSeen,omitempty"`
}

// Store persists State as a JSON file under a state directory.
type Store struct {
	dir string
}

// NewStore creates the state directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("auth: state dir not set")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Load reads the persisted state. A missing file yields a zero State.
func (s *Store) Load() (State, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, stateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Save writes the state atomically via a temp file rename.
func (s *Store) Save(st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, stateFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Clear removes the persisted state.
func (s *Store) Clear() error {
	err := os.Remove(filepath.Join(s.dir, stateFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
