// internal/auth/store.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "cvpress"
	// FallbackDir is the directory for file-based storage under the user's home
	FallbackDir = ".cvpress/sessions"

	manifestKey = "_manifest"
)

// ErrNotFound is returned when no state is stored for a target.
var ErrNotFound = errors.New("auth state not found")

// Store persists AuthState per target site.
type Store interface {
	Load(target string) (AuthState, error)
	Save(target string, state AuthState) error
	Delete(target string) error
	List() ([]string, error)
}

// Store kinds accepted by OpenStore.
const (
	StoreFile    = "file"
	StoreKeyring = "keyring"
	StoreAuto    = "auto"
)

// OpenStore returns the store for kind. "auto" probes the OS keyring and
// falls back to files where it is unavailable (CI, containers).
func OpenStore(kind, dir string) (Store, error) {
	switch kind {
	case StoreFile, "":
		return NewFileStore(dir)
	case StoreKeyring:
		return NewKeyringStore(KeyringService), nil
	case StoreAuto:
		if keyringUsable() {
			return NewKeyringStore(KeyringService), nil
		}
		return NewFileStore(dir)
	default:
		return nil, fmt.Errorf("unknown auth store %q (use: file, keyring, auto)", kind)
	}
}

func keyringUsable() bool {
	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		return false
	}

	testKey := "_test_keyring_access_"
	if err := keyring.Set(KeyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(KeyringService, testKey)
	return true
}

// DefaultDir returns ~/.cvpress/sessions
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, FallbackDir), nil
}

func validTarget(target string) error {
	if target == "" {
		return fmt.Errorf("target name cannot be empty")
	}
	if target == manifestKey || strings.ContainsAny(target, `/\`) || strings.HasPrefix(target, ".") {
		return fmt.Errorf("invalid target name %q", target)
	}
	return nil
}

// FileStore keeps one JSON file per target in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create auth dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(target string) string {
	return filepath.Join(f.Dir, target+".json")
}

// Load reads the state for target.
func (f *FileStore) Load(target string) (AuthState, error) {
	if err := validTarget(target); err != nil {
		return AuthState{}, err
	}

	data, err := os.ReadFile(f.path(target))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AuthState{}, ErrNotFound
		}
		return AuthState{}, fmt.Errorf("failed to read auth file: %w", err)
	}

	state, err := ParseState(data)
	if err != nil {
		return AuthState{}, err
	}
	if state.Target == "" {
		state.Target = target
	}
	return state, nil
}

// Save replaces the state for target. The write goes to a temp file first
// so concurrent loads never observe a partial file.
func (f *FileStore) Save(target string, state AuthState) error {
	if err := validTarget(target); err != nil {
		return err
	}
	state.Target = target

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize auth state: %w", err)
	}

	tmp, err := os.CreateTemp(f.Dir, "."+target+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write auth state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write auth state: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path(target)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save auth state: %w", err)
	}
	return nil
}

// Delete removes the state for target. Deleting a missing target is not an error.
func (f *FileStore) Delete(target string) error {
	if err := validTarget(target); err != nil {
		return err
	}
	if err := os.Remove(f.path(target)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete auth file: %w", err)
	}
	return nil
}

// List returns stored target names in sorted order.
func (f *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	targets := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		targets = append(targets, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(targets)
	return targets, nil
}

// KeyringStore keeps states in the OS keyring, with a manifest entry
// listing the stored targets.
type KeyringStore struct {
	Service string
}

// NewKeyringStore returns a store scoped to service.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{Service: service}
}

// Load reads the state for target.
func (k *KeyringStore) Load(target string) (AuthState, error) {
	if err := validTarget(target); err != nil {
		return AuthState{}, err
	}

	data, err := keyring.Get(k.Service, target)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return AuthState{}, ErrNotFound
		}
		return AuthState{}, fmt.Errorf("failed to load from keyring: %w", err)
	}

	state, err := ParseState([]byte(data))
	if err != nil {
		return AuthState{}, err
	}
	if state.Target == "" {
		state.Target = target
	}
	return state, nil
}

// Save replaces the state for target and records it in the manifest.
func (k *KeyringStore) Save(target string, state AuthState) error {
	if err := validTarget(target); err != nil {
		return err
	}
	state.Target = target

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize auth state: %w", err)
	}
	if err := keyring.Set(k.Service, target, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return k.updateManifest(target, true)
}

// Delete removes the state for target.
func (k *KeyringStore) Delete(target string) error {
	if err := validTarget(target); err != nil {
		return err
	}
	if err := keyring.Delete(k.Service, target); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return k.updateManifest(target, false)
}

// List returns stored target names in sorted order.
func (k *KeyringStore) List() ([]string, error) {
	data, err := keyring.Get(k.Service, manifestKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var targets []string
	if err := json.Unmarshal([]byte(data), &targets); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}
	sort.Strings(targets)
	return targets, nil
}

func (k *KeyringStore) updateManifest(target string, add bool) error {
	targets, err := k.List()
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(targets)+1)
	for _, t := range targets {
		if t != target {
			kept = append(kept, t)
		}
	}
	if add {
		kept = append(kept, target)
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return keyring.Set(k.Service, manifestKey, string(data))
}

// LoadOrEmpty loads the state for target and degrades every failure
// (missing, corrupt, expired, unreadable) to an anonymous empty state.
func LoadOrEmpty(ctx context.Context, store Store, target string) AuthState {
	if store == nil || target == "" {
		return AuthState{}
	}
	logger := zerolog.Ctx(ctx).With().Str("auth_target", target).Logger()

	state, err := store.Load(target)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Debug().Msg("No stored auth state, continuing anonymously")
		return AuthState{}
	case err != nil:
		logger.Warn().Err(err).Msg("Unreadable auth state, continuing anonymously")
		return AuthState{}
	case state.Expired(time.Now()):
		logger.Warn().Time("expired_at", state.ExpiresAt).Msg("Stored auth state expired, continuing anonymously")
		return AuthState{}
	}

	logger.Debug().Int("cookies", len(state.Cookies)).Msg("Auth state loaded")
	return state
}
