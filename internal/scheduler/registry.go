package scheduler

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"duewatch/pkg/logging"
)

// registryFile is the on-disk registry format.
type registryFile struct {
	Users []registryEntry `yaml:"users"`
}

type registryEntry struct {
	Subject   string `yaml:"subject"`
	Login     string `yaml:"login,omitempty"`
	Secret    string `yaml:"secret,omitempty"`
	SecretEnv string `yaml:"secretEnv,omitempty"`
	Recipient string `yaml:"recipient,omitempty"`
	Source    string `yaml:"source,omitempty"`
}

// Registry owns the set of registered users and their per-period
// notification flags. Flags are changed only through MarkNotified and
// ResetPeriod.
type Registry struct {
	mu    sync.RWMutex
	users []*RegisteredUser
	index map[string]*RegisteredUser

	path          string
	defaultSource string
}

// NewRegistry creates an in-memory registry. Duplicate subjects keep the
// first entry.
func NewRegistry(users []RegisteredUser) *Registry {
	r := &Registry{}
	r.replace(users, false)
	return r
}

// LoadRegistry reads a registry file. Users without a source get
// defaultSource. The path is remembered for Reload.
func LoadRegistry(path, defaultSource string) (*Registry, error) {
	r := &Registry{path: path, defaultSource: defaultSource}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the backing file, or "" for an in-memory registry.
func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the backing file. Users that remain keep their flag;
// removed users are dropped. A file that cannot be read or parsed leaves the
// registry unchanged and returns an error. In-memory registries are a no-op.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}

	users, err := readRegistryFile(r.path, r.defaultSource)
	if err != nil {
		return err
	}

	r.replace(users, true)
	logging.Debug("Registry", "Loaded %d registered users from %s", r.Len(), r.path)
	return nil
}

func (r *Registry) replace(users []RegisteredUser, keepFlags bool) {
	list := make([]*RegisteredUser, 0, len(users))
	index := make(map[string]*RegisteredUser, len(users))
	for _, u := range users {
		if _, dup := index[u.SubjectID]; dup {
			logging.Warn("Registry", "Ignoring duplicate registry entry for subject=%s", logging.TruncateID(u.SubjectID))
			continue
		}
		user := u
		if user.Recipient == "" {
			user.Recipient = user.SubjectID
		}
		list = append(list, &user)
		index[user.SubjectID] = &user
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if keepFlags {
		for subject, user := range index {
			if old, ok := r.index[subject]; ok {
				user.NotifiedThisPeriod = old.NotifiedThisPeriod
			}
		}
	}
	r.users = list
	r.index = index
}

// Users returns a snapshot of every user in registry order.
func (r *Registry) Users() []RegisteredUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegisteredUser, len(r.users))
	for i, u := range r.users {
		out[i] = *u
	}
	return out
}

// Get returns a snapshot of one user.
func (r *Registry) Get(subjectID string) (RegisteredUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.index[subjectID]
	if !ok {
		return RegisteredUser{}, false
	}
	return *u, true
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// MarkNotified sets the user's flag. It returns false if the flag was
// already set or the user is unknown, so only one caller wins per period.
func (r *Registry) MarkNotified(subjectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.index[subjectID]
	if !ok || u.NotifiedThisPeriod {
		return false
	}
	u.NotifiedThisPeriod = true
	return true
}

// Notified reports the user's flag.
func (r *Registry) Notified(subjectID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.index[subjectID]
	return ok && u.NotifiedThisPeriod
}

// ResetPeriod clears every user's flag.
func (r *Registry) ResetPeriod() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		u.NotifiedThisPeriod = false
	}
}

func readRegistryFile(path, defaultSource string) ([]RegisteredUser, error) {
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}

	users := make([]RegisteredUser, 0, len(file.Users))
	for i, e := range file.Users {
		subject := strings.TrimSpace(e.Subject)
		if subject == "" {
			return nil, fmt.Errorf("registry %s: entry %d has no subject", path, i)
		}
		secret := e.Secret
		if e.SecretEnv != "" {
			secret = os.Getenv(e.SecretEnv)
			if secret == "" {
				logging.Warn("Registry", "Environment variable %s for subject=%s is empty", e.SecretEnv, logging.TruncateID(subject))
			}
		}
		source := strings.TrimSpace(e.Source)
		if source == "" {
			source = defaultSource
		}
		users = append(users, RegisteredUser{
			SubjectID:       subject,
			ExternalLoginID: strings.TrimSpace(e.Login),
			ExternalSecret:  secret,
			Recipient:       strings.TrimSpace(e.Recipient),
			Source:          source,
		})
	}
	return users, nil
}

// ErrRegistryUnavailable marks a sweep aborted because the registry could
// not be loaded.
var ErrRegistryUnavailable = errors.New("registry unavailable")
