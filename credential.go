package promptops

import (
	"strings"
	"sync"
)

// credentialStore holds the current API credential. The credential is only
// ever read through accessors so a concurrent UpdateAPIKey is visible to the
// next outbound request without further wiring.
type credentialStore struct {
	mu  sync.RWMutex
	key string
}

func newCredentialStore(key string) *credentialStore {
	return &credentialStore{key: key}
}

func (s *credentialStore) set(key string) {
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
}

func (s *credentialStore) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// defined reports whether a non-empty credential is currently set.
func (s *credentialStore) defined() bool {
	return s.get() != ""
}

// masked returns the display form of the credential. The raw value never
// leaves this method.
func (s *credentialStore) masked() (string, error) {
	key := s.get()
	if key == "" {
		return "", &Error{Type: ErrorTypeAuthentication, Message: "no API key set", Cause: ErrNotAuthenticated}
	}
	return maskKey(key), nil
}

// String implements fmt.Stringer with the masked form so that accidentally
// formatting the store never leaks the credential.
func (s *credentialStore) String() string {
	m, err := s.masked()
	if err != nil {
		return "<unset>"
	}
	return m
}

// maskKey redacts a credential for display, preserving the first eight and
// last four characters when the key is long enough to keep that safe.
func maskKey(key string) string {
	if len(key) >= 12 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	return strings.Repeat("*", len(key))
}
