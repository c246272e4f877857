package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source resolves the attester keystore passphrase once, from an environment
// variable or an interactive prompt, and caches the result for later calls.
type Source struct {
	envVar string

	once  sync.Once
	value string
	err   error
}

// NewSource builds a source that consults envVar before prompting.
func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar)}
}

// Get returns the passphrase, resolving it on the first call. Whitespace-only
// passphrases are rejected so a keystore is never written unprotected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if s.envVar != "" {
			return "", fmt.Errorf("attester keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("attester keystore passphrase required and no terminal available")
	}

	fmt.Fprint(os.Stderr, "Enter attester keystore passphrase: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	passphrase := string(raw)
	if strings.TrimSpace(passphrase) == "" {
		return "", errors.New("attester keystore passphrase cannot be empty")
	}
	return passphrase, nil
}
