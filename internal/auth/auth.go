// Package auth supplies the bearer credential the sync subsystem presents
// to the push channel and the REST API.
//
// The subsystem only consumes a token; it never logs in. A missing token
// is reported as ErrNoToken and callers treat it as a hard precondition
// failure.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrNoToken is returned when no credential is available.
var ErrNoToken = errors.New("no authentication token available")

// TokenProvider returns the current bearer credential.
type TokenProvider interface {
	Token() (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func() (string, error)

func (f TokenFunc) Token() (string, error) { return f() }

// StaticToken is a fixed credential. The empty string means no credential.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

// EnvToken reads the credential from an environment variable on every call,
// so a rotated value is picked up on the next connect.
type EnvToken struct {
	Var string
}

func (e EnvToken) Token() (string, error) {
	tok := strings.TrimSpace(os.Getenv(e.Var))
	if tok == "" {
		return "", fmt.Errorf("%w: $%s is empty", ErrNoToken, e.Var)
	}
	return tok, nil
}

// FileToken reads the credential from a file on every call. Deleting the
// file invalidates the credential.
type FileToken struct {
	Path string
}

func (f FileToken) Token() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoToken, f.Path)
		}
		return "", fmt.Errorf("read token file: %w", err)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, f.Path)
	}
	return tok, nil
}

// Chain returns the first credential any provider yields. Providers that
// report ErrNoToken are skipped; any other error stops the search.
func Chain(providers ...TokenProvider) TokenProvider {
	return TokenFunc(func() (string, error) {
		for _, p := range providers {
			if p == nil {
				continue
			}
			tok, err := p.Token()
			if err == nil {
				return tok, nil
			}
			if !errors.Is(err, ErrNoToken) {
				return "", err
			}
		}
		return "", ErrNoToken
	})
}

// Sources names where a credential may come from. Empty fields are skipped.
type Sources struct {
	Token     string // Literal token (usually ${VAR} expanded from config)
	TokenFile string // Path to a file holding the token
	TokenEnv  string // Environment variable holding the token
}

// FromSources builds a provider that tries the literal token, then the
// file, then the environment variable.
func FromSources(s Sources) TokenProvider {
	var providers []TokenProvider
	if s.Token != "" {
		providers = append(providers, StaticToken(s.Token))
	}
	if s.TokenFile != "" {
		providers = append(providers, FileToken{Path: s.TokenFile})
	}
	if s.TokenEnv != "" {
		providers = append(providers, EnvToken{Var: s.TokenEnv})
	}
	return Chain(providers...)
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// BearerHeader returns request headers carrying the current credential.
func BearerHeader(p TokenProvider) (http.Header, error) {
	if p == nil {
		return nil, ErrNoToken
	}
	tok, err := p.Token()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	return header, nil
}
