package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("  abc123 \n").Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "abc123" {
		t.Errorf("Token() = %q, want %q", tok, "abc123")
	}

	if _, err := StaticToken("").Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty StaticToken error = %v, want ErrNoToken", err)
	}
}

func TestEnvToken(t *testing.T) {
	t.Setenv("BOTSYNC_TEST_TOKEN", "from-env")

	tok, err := EnvToken{Var: "BOTSYNC_TEST_TOKEN"}.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "from-env" {
		t.Errorf("Token() = %q, want %q", tok, "from-env")
	}

	t.Setenv("BOTSYNC_TEST_TOKEN", "")
	if _, err := (EnvToken{Var: "BOTSYNC_TEST_TOKEN"}).Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("unset EnvToken error = %v, want ErrNoToken", err)
	}
}

func TestFileToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")

	p := FileToken{Path: path}
	if _, err := p.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("missing file error = %v, want ErrNoToken", err)
	}

	if err := os.WriteFile(path, []byte("file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	tok, err := p.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "file-token" {
		t.Errorf("Token() = %q, want %q", tok, "file-token")
	}

	// Removing the file invalidates the credential on the next call.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("after remove error = %v, want ErrNoToken", err)
	}
}

func TestChain(t *testing.T) {
	t.Run("first available wins", func(t *testing.T) {
		p := Chain(StaticToken(""), StaticToken("second"), StaticToken("third"))
		tok, err := p.Token()
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		if tok != "second" {
			t.Errorf("Token() = %q, want %q", tok, "second")
		}
	})

	t.Run("none available", func(t *testing.T) {
		p := Chain(StaticToken(""), nil)
		if _, err := p.Token(); !errors.Is(err, ErrNoToken) {
			t.Errorf("error = %v, want ErrNoToken", err)
		}
	})

	t.Run("hard error stops search", func(t *testing.T) {
		boom := errors.New("keychain locked")
		p := Chain(TokenFunc(func() (string, error) { return "", boom }), StaticToken("never"))
		if _, err := p.Token(); !errors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}
	})
}

func TestFromSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("file-token"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOTSYNC_TEST_TOKEN", "env-token")

	tests := []struct {
		name string
		src  Sources
		want string
	}{
		{"literal first", Sources{Token: "lit", TokenFile: path, TokenEnv: "BOTSYNC_TEST_TOKEN"}, "lit"},
		{"file before env", Sources{TokenFile: path, TokenEnv: "BOTSYNC_TEST_TOKEN"}, "file-token"},
		{"env only", Sources{TokenEnv: "BOTSYNC_TEST_TOKEN"}, "env-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := FromSources(tt.src).Token()
			if err != nil {
				t.Fatalf("Token failed: %v", err)
			}
			if tok != tt.want {
				t.Errorf("Token() = %q, want %q", tok, tt.want)
			}
		})
	}

	if _, err := FromSources(Sources{}).Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty sources error = %v, want ErrNoToken", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file error = %v, want nil", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BOTSYNC_DOTENV_TOKEN=dotenv-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOTSYNC_DOTENV_TOKEN", "")
	os.Unsetenv("BOTSYNC_DOTENV_TOKEN")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}

	tok, err := EnvToken{Var: "BOTSYNC_DOTENV_TOKEN"}.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok != "dotenv-secret" {
		t.Errorf("Token() = %q, want %q", tok, "dotenv-secret")
	}
}

func TestBearerHeader(t *testing.T) {
	h, err := BearerHeader(StaticToken("abc"))
	if err != nil {
		t.Fatalf("BearerHeader failed: %v", err)
	}
	if got := h.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
	}

	if _, err := BearerHeader(nil); !errors.Is(err, ErrNoToken) {
		t.Errorf("nil provider error = %v, want ErrNoToken", err)
	}
}
