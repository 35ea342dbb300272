package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/smartprice/api/internal/platform/config"
)

func TestResolveCachesRemoteSecretUntilTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/test/secrets/deepseek-api-key/versions/latest"
	client.values[resource] = "sk-remote\n"

	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithCacheTTL(time.Minute),
		WithClock(func() time.Time { return now }),
		WithLogger(zap.NewNop()),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://deepseek-api-key")
		if err != nil || got != "sk-remote" {
			t.Fatalf("call %d: expected sk-remote, got %q (%v)", i, got, err)
		}
	}
	if calls := client.callCount(resource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	client.values[resource] = "sk-rotated"
	got, err := fetcher.Resolve(ctx, "secret://deepseek-api-key")
	if err != nil || got != "sk-rotated" {
		t.Fatalf("expected rotated value after ttl, got %q (%v)", got, err)
	}
}

func TestResolveHonoursVersionAndProjectQuery(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values["projects/other/secrets/gemini-api-key/versions/4"] = "g-4"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	got, err := fetcher.Resolve(ctx, "secret://gemini-api-key?version=4&project=other")
	if err != nil || got != "g-4" {
		t.Fatalf("expected g-4, got %q (%v)", got, err)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors["projects/test/secrets/deepseek-api-key/versions/latest"] = status.Error(codes.Unavailable, "down")

	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	content := "# local development keys\nsecret://deepseek-api-key=sk-local\nsm://gemini-api-key=g-local\n"
	if err := os.WriteFile(fallbackPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	fetcher, err := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithProject("test"),
		WithFallbackFile(fallbackPath),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	got, err := fetcher.Resolve(ctx, "secret://deepseek-api-key")
	if err != nil || got != "sk-local" {
		t.Fatalf("expected fallback value, got %q (%v)", got, err)
	}
	got, err = fetcher.Resolve(ctx, "secret://gemini-api-key")
	if err != nil || got != "g-local" {
		t.Fatalf("expected sm:// fallback key to resolve, got %q (%v)", got, err)
	}
}

func TestFallbackFileTolerantParsing(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	for _, name := range []string{"deepseek-api-key/versions/latest", "signing-key/versions/3", "pepper/versions/latest"} {
		client.errors["projects/test/secrets/"+name] = status.Error(codes.PermissionDenied, "denied")
	}

	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	content := "not a pair\n" +
		"export deepseek-api-key = \"sk-local\"\n" +
		"secret://signing-key?version=3=abc==\n" +
		"pepper='p=1'\n"
	if err := os.WriteFile(fallbackPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}

	cases := map[string]string{
		"secret://deepseek-api-key":      "sk-local",
		"secret://signing-key?version=3": "abc==",
		"secret://pepper":                "p=1",
	}
	for ref, want := range cases {
		got, err := fetcher.Resolve(ctx, ref)
		if err != nil || got != want {
			t.Fatalf("%s: expected %q, got %q (%v)", ref, want, got, err)
		}
	}
}

func TestSplitFallbackLine(t *testing.T) {
	cases := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{line: "postgres-dsn=postgres://u:p@localhost/db?sslmode=disable", key: "postgres-dsn", value: "postgres://u:p@localhost/db?sslmode=disable", ok: true},
		{line: "sm://gemini-api-key=g-local", key: "sm://gemini-api-key", value: "g-local", ok: true},
		{line: "secret://k?version=2&project=p=v", key: "secret://k?version=2&project=p", value: "v", ok: true},
		{line: "secret://k?version=2", ok: false},
		{line: "=value", ok: false},
		{line: "novalue", ok: false},
	}
	for _, tc := range cases {
		key, value, ok := splitFallbackLine(tc.line)
		if ok != tc.ok || key != tc.key || value != tc.value {
			t.Fatalf("%q: got (%q, %q, %v)", tc.line, key, value, ok)
		}
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()

	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("secret://deepseek-api-key=sk-local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithProject("test"), WithFallbackFile(fallbackPath))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	if _, err := fetcher.Resolve(ctx, "secret://deepseek-api-key"); err == nil {
		t.Fatal("expected not found to surface instead of falling back")
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	ctx := context.Background()
	originalFactory := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = originalFactory })

	fallbackPath := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(fallbackPath, []byte("postgres-dsn=postgres://localhost/smartprice\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	fetcher, err := NewFetcher(ctx, WithFallbackFile(fallbackPath), WithProject("test"))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	cfg, err := config.Load(ctx,
		config.WithEnvFile(""),
		config.WithoutSystemEnv(),
		config.WithEnvMap(map[string]string{
			"API_STORE_DRIVER":       "postgres",
			"API_STORE_POSTGRES_DSN": "sm://postgres-dsn",
		}),
		config.WithSecretResolver(fetcher),
	)
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	if cfg.Store.PostgresDSN != "postgres://localhost/smartprice" {
		t.Fatalf("expected dsn from fallback file, got %q", cfg.Store.PostgresDSN)
	}
}

func TestParseReferenceRejectsOtherSchemes(t *testing.T) {
	for _, ref := range []string{"", "https://example.com/x", "secret://"} {
		if _, err := parseReference(ref); err == nil {
			t.Fatalf("expected %q to be rejected", ref)
		}
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := req.GetName()
	f.counter[name]++
	if err, ok := f.errors[name]; ok && err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
