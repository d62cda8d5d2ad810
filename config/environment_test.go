package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T, data map[string]any) *StandardEnvironment {
	t.Helper()
	env := NewEnvironment()
	require.NoError(t, env.AddInMemory("test", data))
	return env
}

func TestPropertyLookup(t *testing.T) {
	env := newTestEnv(t, map[string]any{
		"server": map[string]any{
			"host": "localhost",
			"port": 8080,
		},
		"db.url":   "postgres://${server.host}:5432",
		"features": []any{"a", "b"},
	})

	v, ok := env.Property("server.port")
	require.True(t, ok)
	assert.Equal(t, "8080", v)
	assert.Equal(t, "postgres://localhost:5432", env.PropertyOr("db.url", ""))
	assert.Equal(t, "a,b", env.PropertyOr("features", ""))
	assert.Equal(t, "b", env.PropertyOr("features[1]", ""))
	assert.Equal(t, "fallback", env.PropertyOr("missing", "fallback"))

	_, ok = env.Property("server")
	assert.False(t, ok)

	_, err := env.RequiredProperty("missing")
	require.Error(t, err)
}

func TestSourcePrecedence(t *testing.T) {
	env := NewEnvironment()
	require.NoError(t, env.PropertySources().AddLast(&InMemorySource{SourceName: "defaults", Data: map[string]any{
		"app.name": "default",
		"app.mode": "dev",
	}}))
	require.NoError(t, env.PropertySources().AddFirst(&InMemorySource{SourceName: "overrides", Data: map[string]any{
		"app.name": "custom",
	}}))

	assert.Equal(t, []string{"overrides", "defaults"}, env.PropertySources().Names())
	assert.Equal(t, "custom", env.PropertyOr("app.name", ""))
	assert.Equal(t, "dev", env.PropertyOr("app.mode", ""))

	assert.True(t, env.PropertySources().Remove("overrides"))
	assert.Equal(t, "default", env.PropertyOr("app.name", ""))
	assert.False(t, env.PropertySources().Remove("overrides"))
}

func TestResolvePlaceholders(t *testing.T) {
	env := newTestEnv(t, map[string]any{
		"host":   "example.com",
		"port":   "443",
		"url":    "https://${host}:${port}",
		"key":    "port",
		"cycleA": "${cycleB}",
		"cycleB": "${cycleA}",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"simple", "${host}", "example.com"},
		{"nested value", "${url}/api", "https://example.com:443/api"},
		{"default", "${timeout:30s}", "30s"},
		{"default ignored", "${port:80}", "443"},
		{"default with colon", "${missing:http://localhost:80}", "http://localhost:80"},
		{"nested key", "${${key}}", "443"},
		{"unresolvable kept", "${missing}", "${missing}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, env.ResolvePlaceholders(tt.in))
		})
	}

	_, err := env.ResolveRequiredPlaceholders("${missing}")
	var unresolvable *UnresolvablePlaceholderError
	require.ErrorAs(t, err, &unresolvable)
	assert.Equal(t, "missing", unresolvable.Placeholder)

	_, err = env.ResolveRequiredPlaceholders("${cycleA}")
	var circular *CircularPlaceholderError
	require.ErrorAs(t, err, &circular)
}

func TestRequiredProperties(t *testing.T) {
	env := newTestEnv(t, map[string]any{"present": "yes"})
	env.SetRequiredProperties("present", "absent", "other")
	env.SetRequiredProperties("absent")

	err := env.ValidateRequiredProperties()
	var missing *MissingRequiredPropertiesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"absent", "other"}, missing.Keys)
}

func TestFileSources(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "app.yaml")
	jsonPath := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server:\n  port: 9090\n  hosts:\n    - a\n    - b\n"), 0o644))
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"server":{"port":7070,"name":"json"}}`), 0o644))

	env := NewEnvironment()
	require.NoError(t, env.AddYamlFile(yamlPath))
	require.NoError(t, env.AddJsonFile(jsonPath))
	require.NoError(t, env.AddYamlFile(filepath.Join(dir, "missing.yaml"), true))
	require.Error(t, env.AddJsonFile(filepath.Join(dir, "missing.json")))

	assert.Equal(t, "9090", env.PropertyOr("server.port", ""))
	assert.Equal(t, "json", env.PropertyOr("server.name", ""))
	assert.Equal(t, "a,b", env.PropertyOr("server.hosts", ""))
}

func TestEnvironmentVariableSource(t *testing.T) {
	t.Setenv("IOCTEST_SERVER_PORT", "8181")
	t.Setenv("IOCTEST_NAME", "svc")

	env := NewEnvironment()
	require.NoError(t, env.PropertySources().AddLast(&EnvironmentVariableSource{Prefix: "IOCTEST_"}))
	assert.Equal(t, "8181", env.PropertyOr("server.port", ""))
	assert.Equal(t, "svc", env.PropertyOr("name", ""))
}

func TestEtcdValueMapping(t *testing.T) {
	src := NewEtcdSource(EtcdOptions{Endpoints: []string{"localhost:2379"}, Prefix: "/app"})
	assert.Equal(t, 5*time.Second, src.Options.Timeout)

	result := make(map[string]any)
	src.put(result, "/app/server/port", []byte("8080"))
	src.put(result, "/app/db", []byte(`{"url":"mysql://x","pool":10}`))
	src.put(result, "/app/cache", []byte("ttl: 30s\nsize: 100\n"))
	src.put(result, "/app/name", []byte("plain: [text"))
	src.put(result, "/app", []byte("ignored"))

	sources := NewPropertySources()
	require.NoError(t, sources.AddLast(&InMemorySource{Data: result}))
	get := func(k string) string {
		v, _ := sources.Lookup(k)
		return v
	}
	assert.Equal(t, "8080", get("server.port"))
	assert.Equal(t, "mysql://x", get("db.url"))
	assert.Equal(t, "10", get("db.pool"))
	assert.Equal(t, "30s", get("cache.ttl"))
	assert.Equal(t, "plain: [text", get("name"))
}

func TestPropertySourcesConcurrentReads(t *testing.T) {
	env := newTestEnv(t, map[string]any{"key": "value"})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "value", env.PropertyOr("key", ""))
		}()
	}
	require.NoError(t, env.AddInMemory("more", map[string]any{"other": 1}))
	wg.Wait()
	assert.Equal(t, "1", env.PropertyOr("other", ""))
}

type serverSettings struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
	Tags    []string      `yaml:"tags"`
	TLS     struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tls"`
}

func TestBind(t *testing.T) {
	env := newTestEnv(t, map[string]any{
		"default.port": "9000",
		"server": map[string]any{
			"host":        "0.0.0.0",
			"port":        "${default.port}",
			"timeout":     "3s",
			"tags":        []any{"a", "b"},
			"tls.enabled": true,
		},
	})

	s, err := Bind[serverSettings](env, "server")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", s.Host)
	assert.Equal(t, 9000, s.Port)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, []string{"a", "b"}, s.Tags)
	assert.True(t, s.TLS.Enabled)

	_, err = Bind[serverSettings](env, "missing")
	require.Error(t, err)
}
