package provider

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Errors
// ============================================================================

func TestWrap(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, Wrap("s3", "list", nil))
	})

	t.Run("RawError", func(t *testing.T) {
		raw := errors.New("connection reset")
		err := Wrap("s3", "list", raw)

		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "s3", pe.Type)
		assert.Equal(t, "list", pe.Op)
		assert.ErrorIs(t, err, raw)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("DomainErrorsPassThrough", func(t *testing.T) {
		na := &NotAuthorizedError{Type: "gdrive"}
		assert.Same(t, na, Wrap("s3", "list", na))

		pe := StatusError("webdav", "get", 403, "")
		wrapped := fmt.Errorf("outer: %w", pe)
		assert.Same(t, wrapped, Wrap("s3", "list", wrapped))
	})
}

func TestErrorSentinels(t *testing.T) {
	assert.ErrorIs(t, &ConfigurationError{Type: "s3"}, ErrConfiguration)
	assert.ErrorIs(t, &NotAuthorizedError{Type: "s3"}, ErrNotAuthorized)
	assert.ErrorIs(t, &NotFoundError{Kind: "file", ID: "x"}, ErrNotFound)
	assert.ErrorIs(t, &ConflictError{Kind: "file"}, ErrConflict)
	assert.ErrorIs(t, StatusError("s3", "get", 404, ""), ErrNotFound)
	assert.NotErrorIs(t, StatusError("s3", "get", 500, ""), ErrNotFound)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 403, StatusCode(fmt.Errorf("wrapped: %w", StatusError("s3", "get", 403, "denied"))))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
	assert.Equal(t, 0, StatusCode(nil))
}

// ============================================================================
// Schema
// ============================================================================

type testConfig struct {
	Bucket  string        `mapstructure:"bucket" validate:"required"`
	Region  string        `mapstructure:"region"`
	Retries int           `mapstructure:"retries" validate:"gte=0,lte=10"`
	Expiry  time.Duration `mapstructure:"expiry"`
	Secret  string        `mapstructure:"secret"`
}

var testSchema = Schema{
	Type: "test",
	Fields: []Field{
		{Name: "bucket", Required: true},
		{Name: "region", Default: "us-east-1"},
		{Name: "retries", Default: 3},
		{Name: "expiry", Default: "15m"},
		{Name: "secret", Sensitive: true},
	},
}

func TestSchema_Decode(t *testing.T) {
	t.Run("AppliesDefaults", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, testSchema.Decode(map[string]any{"bucket": "b"}, &cfg))
		assert.Equal(t, "us-east-1", cfg.Region)
		assert.Equal(t, 3, cfg.Retries)
		assert.Equal(t, 15*time.Minute, cfg.Expiry)
	})

	t.Run("WeakTyping", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, testSchema.Decode(map[string]any{"bucket": "b", "retries": "5"}, &cfg))
		assert.Equal(t, 5, cfg.Retries)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		var cfg testConfig
		err := testSchema.Decode(map[string]any{"bucket": ""}, &cfg)

		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "bucket", ce.Field)
		assert.Equal(t, "test", ce.Type)
	})

	t.Run("ValidateTags", func(t *testing.T) {
		var cfg testConfig
		err := testSchema.Decode(map[string]any{"bucket": "b", "retries": 99}, &cfg)

		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "retries", ce.Field)
	})

	t.Run("BadType", func(t *testing.T) {
		var cfg testConfig
		err := testSchema.Decode(map[string]any{"bucket": "b", "retries": "many"}, &cfg)
		assert.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestSchema_Normalize(t *testing.T) {
	in := map[string]any{"bucket": "b", "unknown": "drop me"}
	out := testSchema.Normalize(in)

	assert.Equal(t, "b", out["bucket"])
	assert.Equal(t, "us-east-1", out["region"])
	assert.NotContains(t, out, "unknown")
	assert.NotContains(t, out, "secret", "fields without default stay absent")
	assert.Contains(t, in, "unknown", "input must not be modified")
}

func TestSchema_SensitiveFields(t *testing.T) {
	assert.Equal(t, []string{"secret"}, testSchema.SensitiveFields())
}

func TestMerge(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	out := Merge(base, map[string]any{"b": nil, "c": 3})

	assert.Equal(t, map[string]any{"a": 1, "c": 3}, out)
	assert.Equal(t, 2, base["b"])
}

// ============================================================================
// Registry
// ============================================================================

func TestRegistry(t *testing.T) {
	factory := func() StorageProvider { return nil }

	t.Run("RegisterAndLookup", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(Entry{Type: "b", AuthType: AuthNone, Factory: factory}))
		require.NoError(t, reg.Register(Entry{Type: "a", AuthType: AuthAPIKey, Factory: factory}))

		e, err := reg.Lookup("a")
		require.NoError(t, err)
		assert.Equal(t, AuthAPIKey, e.AuthType)
		assert.Equal(t, "a", e.Schema.Type, "schema type defaults to the entry type")
		assert.Equal(t, []string{"a", "b"}, reg.Types())
	})

	t.Run("Duplicate", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(Entry{Type: "a", Factory: factory}))
		assert.Error(t, reg.Register(Entry{Type: "a", Factory: factory}))
	})

	t.Run("Invalid", func(t *testing.T) {
		reg := NewRegistry()
		assert.Error(t, reg.Register(Entry{Factory: factory}))
		assert.Error(t, reg.Register(Entry{Type: "x"}))
		assert.Error(t, reg.Register(Entry{Type: "x", Factory: factory, AuthType: AuthOAuthRedirect}))
		assert.Error(t, reg.Register(Entry{Type: "x", Factory: factory, AuthType: AuthOAuthPoll}))
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := NewRegistry().Lookup("nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// ============================================================================
// Paths
// ============================================================================

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a-b", SanitizeName("a/b"))
	assert.Equal(t, "a-b-c", SanitizeName(`a\b/c`))
	assert.Equal(t, "plain.txt", SanitizeName("plain.txt"))
}

func TestJoinPaths(t *testing.T) {
	assert.Equal(t, "/docs/", JoinFolderPath("", "docs"))
	assert.Equal(t, "/docs/a-b/", JoinFolderPath("/docs/", "a/b"))
	assert.Equal(t, "/docs/x.txt", JoinFilePath("/docs/", "x.txt"))
	assert.Equal(t, "/docs/x.txt", JoinFilePath("/docs", "x.txt"))
	assert.Equal(t, "/x.txt", JoinFilePath("", "x.txt"))
}

func TestSanitizeName_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("sanitized names contain no separators", prop.ForAll(
		func(name string) bool {
			s := SanitizeName(name)
			return !strings.ContainsAny(s, `/\`)
		},
		gen.AnyString(),
	))

	properties.Property("sanitizing preserves length in runes", prop.ForAll(
		func(name string) bool {
			return len([]rune(SanitizeName(name))) == len([]rune(name))
		},
		gen.AnyString(),
	))

	properties.Property("a file path adds exactly one segment to its parent", prop.ForAll(
		func(parent, name string) bool {
			base := JoinFolderPath("", parent)
			p := JoinFilePath(base, name)
			return strings.Count(p, "/") == strings.Count(base, "/")
		},
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
