package gen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	c, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "model", c.Package)
	assert.Equal(t, "model", c.Target)
	assert.Equal(t, "Code generated by versa. DO NOT EDIT.", c.Header)
	assert.Positive(t, c.Workers)

	c, err = NewConfig(WithPackage("crm"), WithTarget("internal/crm"), WithHeader(""), WithWorkers(1))
	require.NoError(t, err)
	assert.Equal(t, "crm", c.Package)
	assert.Equal(t, "internal/crm", c.Target)
	assert.Empty(t, c.Header)
	assert.Equal(t, 1, c.Workers)
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"package", WithPackage("my-pkg")},
		{"target", WithTarget("")},
		{"workers", WithWorkers(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opt(&Config{})
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.ErrorIs(t, err, ErrMissingConfig)
		})
	}
}

func TestApplyAll(t *testing.T) {
	c := &Config{}
	err := c.ApplyAll(WithPackage("1x"), WithTarget(""), WithHeader("h"))
	require.Error(t, err)
	assert.Equal(t, "h", c.Header)

	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindConfig, gerr.Kind)
	assert.Equal(t, "package", gerr.Subject)
	assert.Contains(t, err.Error(), "gen: config target: empty directory")
	assert.Panics(t, func() { MustNewConfig(WithWorkers(-2)) })
	assert.Error(t, WithPackage("func")(c))
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")

	err := catalogError("customer", "name", "bad type", cause)
	assert.Equal(t, "gen: catalog customer.name: bad type: boom", err.Error())
	assert.ErrorIs(t, err, ErrInvalidCatalog)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrGenerationFailed)

	oerr := outputError("format", "customer.go", "", cause)
	assert.Equal(t, "gen: output format customer.go: boom", oerr.Error())
	assert.True(t, IsGenerationError(oerr))
	assert.ErrorIs(t, oerr, ErrGenerationFailed)
	assert.False(t, IsCatalogError(oerr))

	cerr := configError("workers", -1, "negative worker count")
	assert.Equal(t, "gen: config workers: negative worker count (got -1)", cerr.Error())
}
