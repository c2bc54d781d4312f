package apperr

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_ThroughErisWrap(t *testing.T) {
	err := eris.Wrap(NotFound("contact", "c-1"), "store: get contact")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindValidation))
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestValidation_Message(t *testing.T) {
	err := Validation("invalid scoring config", "bant weights sum to 90, want 100", "spin: unknown factor \"x\"")
	assert.Equal(t, `invalid scoring config: bant weights sum to 90, want 100; spin: unknown factor "x"`, err.Error())

	e, ok := As(eris.Wrap(err, "scoring: put config"))
	require.True(t, ok)
	assert.Len(t, e.Details, 2)
}

func TestProviderUnavailable_Unwrap(t *testing.T) {
	cause := errors.New("anthropic: timeout; perplexity: 503")
	err := ProviderUnavailable(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "no enrichment provider produced usable facts")
}
