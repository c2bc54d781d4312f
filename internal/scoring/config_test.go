package scoring

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateConfig(cfg))
	for _, fw := range model.Frameworks {
		assert.Equal(t, 100, WeightSum(cfg.Weights[fw]), "framework %s", fw)
	}
}

func TestValidateConfig_WeightSum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[model.FrameworkBANT]["budget"] = 15

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Details, "bant weights must sum to 100, got 90")
}

func TestValidateConfig_RejectsOverflowingWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[model.FrameworkBANT] = Weights{
		"budget":    math.MaxInt,
		"authority": math.MaxInt,
		"need":      2,
		"timeline":  100,
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Details, fmt.Sprintf("bant.budget weight must be between 0 and 100, got %d", math.MaxInt))
	assert.Contains(t, e.Details, fmt.Sprintf("bant.authority weight must be between 0 and 100, got %d", math.MaxInt))
	for _, d := range e.Details {
		assert.NotContains(t, d, "bant weights must sum")
	}
}

func TestValidateConfig_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"negative weight",
			func(c *Config) {
				c.Weights[model.FrameworkSPIN]["situation"] = -10
				c.Weights[model.FrameworkSPIN]["problem"] = 60
			},
			"spin.situation weight must be between 0 and 100, got -10",
		},
		{
			"factor without rule",
			func(c *Config) {
				c.Weights[model.FrameworkSPIN] = Weights{"situation": 50, "mystery": 50}
			},
			"spin.mystery has no rule table",
		},
		{
			"unknown framework",
			func(c *Config) { c.Weights["meddic"] = Weights{"x": 100} },
			`unknown framework "meddic"`,
		},
		{
			"missing framework",
			func(c *Config) { delete(c.Weights, model.FrameworkQualification) },
			"qualification: no weights configured",
		},
		{
			"inverted thresholds",
			func(c *Config) { c.Thresholds = model.Thresholds{Hot: 40, Warm: 71} },
			"thresholds must satisfy 0 < warm < hot <= 100, got warm=71 hot=40",
		},
		{
			"bad rule field",
			func(c *Config) {
				r := c.Rules[model.FrameworkBANT]["need"]
				r.Fields = []string{"shoe_size"}
				c.Rules[model.FrameworkBANT]["need"] = r
			},
			`bant.need: unknown field "shoe_size"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			e, ok := apperr.As(ValidateConfig(cfg))
			require.True(t, ok)
			assert.Contains(t, e.Details, tt.want)
		})
	}
}

func TestApply_DoesNotMutateBase(t *testing.T) {
	base := DefaultConfig()
	out := Apply(base, Update{
		Weights: map[model.Framework]Weights{
			model.FrameworkBANT: {"budget": 40, "authority": 20, "need": 20, "timeline": 20},
		},
		Thresholds: &model.Thresholds{Hot: 80, Warm: 50},
	})

	assert.Equal(t, 40, out.Weights[model.FrameworkBANT]["budget"])
	assert.Equal(t, 25, base.Weights[model.FrameworkBANT]["budget"])
	assert.Equal(t, 80, out.Thresholds.Hot)
	assert.Equal(t, 71, base.Thresholds.Hot)
	assert.Equal(t, base.Weights[model.FrameworkSPIN], out.Weights[model.FrameworkSPIN])
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	doc := `scoring:
  weights:
    bant:
      budget: 40
      authority: 30
      need: 20
      timeline: 10
  thresholds:
    hot: 75
    warm: 45
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Weights[model.FrameworkBANT]["budget"])
	assert.Equal(t, model.Thresholds{Hot: 75, Warm: 45}, cfg.Thresholds)
	assert.Equal(t, 30, cfg.Weights[model.FrameworkLeadScore]["seniority"])
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	doc := "scoring:\n  weights:\n    bant:\n      budget: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
