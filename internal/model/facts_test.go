package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCompanySize(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"200", 200, true},
		{"51-200", 51, true},
		{"1,000+", 1000, true},
		{"about 350 employees", 350, true},
		{"Enterprise", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCompanySize(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnrichmentFacts_Text(t *testing.T) {
	f := &EnrichmentFacts{
		Summary:       String("  Runs ops at Acme  "),
		Title:         String("   "),
		TalkingPoints: []string{"x", " ", "y"},
	}

	v, ok := f.Text(FieldSummary)
	assert.True(t, ok)
	assert.Equal(t, "Runs ops at Acme", v)

	_, ok = f.Text(FieldTitle)
	assert.False(t, ok, "blank scalar is absent")

	_, ok = f.Text(FieldIndustry)
	assert.False(t, ok)

	v, ok = f.Text(FieldTalkingPoints)
	assert.True(t, ok)
	assert.Equal(t, "x\ny", v)

	assert.Equal(t, 2, f.Count(FieldTalkingPoints))
	assert.Equal(t, 1, f.Count(FieldSummary))
	assert.Equal(t, 0, f.Count(FieldRecentNews))
	assert.Equal(t, 2, f.Populated())
	assert.False(t, f.Empty())
}

func TestEnrichmentFacts_NilSafe(t *testing.T) {
	var f *EnrichmentFacts
	_, ok := f.Text(FieldSummary)
	assert.False(t, ok)
	assert.True(t, f.Empty())
	_, ok = f.CompanySizeValue()
	assert.False(t, ok)
}

func TestString(t *testing.T) {
	assert.Nil(t, String(""))
	assert.Nil(t, String("  "))
	assert.Equal(t, "a", *String("a"))
}
