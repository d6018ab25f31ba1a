package crisis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandBoundaries(t *testing.T) {
	tests := []struct {
		confidence float64
		band       string
	}{
		{0.95, BandImmediate},
		{0.8, BandImmediate},
		{0.79999, BandHigh},
		{0.6, BandHigh},
		{0.59999, BandModerate},
		{0.4, BandModerate},
		{0.39999, BandGeneral},
		{0, BandGeneral},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.band, Band(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestNeedsIntervention(t *testing.T) {
	assert.True(t, NeedsIntervention(0.9))
	assert.True(t, NeedsIntervention(0.6))
	assert.False(t, NeedsIntervention(0.59999))
	assert.False(t, NeedsIntervention(0.2))
}

func TestSelectResources(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		first      string
		contains   string
	}{
		{"immediate", 0.85, "🆘 IMMEDIATE HELP NEEDED 🆘", "Emergency Services: 999 or 112"},
		{"high", 0.65, "🚨 Crisis Support Available", "Mathari Hospital Emergency: +254 20 2723841"},
		{"moderate", 0.45, "💛 Support Resources", "Befrienders Kenya: +254 722 178 177"},
		{"general", 0.1, "💚 Mental Health Resources", "Mental Health Kenya: mentalhealthkenya.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources := SelectResources(tt.confidence)
			assert.NotEmpty(t, resources)
			assert.Equal(t, tt.first, resources[0])
			assert.Contains(t, resources, tt.contains)
		})
	}
}

func TestSelectTemplate(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		language   string
		contains   string
	}{
		{"immediate english", 0.9, "en", "Kenya Red Cross 1199"},
		{"immediate swahili", 0.9, "sw", "Nimehuzunishwa sana"},
		{"immediate swahili long code", 0.9, "Swahili", "Kenya Red Cross 1199"},
		{"high english", 0.7, "en", "Befrienders Kenya +254 722 178 177"},
		{"high swahili", 0.7, "sw", "Befrienders Kenya +254 722 178 177"},
		{"moderate english", 0.5, "en", "you're not alone"},
		{"moderate swahili", 0.5, "sw", "huko peke yako"},
		{"general english", 0.2, "en", "okay to seek help"},
		{"general swahili", 0.2, "sw", "ni sawa kutafuta msaada"},
		{"unknown language falls back to english", 0.9, "fr", "Kenya Red Cross 1199"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			template := SelectTemplate(tt.confidence, tt.language)
			assert.Contains(t, template, tt.contains)
		})
	}
}

func TestSelectorsArePureLookups(t *testing.T) {
	for _, confidence := range []float64{0.9, 0.7, 0.5, 0.1} {
		assert.Equal(t, SelectResources(confidence), SelectResources(confidence))
		assert.Equal(t, SelectTemplate(confidence, "en"), SelectTemplate(confidence, "en"))
		assert.Equal(t, SelectTemplate(confidence, "sw"), SelectTemplate(confidence, "sw"))
	}
}
