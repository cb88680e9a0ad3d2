package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                           "",
		"  Te LIBERO  ":              "te libero",
		"Corazón, perdón y canción!": "corazon perdon y cancion",
		"año\tnuevo\n\nvida":         "ano nuevo vida",
		"¿Quién soy yo?":             "quien soy yo",
		"3 generaciones / 1 linaje":  "3 generaciones 1 linaje",
		" espacio raro ":             "espacio raro",
	}
	for input, want := range cases {
		assert.Equal(t, want, Normalize(input), "input %q", input)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Yo te libero, MAMÁ, de mis expectativas.",
		"Ñandú   ÜBER  çava",
		"!!!   ???",
		"línea1\r\nlínea2",
	}
	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once), "input %q", input)
	}
}

func TestValidateTwoOfThreeBoundary(t *testing.T) {
	anchors := []string{"te libero", "me libero", "gracias por la vida"}

	two := Validate(anchors, "Hoy te libero y me libero de esta carga", DefaultRequirement())
	assert.True(t, two.Success)
	assert.Equal(t, []string{"te libero", "me libero"}, two.MatchedAnchors)
	assert.Equal(t, []string{"gracias por la vida"}, two.MissingPhrases)
	assert.InDelta(t, 2.0/3.0, two.Percentage, 1e-12)

	one := Validate(anchors, "Te libero.", DefaultRequirement())
	assert.False(t, one.Success)
	assert.Equal(t, []string{"me libero", "gracias por la vida"}, one.MissingPhrases)
}

func TestValidateAccentInsensitive(t *testing.T) {
	anchors := []string{"Te perdono, papá", "acepto mi historia", "elijo la vida"}
	got := Validate(anchors, "te perdono papa... acepto mi HISTORIA", DefaultRequirement())
	require.True(t, got.Success)
	assert.Equal(t, []string{"Te perdono, papá", "acepto mi historia"}, got.MatchedAnchors)
	assert.Equal(t, 67, got.PercentLabel())
}

func TestValidateEdgeCases(t *testing.T) {
	t.Run("empty anchors never succeed", func(t *testing.T) {
		for _, threshold := range []float64{0, 0.5, 1} {
			got := Validate(nil, "cualquier cosa", Requirement{Threshold: threshold})
			assert.Zero(t, got.Percentage)
			assert.False(t, got.Success, "threshold %v", threshold)
		}
	})
	t.Run("empty candidate", func(t *testing.T) {
		anchors := []string{"uno", "dos"}
		got := Validate(anchors, "", DefaultRequirement())
		assert.Zero(t, got.Percentage)
		assert.False(t, got.Success)
		assert.Equal(t, anchors, got.MissingPhrases)

		assert.True(t, Validate(anchors, "", Requirement{}).Success)
	})
	t.Run("blank anchors count but never match", func(t *testing.T) {
		got := Validate([]string{"hola", "?!"}, "hola a todos", Requirement{Threshold: 1})
		assert.False(t, got.Success)
		assert.InDelta(t, 0.5, got.Percentage, 1e-12)
		assert.Equal(t, []string{"?!"}, got.MissingPhrases)
	})
	t.Run("min matches", func(t *testing.T) {
		got := Validate([]string{"uno"}, "uno", Requirement{Threshold: 0.5, MinMatches: 2})
		assert.False(t, got.Success)
	})
}

func TestValidateDeterministic(t *testing.T) {
	anchors := []string{"a b", "c", "d"}
	first := Validate(anchors, "a b c", DefaultRequirement())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Validate(anchors, "a b c", DefaultRequirement()))
	}
}

func TestValidatorDefaults(t *testing.T) {
	v := NewValidator(Requirement{MinMatches: 1})
	assert.InDelta(t, DefaultThreshold, v.Default.Threshold, 1e-12)

	got := v.Validate([]string{"uno", "dos", "tres"}, "uno dos", Requirement{})
	assert.True(t, got.Success)
	assert.InDelta(t, DefaultThreshold, got.Threshold, 1e-12)

	strict := v.Validate([]string{"uno", "dos", "tres"}, "uno dos", Requirement{Threshold: 1})
	assert.False(t, strict.Success)
}

func TestValidateRecognitionBlock(t *testing.T) {
	anchors := []string{"reconozco lo que pasó", "me afectó", "hoy decido mirarlo de frente"}
	got := Validate(anchors, "Hoy reconozco lo que pasó y cómo me afectó profundamente", DefaultRequirement())

	assert.True(t, got.Success)
	assert.InDelta(t, 0.667, got.Percentage, 0.001)
	assert.Equal(t, []string{"reconozco lo que pasó", "me afectó"}, got.MatchedAnchors)
	assert.Equal(t, []string{"hoy decido mirarlo de frente"}, got.MissingPhrases)
	assert.Equal(t, anchors, got.TargetAnchors)
}
