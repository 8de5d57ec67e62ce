package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/imgbatch/internal/model"
)

func TestApplyOptions(t *testing.T) {
	o, err := applyOptions(model.DefaultOptions(), []string{
		"size=800x600", "format=webp", "q=0.9", "compression=0.8", "aspect=false", "watermark=© me",
	})
	require.NoError(t, err)

	assert.Equal(t, 800, o.TargetWidth)
	assert.Equal(t, 600, o.TargetHeight)
	assert.Equal(t, model.FormatWebP, o.Format)
	assert.False(t, o.KeepAspectRatio)
	assert.Equal(t, "© me", o.Watermark)
	assert.InDelta(t, 0.72, o.EffectiveQuality(), 1e-9)
}

func TestApplyOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no equals", []string{"width"}},
		{"unknown key", []string{"depth=3"}},
		{"bad number", []string{"width=wide"}},
		{"bad size", []string{"size=800"}},
		{"bad format", []string{"format=gif"}},
		{"out of range", []string{"quality=1.5"}},
		{"zero width", []string{"width=0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := applyOptions(model.DefaultOptions(), tt.args)
			assert.Error(t, err)
		})
	}
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "1.0 GiB", humanBytes(1<<30))
}
