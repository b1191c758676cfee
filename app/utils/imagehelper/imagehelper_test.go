package imagehelper

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSeries(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		series string
	}{
		{"1080p 桌面壁纸", 1920, 1080, SeriesDesktop},
		{"4K 桌面壁纸", 3840, 2160, SeriesDesktop},
		{"带鱼屏", 3440, 1440, SeriesDesktop},
		{"手机壁纸", 1080, 2400, SeriesMobile},
		{"正方形小图判定为头像", 512, 512, SeriesAvatar},
		{"接近正方形的小图", 800, 1000, SeriesAvatar},
		{"大尺寸正方形不算头像", 2000, 2000, SeriesDesktop},
		{"竖图但分辨率不足按比例归类", 600, 1200, SeriesMobile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DetectSeries(tt.width, tt.height)
			assert.Equal(t, tt.series, d.Series)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDetectSeriesConfidence(t *testing.T) {
	assert.InDelta(t, 0.95, DetectSeries(512, 512).Confidence, 0.001)
	assert.InDelta(t, 0.9, DetectSeries(1920, 1080).Confidence, 0.001)
	// 特征不明显时置信度降档
	assert.InDelta(t, 0.5, DetectSeries(600, 1200).Confidence, 0.001)
}

func TestDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 48))))
	require.NoError(t, f.Close())

	w, h, err := Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)
}

func TestDimensionsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-image.png")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0644))

	_, _, err := Dimensions(path)
	assert.Error(t, err)
}
