package imagehelper

import (
	"fmt"
	"image"
	"os"

	// 注册常见图片格式的解码器
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

// 系列常量
const (
	SeriesDesktop = "desktop"
	SeriesMobile  = "mobile"
	SeriesAvatar  = "avatar"
)

// 壁纸类型检测规则
const (
	desktopMinWidth    = 1280
	desktopMinRatio    = 1.3
	desktopMaxRatio    = 3.5
	mobileMinHeight    = 1280
	mobileMinRatio     = 0.4
	mobileMaxRatio     = 0.75
	avatarMaxDimension = 1024
	avatarMinRatio     = 0.8
	avatarMaxRatio     = 1.25
)

// Detection 图片系列检测结果
type Detection struct {
	Series     string  `json:"series"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// Dimensions 读取图片尺寸（仅解析头部，不解码像素）
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("无法读取图片尺寸: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// DetectSeries 根据分辨率和宽高比判断壁纸系列
func DetectSeries(width, height int) Detection {
	if width <= 0 || height <= 0 {
		return Detection{Series: SeriesDesktop, Confidence: 0, Reason: "尺寸无效，默认桌面壁纸", Width: width, Height: height}
	}

	ratio := float64(width) / float64(height)
	maxDim := width
	if height > maxDim {
		maxDim = height
	}

	// 头像优先判断，特征最明显
	if ratio >= avatarMinRatio && ratio <= avatarMaxRatio && maxDim <= avatarMaxDimension {
		return Detection{
			Series:     SeriesAvatar,
			Confidence: 0.95,
			Reason:     fmt.Sprintf("接近正方形 (%dx%d) 且尺寸较小，判定为头像", width, height),
			Width:      width, Height: height,
		}
	}

	if ratio >= desktopMinRatio && ratio <= desktopMaxRatio && width >= desktopMinWidth {
		return Detection{
			Series:     SeriesDesktop,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("横向构图 (%dx%d)，判定为桌面壁纸", width, height),
			Width:      width, Height: height,
		}
	}

	if ratio >= mobileMinRatio && ratio <= mobileMaxRatio && height >= mobileMinHeight {
		return Detection{
			Series:     SeriesMobile,
			Confidence: 0.9,
			Reason:     fmt.Sprintf("纵向构图 (%dx%d)，判定为手机壁纸", width, height),
			Width:      width, Height: height,
		}
	}

	// 特征不明显时按宽高比粗略归类
	series := SeriesDesktop
	if ratio < 1 {
		series = SeriesMobile
	}
	return Detection{
		Series:     series,
		Confidence: 0.5,
		Reason:     fmt.Sprintf("特征不明显 (%dx%d)，按宽高比归类", width, height),
		Width:      width, Height: height,
	}
}

// CompressOptions 压缩配置
type CompressOptions struct {
	MaxWidth  int // 最大宽度
	MaxHeight int // 最大高度
	Quality   int // JPEG 质量 (1-100)
}

// DefaultCompressOptions 默认压缩配置
func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		MaxWidth:  3840,
		MaxHeight: 2160,
		Quality:   90,
	}
}

// Compress 压缩图片到目标路径，返回压缩后的文件大小
// 超出 MaxWidth/MaxHeight 时等比缩小，输出统一为 JPEG
func Compress(srcPath, dstPath string, opts CompressOptions) (int64, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("打开图片失败: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > opts.MaxWidth || bounds.Dy() > opts.MaxHeight {
		img = imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
	}

	if err := imaging.Save(img, dstPath, imaging.JPEGQuality(opts.Quality)); err != nil {
		return 0, fmt.Errorf("保存压缩图片失败: %w", err)
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
