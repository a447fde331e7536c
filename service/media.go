package service

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	mp4 "github.com/abema/go-mp4"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// MediaInfo 探测出的产物元数据
type MediaInfo struct {
	Kind     string  `json:"kind"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration,omitempty"`
}

// ProbeMP4 读 mp4 box 结构，取时长和第一条视频轨的分辨率
func ProbeMP4(r io.ReadSeeker) (*MediaInfo, error) {
	info, err := mp4.Probe(r)
	if err != nil {
		return nil, errors.Wrap(err, "probe mp4")
	}
	mi := &MediaInfo{Kind: "video"}
	if info.Timescale > 0 {
		mi.Duration = float64(info.Duration) / float64(info.Timescale)
	}
	for _, track := range info.Tracks {
		if track.AVC != nil {
			mi.Width = int(track.AVC.Width)
			mi.Height = int(track.AVC.Height)
			break
		}
	}
	return mi, nil
}

// ProbeImage 只解码图片头部，支持 png/jpeg/webp
func ProbeImage(r io.Reader) (*MediaInfo, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode image config")
	}
	return &MediaInfo{Kind: "image", Width: cfg.Width, Height: cfg.Height}, nil
}

// ProbeMediaFile 按扩展名探测本地文件
func ProbeMediaFile(path string) (*MediaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		return ProbeMP4(f)
	}
	return ProbeImage(f)
}
