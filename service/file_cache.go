package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/setting"
)

// FileCache 把上游产物落到本地盘并通过 /files 直链对外，定期按 TTL 清理。
// 上游的产物链接带签名且时效很短，落盘后客户端才能反复取
type FileCache struct {
	dir string
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create file cache dir")
	}
	return &FileCache{dir: dir}, nil
}

func (fc *FileCache) Dir() string {
	return fc.dir
}

// SaveFromURL 下载产物到缓存目录，返回对外的相对路径
func (fc *FileCache) SaveFromURL(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "build download request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "download media")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("download status %d", resp.StatusCode)
	}

	name := common.GetUUID() + mediaExtension(resp.Header.Get("Content-Type"), rawURL)
	path := filepath.Join(fc.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "create cache file")
	}
	written, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return "", errors.Wrap(err, "write cache file")
	}
	if closeErr != nil {
		os.Remove(path)
		return "", errors.Wrap(closeErr, "close cache file")
	}

	if info, err := ProbeMediaFile(path); err == nil {
		logger.LogDebug(ctx, fmt.Sprintf("cached %s: %s %dx%d %.1fs %d bytes", name, info.Kind, info.Width, info.Height, info.Duration, written))
	}
	return "/files/" + name, nil
}

// LocalFileURL 把相对路径拼成客户端可访问的完整链接
func LocalFileURL(relative string) string {
	return strings.TrimSuffix(common.ServerAddress, "/") + relative
}

// CleanupLoop 周期清理过期缓存文件，ctx 取消时退出
func (fc *FileCache) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fc.cleanupOnce()
		}
	}
}

func (fc *FileCache) cleanupOnce() {
	ttl := setting.FileCacheTTL()
	if ttl <= 0 {
		return
	}
	entries, err := os.ReadDir(fc.dir)
	if err != nil {
		common.SysError("file cache cleanup failed: " + err.Error())
		return
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > ttl {
			if err := os.Remove(filepath.Join(fc.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		common.SysLog(fmt.Sprintf("file cache cleanup removed %d expired files", removed))
	}
}

func mediaExtension(contentType string, rawURL string) string {
	switch {
	case strings.Contains(contentType, "video/mp4"):
		return ".mp4"
	case strings.Contains(contentType, "image/png"):
		return ".png"
	case strings.Contains(contentType, "image/jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "image/webp"):
		return ".webp"
	}
	if idx := strings.IndexAny(rawURL, "?#"); idx >= 0 {
		rawURL = rawURL[:idx]
	}
	if ext := filepath.Ext(rawURL); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".bin"
}
