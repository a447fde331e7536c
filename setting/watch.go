package setting

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hancat/sora2api/common"
)

// WatchConfig 监听配置文件变更并热加载，阻塞到 ctx 取消。
// 配置文件不存在时没有可监听的目标，直接等退出。
func WatchConfig(ctx context.Context) error {
	if configPath == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// 监听所在目录而不是文件本身，编辑器原子替换会换 inode
	target, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || abs != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 略等一拍，合并编辑器连续写入
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			common.SysError("config watcher error: " + err.Error())
		case <-pending:
			pending = nil
			if err := Reload(); err != nil {
				common.SysError("config reload failed: " + err.Error())
			} else {
				common.SysLog("config reloaded")
			}
		}
	}
}
