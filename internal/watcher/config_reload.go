// config_reload.go implements debounced configuration hot reload.
// It skips reloads when the file content is unchanged and logs which keys moved.
package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/brightmind/post-publisher/internal/config"
	"github.com/brightmind/post-publisher/internal/util"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

func (w *Watcher) stopConfigReloadTimer() {
	w.configReloadMu.Lock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
		w.configReloadTimer = nil
	}
	w.configReloadMu.Unlock()
}

func (w *Watcher) scheduleConfigReload() {
	w.configReloadMu.Lock()
	defer w.configReloadMu.Unlock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
	}
	w.configReloadTimer = time.AfterFunc(w.debounce, func() {
		w.configReloadMu.Lock()
		w.configReloadTimer = nil
		w.configReloadMu.Unlock()
		w.reloadConfigIfChanged()
	})
}

func (w *Watcher) reloadConfigIfChanged() {
	newHash, err := fileHash(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if newHash == "" {
		log.Debugf("ignoring empty config file write event")
		return
	}

	w.mu.RLock()
	currentHash := w.lastConfigHash
	w.mu.RUnlock()

	if currentHash != "" && currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.mu.Lock()
		w.lastConfigHash = newHash
		w.mu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}
	if resolved, errResolve := util.ResolveAuthDir(newConfig.AuthDir); errResolve != nil {
		log.Errorf("failed to resolve auth directory from config: %v", errResolve)
	} else {
		newConfig.AuthDir = resolved
	}

	newYaml, _ := yaml.Marshal(newConfig)
	w.mu.Lock()
	oldYaml := w.oldConfigYaml
	w.oldConfigYaml = newYaml
	w.config = newConfig
	w.mu.Unlock()

	util.SetLogLevel(newConfig)

	if changed := changedKeys(oldYaml, newYaml); len(changed) > 0 {
		log.Infof("config changes detected: %s", strings.Join(changed, ", "))
	} else {
		log.Debugf("no material config field changes detected")
	}

	if w.reloadCallback != nil {
		w.reloadCallback(newConfig)
	}
	return true
}

// changedKeys lists the dotted yaml keys whose values differ. Values are never
// returned so secrets stay out of the log.
func changedKeys(oldYaml, newYaml []byte) []string {
	var oldTree, newTree map[string]any
	_ = yaml.Unmarshal(oldYaml, &oldTree)
	_ = yaml.Unmarshal(newYaml, &newTree)

	oldFlat := map[string]string{}
	newFlat := map[string]string{}
	flatten("", oldTree, oldFlat)
	flatten("", newTree, newFlat)

	seen := map[string]struct{}{}
	var keys []string
	for k, v := range newFlat {
		if oldFlat[k] != v {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range oldFlat {
		if _, ok := newFlat[k]; !ok {
			if _, dup := seen[k]; !dup {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = fmt.Sprint(v)
	}
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
