package ruleset

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
	"gopkg.in/yaml.v3"

	"github.com/coolbeans/rollcall/pkg/logging"
)

//go:embed rules/*.yaml
var builtinRules embed.FS

// Registry manages the rule sets available to the parser.
type Registry struct {
	mu       sync.RWMutex
	sets     map[string]*RuleSet
	defaults bool
	dir      string
	logger   *zap.Logger

	watcher   *fsnotify.Watcher
	stopChan  chan struct{}
	watchDone chan struct{}
	onChange  func(event string, rs *RuleSet)
}

// NewRegistry creates an empty rule set registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sets:   make(map[string]*RuleSet),
		logger: logging.OrNop(logger),
	}
}

// NewDefaultRegistry creates a registry holding the built-in rule sets.
func NewDefaultRegistry(logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	r.defaults = true
	if err := r.loadBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRegistryWithDirectory creates a registry with the built-in rule sets and
// overlays the rule sets found in dir.
func NewRegistryWithDirectory(dir string, logger *zap.Logger) (*Registry, error) {
	r, err := NewDefaultRegistry(logger)
	if err != nil {
		return nil, err
	}
	if err := r.LoadDirectory(dir); err != nil {
		return nil, err
	}
	return r, nil
}

// Builtin returns freshly parsed copies of the built-in rule sets.
func Builtin() ([]*RuleSet, error) {
	entries, err := fs.ReadDir(builtinRules, "rules")
	if err != nil {
		return nil, fmt.Errorf("reading built-in rules: %w", err)
	}
	sets := make([]*RuleSet, 0, len(entries))
	for _, entry := range entries {
		data, err := builtinRules.ReadFile("rules/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading built-in rule %s: %w", entry.Name(), err)
		}
		rs, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("built-in rule %s: %w", entry.Name(), err)
		}
		sets = append(sets, rs)
	}
	return sets, nil
}

// Parse decodes, validates and compiles a YAML rule set.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	if err := rs.Compile(); err != nil {
		return nil, fmt.Errorf("compiling rule set %q: %w", rs.ID, err)
	}
	return &rs, nil
}

func (r *Registry) loadBuiltins() error {
	sets, err := Builtin()
	if err != nil {
		return err
	}
	for _, rs := range sets {
		if err := r.Register(rs); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a rule set to the registry. A rule set with an ID that is
// already registered replaces it only when its version differs.
func (r *Registry) Register(rs *RuleSet) error {
	if rs == nil {
		return fmt.Errorf("rule set cannot be nil")
	}

	if err := rs.Validate(); err != nil {
		return fmt.Errorf("invalid rule set: %w", err)
	}

	if !rs.IsCompiled() {
		if err := rs.Compile(); err != nil {
			return fmt.Errorf("compiling rule set %q: %w", rs.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sets[rs.ID]; ok && existing.Version == rs.Version {
		return fmt.Errorf("rule set %q version %s already registered", rs.ID, rs.Version)
	}

	r.sets[rs.ID] = rs
	return nil
}

// put stores a compiled rule set, replacing any rule set with the same ID.
// Files on disk override built-in rule sets regardless of version.
func (r *Registry) put(rs *RuleSet) {
	r.mu.Lock()
	r.sets[rs.ID] = rs
	r.mu.Unlock()
}

// Unregister removes a rule set from the registry.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sets[id]; !ok {
		return fmt.Errorf("rule set %q not found", id)
	}

	delete(r.sets, id)
	return nil
}

// Get returns a rule set by its ID.
func (r *Registry) Get(id string) (*RuleSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, ok := r.sets[id]
	return rs, ok
}

// List returns all registered rule sets sorted by ID.
func (r *Registry) List() []*RuleSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sets := make([]*RuleSet, 0, len(r.sets))
	for _, rs := range r.sets {
		sets = append(sets, rs)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].ID < sets[j].ID })
	return sets
}

// ForState returns the rule set bound to a state hint such as "Virginia".
func (r *Registry) ForState(state string) (*RuleSet, bool) {
	for _, rs := range r.List() {
		if rs.HasState(state) {
			return rs, true
		}
	}
	return nil, false
}

// Count returns the number of registered rule sets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

// LoadDirectory loads all YAML rule set files from a directory.
func (r *Registry) LoadDirectory(dir string) error {
	r.dir = dir

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var loadErrors []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("errors loading rule sets: %s", strings.Join(loadErrors, "; "))
	}

	return nil
}

// LoadFile loads a single rule set file.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	rs, err := Parse(data)
	if err != nil {
		return err
	}

	r.put(rs)

	r.logger.Debug("loaded rule set",
		zap.String("id", rs.ID),
		zap.String("version", rs.Version),
		zap.String("path", path))
	return nil
}

// Reload rebuilds the registry from the built-in rule sets and the
// configured directory. Readers keep seeing the previous rule sets until the
// rebuild succeeds.
func (r *Registry) Reload() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for reload")
	}

	fresh := NewRegistry(r.logger)
	if r.defaults {
		if err := fresh.loadBuiltins(); err != nil {
			return err
		}
	}
	if err := fresh.LoadDirectory(r.dir); err != nil {
		return err
	}

	r.mu.Lock()
	r.sets = fresh.sets
	r.mu.Unlock()
	return nil
}

// SetOnChange sets a callback that is called after a rule set changes.
func (r *Registry) SetOnChange(fn func(event string, rs *RuleSet)) {
	r.onChange = fn
}

// Watch starts watching the rule directory for changes.
func (r *Registry) Watch() error {
	if r.dir == "" {
		return fmt.Errorf("no directory configured for watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching directory %s: %w", r.dir, err)
	}

	r.watcher = watcher
	r.stopChan = make(chan struct{})
	r.watchDone = make(chan struct{})

	go r.watchLoop()
	return nil
}

func (r *Registry) watchLoop() {
	defer close(r.watchDone)
	for {
		select {
		case <-r.stopChan:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				r.handleFileChange(event.Name, "create")
			case event.Op&fsnotify.Write == fsnotify.Write:
				r.handleFileChange(event.Name, "modify")
			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				r.handleFileRemove(event.Name)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("rule watcher error", zap.Error(err))
		}
	}
}

func (r *Registry) handleFileChange(path string, eventType string) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("reading changed rule set", zap.String("path", path), zap.Error(err))
		return
	}
	rs, err := Parse(data)
	if err != nil {
		r.logger.Warn("rejected changed rule set", zap.String("path", path), zap.Error(err))
		return
	}
	r.put(rs)

	r.logger.Info("rule set reloaded",
		zap.String("event", eventType),
		zap.String("id", rs.ID),
		zap.String("version", rs.Version))
	if r.onChange != nil {
		r.onChange(eventType, rs)
	}
}

// handleFileRemove reloads everything since files are not tracked per ID.
func (r *Registry) handleFileRemove(path string) {
	if err := r.Reload(); err != nil {
		r.logger.Warn("reloading rule sets", zap.String("path", path), zap.Error(err))
	}

	if r.onChange != nil {
		r.onChange("remove", nil)
	}
}

// StopWatch stops watching the rule directory and waits for the watch loop
// to exit.
func (r *Registry) StopWatch() {
	if r.stopChan == nil {
		return
	}
	close(r.stopChan)
	if r.watcher != nil {
		r.watcher.Close()
	}
	<-r.watchDone
	r.stopChan = nil
	r.watcher = nil
}

// Clear removes all rule sets from the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = make(map[string]*RuleSet)
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
