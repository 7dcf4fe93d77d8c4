package acquire

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/lumascope/acquire/internal/pubsub"
)

// EnvAliasFile names a YAML alias file loaded by LoadAliasFileFromEnv.
const EnvAliasFile = "ACQ_ALIAS_FILE"

// Registry keeps track of registered hardware sources and the aliases
// between source ids and logical names. It is an explicitly constructed
// object whose lifecycle belongs to the owning application context; there
// is no process-wide instance.
type Registry struct {
	mu      sync.Mutex
	sources []*HardwareSource
	aliases map[string]aliasEntry

	added   *pubsub.Topic[*HardwareSource]
	removed *pubsub.Topic[*HardwareSource]
}

type aliasEntry struct {
	sourceID    string
	displayName string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		aliases: make(map[string]aliasEntry),
		added:   pubsub.NewTopic[*HardwareSource](),
		removed: pubsub.NewTopic[*HardwareSource](),
	}
}

// Register adds a source and notifies listeners.
func (r *Registry) Register(source *HardwareSource) {
	r.mu.Lock()
	r.sources = append(r.sources, source)
	r.mu.Unlock()
	r.added.Publish(source)
}

// Unregister removes a source and notifies listeners. The source is not
// closed; the caller owns its lifecycle.
func (r *Registry) Unregister(source *HardwareSource) {
	r.mu.Lock()
	for i, existing := range r.sources {
		if existing == source {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	r.removed.Publish(source)
}

// SubscribeAdded registers a listener for source registrations.
func (r *Registry) SubscribeAdded(fn func(*HardwareSource)) *pubsub.Subscription[*HardwareSource] {
	return r.added.Subscribe(fn)
}

// SubscribeRemoved registers a listener for source removals.
func (r *Registry) SubscribeRemoved(fn func(*HardwareSource)) *pubsub.Subscription[*HardwareSource] {
	return r.removed.Subscribe(fn)
}

// MakeAlias configures an alias for a source id. Aliases may chain
// (an alias may point at another alias); resolution follows the chain.
// Ids should be lowercase without spaces; the display name is what may be
// shown to end users.
func (r *Registry) MakeAlias(sourceID, alias, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = aliasEntry{sourceID: sourceID, displayName: displayName}
}

// resolve follows the alias chain for id, guarding against cycles.
func (r *Registry) resolve(id string) (string, string) {
	displayName := ""
	seen := map[string]bool{}
	for {
		entry, ok := r.aliases[id]
		if !ok || seen[id] {
			return id, displayName
		}
		seen[id] = true
		id, displayName = entry.sourceID, entry.displayName
	}
}

// SourceByID returns the source registered under id, resolving aliases.
// Returns nil when no source matches.
func (r *Registry) SourceByID(id string) *HardwareSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved, _ := r.resolve(id)
	for _, source := range r.sources {
		if source.ID() == resolved {
			return source
		}
	}
	return nil
}

// SourceIDs returns the ids of all registered sources plus every alias
// that resolves to one.
func (r *Registry) SourceIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sources)+len(r.aliases))
	byID := make(map[string]bool, len(r.sources))
	for _, source := range r.sources {
		ids = append(ids, source.ID())
		byID[source.ID()] = true
	}
	for alias := range r.aliases {
		if resolved, _ := r.resolve(alias); byID[resolved] {
			ids = append(ids, alias)
		}
	}
	return ids
}

// Close aborts and closes every registered source.
func (r *Registry) Close() {
	r.mu.Lock()
	sources := append([]*HardwareSource(nil), r.sources...)
	r.sources = nil
	r.mu.Unlock()
	for _, source := range sources {
		source.Close()
	}
}

// aliasFile is the YAML layout for alias configuration:
//
//	aliases:
//	  - source: nano_eels_1
//	    alias: eels
//	    display_name: EELS
type aliasFile struct {
	Aliases []struct {
		Source      string `yaml:"source"`
		Alias       string `yaml:"alias"`
		DisplayName string `yaml:"display_name"`
	} `yaml:"aliases"`
}

// LoadAliasFile reads alias definitions from a YAML file and registers
// them. Entries missing a source or alias are skipped with a warning.
func (r *Registry) LoadAliasFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read alias file")
	}
	var parsed aliasFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return errors.Wrapf(err, "parse alias file %s", path)
	}
	for _, entry := range parsed.Aliases {
		if entry.Source == "" || entry.Alias == "" {
			log.Warn().Str("file", path).Msg("skipping alias entry without source/alias")
			continue
		}
		r.MakeAlias(entry.Source, entry.Alias, entry.DisplayName)
		log.Info().Str("alias", entry.Alias).Str("source", entry.Source).Msg("registered source alias")
	}
	return nil
}

// LoadAliasFileFromEnv loads the alias file named by ACQ_ALIAS_FILE, if
// set. A missing variable is not an error.
func (r *Registry) LoadAliasFileFromEnv() error {
	path := os.Getenv(EnvAliasFile)
	if path == "" {
		return nil
	}
	return r.LoadAliasFile(path)
}
