// Package directory maps lookup modules to the capability bots that
// serve them. The directory is loaded once at startup and immutable for
// the process lifetime.
package directory

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrNoBotConfigured is returned when no directory entry declares the
// requested module among its capabilities.
var ErrNoBotConfigured = eris.New("no bot configured for module")

// BotEntry describes one capability bot on the chat network.
type BotEntry struct {
	Name         string        `yaml:"name"`
	Identity     string        `yaml:"identity"`
	Capabilities []string      `yaml:"capabilities"`
	Latency      time.Duration `yaml:"latency"`
}

// Serves reports whether the bot declares the module capability.
func (b BotEntry) Serves(module string) bool {
	for _, c := range b.Capabilities {
		if c == module {
			return true
		}
	}
	return false
}

// Directory is an ordered set of bot entries. Lookup returns the first
// entry serving a module, so earlier entries win for shared capabilities.
type Directory struct {
	entries []BotEntry
}

// New creates a directory from the given entries.
func New(entries []BotEntry) *Directory {
	return &Directory{entries: entries}
}

// Load reads bot entries from a YAML file. An empty path yields the
// built-in default directory.
func Load(path string) (*Directory, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: read %s", path)
	}
	var doc struct {
		Bots []BotEntry `yaml:"bots"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "directory: parse yaml")
	}
	if len(doc.Bots) == 0 {
		return nil, eris.Errorf("directory: %s declares no bots", path)
	}
	return New(doc.Bots), nil
}

// Lookup returns the first entry whose capability set contains module.
func (d *Directory) Lookup(module string) (BotEntry, error) {
	for _, e := range d.entries {
		if e.Serves(module) {
			return e, nil
		}
	}
	return BotEntry{}, eris.Wrapf(ErrNoBotConfigured, "module %s", module)
}

// Entries returns a copy of the directory entries.
func (d *Directory) Entries() []BotEntry {
	out := make([]BotEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Identities returns the set of bot chat identities, used by the inbound
// listener to recognize bot senders.
func (d *Directory) Identities() map[string]bool {
	ids := make(map[string]bool, len(d.entries))
	for _, e := range d.entries {
		ids[e.Identity] = true
	}
	return ids
}

// Default returns the built-in bot directory.
func Default() *Directory {
	return New([]BotEntry{
		{
			Name:         "deepleak",
			Identity:     "@DeepLeakIntel_bot",
			Capabilities: []string{"breach-search", "linked-emails", "alternate-numbers"},
			Latency:      30 * time.Second,
		},
		{
			Name:         "truedial",
			Identity:     "@TrueDialLookup_bot",
			Capabilities: []string{"identity", "alternate-numbers"},
			Latency:      15 * time.Second,
		},
		{
			Name:         "allseer",
			Identity:     "@AllSeerOSINT_bot",
			Capabilities: []string{"identity", "social", "vehicle"},
			Latency:      20 * time.Second,
		},
		{
			Name:         "contactbook",
			Identity:     "@ContactBookIndex_bot",
			Capabilities: []string{"identity", "social"},
			Latency:      15 * time.Second,
		},
		{
			Name:         "payprobe",
			Identity:     "@PayProbeLookup_bot",
			Capabilities: []string{"payment-id", "bank-details"},
			Latency:      25 * time.Second,
		},
		{
			Name:         "idverify",
			Identity:     "@IDVerifyCheck_bot",
			Capabilities: []string{"identity-verification"},
			Latency:      30 * time.Second,
		},
	})
}
