// Package config loads the core's on-disk settings: the minimal bootstrap
// configuration every subsystem needs at construction time.
package config

import (
	"os"

	"github.com/mitchellh/go-homedir"
	uuid "github.com/satori/go.uuid"
	"gopkg.in/yaml.v3"
)

// ShareProfileConfig describes one configured share profile's roots.
type ShareProfileConfig struct {
	Token int      `yaml:"token"`
	Name  string   `yaml:"name"`
	Roots []string `yaml:"roots"`
}

// HubConfig describes one favorite hub entry.
type HubConfig struct {
	URL            string `yaml:"url"`
	Nick           string `yaml:"nick"`
	ShareProfile   int    `yaml:"share_profile"`
	RequireHBRI    bool   `yaml:"require_hbri"`
	SearchInterval int    `yaml:"search_interval_seconds"`
}

// Config is the full set of tunables for the core.
type Config struct {
	// Transfer engine.
	Port             uint16 `yaml:"port"`
	DownloadSlots    int    `yaml:"download_slots"`
	UploadSlots      int    `yaml:"upload_slots"`
	SmallFileSlots   int    `yaml:"small_file_slots"`
	SmallFileSize    int64  `yaml:"small_file_size_bytes"`
	DownLimitKiBps   int    `yaml:"down_limit_kibps"`
	UpLimitKiBps     int    `yaml:"up_limit_kibps"`
	MaxConnsPerUser  int    `yaml:"max_connections_per_user"`
	IdleDisconnectS  int    `yaml:"idle_disconnect_seconds"`

	// Share tree.
	ShareProfiles    []ShareProfileConfig `yaml:"share_profiles"`
	ShareCacheDir    string               `yaml:"share_cache_dir"`
	ExcludedPatterns []string             `yaml:"excluded_patterns"`

	// Queue / bundle manager.
	QueueDir         string `yaml:"queue_dir"`
	DefaultSequential bool  `yaml:"default_sequential_priority"`

	// Hubs.
	Hubs               []HubConfig `yaml:"hubs"`
	SearchesPerMinute  int         `yaml:"searches_per_minute"`

	// Auto-search.
	AutoSearchMinIntervalS int `yaml:"auto_search_min_interval_seconds"`

	// Encryption / outgoing connections.
	Encryption struct {
		DisableOutgoing bool `yaml:"disable_outgoing"`
		ForceOutgoing   bool `yaml:"force_outgoing"`
		ForceIncoming   bool `yaml:"force_incoming"`
	} `yaml:"encryption"`

	Database string `yaml:"database"`
	DataDir  string `yaml:"data_dir"`

	// ClientCID identifies this client to ADC hubs. When absent from the
	// file on disk, a new one is generated on every load; it is not
	// written back to the file.
	ClientCID string `yaml:"client_cid"`
}

// DefaultConfig holds sane defaults that work out of the box, overridden
// by whatever the YAML file sets.
var DefaultConfig = Config{
	Port:                   6346,
	DownloadSlots:          3,
	UploadSlots:            10,
	SmallFileSlots:         3,
	SmallFileSize:          64 * 1024,
	MaxConnsPerUser:        3,
	IdleDisconnectS:        60,
	ShareCacheDir:          "~/.airdc/share-cache",
	QueueDir:               "~/.airdc/queue",
	SearchesPerMinute:      5,
	AutoSearchMinIntervalS: 600,
	Database:               "~/.airdc/airdc.db",
	DataDir:                "~/.airdc/data",
}

// LoadConfig reads filename as YAML over DefaultConfig. A missing file is
// not an error: it simply returns the defaults.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return expand(&c)
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return expand(&c)
}

// ShareRoot is one directory to share, paired with the profile tokens it
// should be visible under.
type ShareRoot struct {
	Path     string
	Profiles []int
}

// ShareRoots flattens the per-profile root lists into one path->profiles
// view, merging profile membership for roots shared by more than one
// profile entry.
func (c *Config) ShareRoots() []ShareRoot {
	byPath := make(map[string][]int)
	var order []string
	for _, p := range c.ShareProfiles {
		for _, root := range p.Roots {
			if _, seen := byPath[root]; !seen {
				order = append(order, root)
			}
			byPath[root] = append(byPath[root], p.Token)
		}
	}
	out := make([]ShareRoot, 0, len(order))
	for _, path := range order {
		out = append(out, ShareRoot{Path: path, Profiles: byPath[path]})
	}
	return out
}

func expand(c *Config) (*Config, error) {
	var err error
	if c.Database, err = homedir.Expand(c.Database); err != nil {
		return nil, err
	}
	if c.DataDir, err = homedir.Expand(c.DataDir); err != nil {
		return nil, err
	}
	if c.ShareCacheDir, err = homedir.Expand(c.ShareCacheDir); err != nil {
		return nil, err
	}
	if c.QueueDir, err = homedir.Expand(c.QueueDir); err != nil {
		return nil, err
	}
	if c.ClientCID == "" {
		c.ClientCID = uuid.NewV4().String()
	}
	return c, nil
}
