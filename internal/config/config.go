package config

import (
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"
)

type Config struct {
	Server  Server  `yaml:"server"`
	Store   Store   `yaml:"store"`
	Admin   Admin   `yaml:"admin"`
	Account Account `yaml:"account"`
}

type Server struct {
	ListenAddr     string `yaml:"listenAddr"`
	DatabaseDriver string `yaml:"databaseDriver"` // postgres, sqlite
	PostgresDsn    string `yaml:"postgresDsn"`
	SqlitePath     string `yaml:"sqlitePath"`
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	RedisDB        int    `yaml:"redisDB"`
	MemcachedAddr  string `yaml:"memcachedAddr"`
	EnableTrace    bool   `yaml:"enableTrace"`
	TraceEndpoint  string `yaml:"traceEndpoint"`
}

// Store names the tables backing the customer and metadata stores.
type Store struct {
	CustomerTable string `yaml:"customerTable"`
	MetaTable     string `yaml:"metaTable"`
}

type Admin struct {
	PerPage    int `yaml:"perPage"`
	MaxPerPage int `yaml:"maxPerPage"`
}

type Account struct {
	Endpoint       string        `yaml:"endpoint"`
	ServiceToken   string        `yaml:"serviceToken"` // sent on role changes
	GuestKeySecret string        `yaml:"guestKeySecret"`
	TokenCacheTTL  time.Duration `yaml:"tokenCacheTTL"`
}

const (
	DefaultCustomerTable = "customers"
	DefaultMetaTable     = "customermeta"
	DefaultPerPage       = 30
	DefaultMaxPerPage    = 100
)

// DefaultStore returns the default table names.
func DefaultStore() Store {
	return Store{
		CustomerTable: DefaultCustomerTable,
		MetaTable:     DefaultMetaTable,
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8000"
	}
	if c.Server.DatabaseDriver == "" {
		c.Server.DatabaseDriver = "postgres"
	}
	if c.Store.CustomerTable == "" {
		c.Store.CustomerTable = DefaultCustomerTable
	}
	if c.Store.MetaTable == "" {
		c.Store.MetaTable = DefaultMetaTable
	}
	if c.Admin.PerPage <= 0 {
		c.Admin.PerPage = DefaultPerPage
	}
	if c.Admin.MaxPerPage <= 0 {
		c.Admin.MaxPerPage = DefaultMaxPerPage
	}
	if c.Admin.PerPage > c.Admin.MaxPerPage {
		c.Admin.PerPage = c.Admin.MaxPerPage
	}
	if c.Account.TokenCacheTTL <= 0 {
		c.Account.TokenCacheTTL = 5 * time.Minute
	}
}

func (c Config) validate() error {
	switch c.Server.DatabaseDriver {
	case "postgres":
		if c.Server.PostgresDsn == "" {
			return errors.New("server.postgresDsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Server.SqlitePath == "" {
			return errors.New("server.sqlitePath is required for the sqlite driver")
		}
	default:
		return errors.Errorf("unsupported database driver %q", c.Server.DatabaseDriver)
	}
	if c.Store.CustomerTable == c.Store.MetaTable {
		return errors.New("store.customerTable and store.metaTable must differ")
	}
	return nil
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}

	config.applyDefaults()

	if err := config.validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}
