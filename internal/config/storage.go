package config

import (
	"github.com/spf13/viper"
)

type Storage struct {
	// Path is the pebble data directory. Empty selects the in-memory store.
	Path string
}

const (
	Cfg_storage_path = "storage.path"
)

var (
	storageDefaults = map[string]interface{}{
		Cfg_storage_path: "",
	}
)

func init() {
	for k, v := range storageDefaults {
		viper.SetDefault(k, v)
	}
}

func buildStorageConfig() *Storage {
	return &Storage{
		Path: viper.GetString(Cfg_storage_path),
	}
}
