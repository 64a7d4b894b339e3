// Package config provides the authguard configuration model.
//
// Configuration is read from YAML with ${VAR} and ${VAR:-default}
// environment substitution. Missing fields keep the values returned by
// Default, and Validate reports every problem at once.
//
//	cfg, err := config.Load("authguard.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Watcher reports debounced writes to a single file and is used to hot
// reload file-backed principal stores.
package config
