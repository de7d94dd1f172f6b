//go:build !nocache

package config

// defaultCacheEnabled is the compiled-in default for CacheConfig.Enabled.
// Building with the nocache tag (cache_disabled.go) flips this to false,
// the Go equivalent of the source's -DENABLE_CACHE compile switch.
const defaultCacheEnabled = true
