// Package config loads, normalizes, and validates fable configuration data.
//
// Files are read as YAML (.yaml, .yml) or TOML (.toml). YAML keeps the
// original layout where accessories form an ordered mapping of name to
// description; TOML expresses the same list as [[accessories]] tables. Both
// decode into the same Config, which then receives repository defaults,
// environment fallbacks such as OLLAMA_HOST, and path expansion.
//
// Always obtain settings through this package so downstream code receives
// normalized extensions, absolute paths, and clear validation errors.
package config
