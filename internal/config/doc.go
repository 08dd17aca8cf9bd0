// Package config loads engine settings with viper.
//
// Values are merged in this order, later sources winning: built-in
// defaults, the YAML config file (~/.spot/config.yaml or an explicit
// path), and SPOT_ prefixed environment variables where dots become
// underscores (search.top_k is SPOT_SEARCH_TOP_K). A .env file in the
// working directory is loaded into the environment first.
package config
