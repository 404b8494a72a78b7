/*
Package config loads strata's process configuration from a YAML file: the
backend's storage path and substore prefixes, the retention policy, and
the ambient logging, metrics, and RPC listener settings.

Load follows a plain os.ReadFile-then-yaml.Unmarshal shape, decoding
straight into a config struct with `yaml` tags rather than an
intermediate generic map.
*/
package config
