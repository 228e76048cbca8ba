// Package config defines the configuration for a tandem node.
//
// Regardless of how tandem is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, tandem relies on a data directory, defined by Config.DataDir, where
// it expects to find a few additional files:
//
//  priv_key // a plain text file containing the raw private key (cf. tandem keygen).
//  authorities.json // the block authors, the finality voters, and optional extra peers.
//  tandem.toml // (optional) configuration values that override the defaults.
package config
