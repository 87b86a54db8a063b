// Package config loads the avaguard configuration file.
//
// The file is YAML. ${VAR} and ${VAR:-default} are substituted from the
// environment before parsing, and "$$" escapes a literal dollar sign. Values
// omitted from the file keep their defaults. Values of the form
// vault:<mount>/<path>#<field> are resolved by ResolveSecrets after loading.
package config
