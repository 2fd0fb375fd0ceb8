/*
Package gconf implements a configuration store intended to be used as a global,
in-database configuration.

Each extension keeps its configuration in the store under its own package
name. Configuration is loaded from the "conf" section of the configuration
file with InitConfig, validated before it is saved and read back by the
extension with Load.

Not being able to get a configuration value is a critical condition for the
application and there is no recovery path. Application must be terminated and
configured correctly.
*/
package gconf
