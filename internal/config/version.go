package config

// Version is the auditseal binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/auditseal/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
