package common

// PackageName is used as the metrics namespace.
const PackageName = "sensor_anchoring_gateway"

// Version is set at build time via -ldflags.
var Version = "dev"
