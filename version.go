package lattice

// Version is the release of the module. Release builds override it with
// -ldflags "-X github.com/aretw0/lattice.Version=...".
var Version = "0.1.0"
