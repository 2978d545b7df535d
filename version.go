package prolink

import (
	"log"

	goversion "github.com/hashicorp/go-version"
)

// extendedMetadataMinVersion is the firmware version at and after which a
// device is assumed to answer title_and_X composite metadata queries
// (replacing version_checker.go's ad-hoc string comparison with a real
// semver-shaped comparator).
var extendedMetadataMinVersion = goversion.Must(goversion.NewVersion("5.0.0"))

// SupportsExtendedMetadata reports whether a device's firmware string meets
// extendedMetadataMinVersion. An unparsable firmware string is treated as
// unsupported and logged rather than rejected outright, since §4.2 never
// makes firmware gating load-bearing for the base protocol.
func SupportsExtendedMetadata(firmware string) bool {
	v, err := goversion.NewVersion(firmware)
	if err != nil {
		log.Printf("prolink: firmware version %q not parseable, assuming no extended metadata support", firmware)
		return false
	}
	return v.GreaterThanOrEqual(extendedMetadataMinVersion)
}
