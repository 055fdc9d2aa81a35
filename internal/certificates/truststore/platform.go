package truststore

import (
	"github.com/tyemirov/certinstall/internal/certificates"
)

// PlatformVariant identifies the trust store implementation of the host.
type PlatformVariant int

const (
	PlatformUnknown PlatformVariant = iota
	PlatformDebian
	PlatformRedHat
	PlatformFedora
	PlatformMacOS
	PlatformWindows
	PlatformLinuxOther
)

// String returns the lowercase name of the variant.
func (variant PlatformVariant) String() string {
	switch variant {
	case PlatformDebian:
		return "debian"
	case PlatformRedHat:
		return "redhat"
	case PlatformFedora:
		return "fedora"
	case PlatformMacOS:
		return "macos"
	case PlatformWindows:
		return "windows"
	case PlatformLinuxOther:
		return "linux-other"
	default:
		return "unknown"
	}
}

type distroMarker struct {
	markerPath string
	variant    PlatformVariant
}

// linuxDistroMarkers are checked in a fixed priority order: debian before
// redhat before fedora. A host exposing several marker files resolves to the
// first match; the ordering is a deliberate tie-break kept stable across
// releases, not a reflection of the host's package manager.
var linuxDistroMarkers = []distroMarker{
	{markerPath: "/etc/debian_version", variant: PlatformDebian},
	{markerPath: "/etc/redhat-release", variant: PlatformRedHat},
	{markerPath: "/etc/fedora-release", variant: PlatformFedora},
}

// ResolvePlatform derives the platform variant from the operating system name
// and, on Linux, from distribution marker files. It never fails; hosts that
// match nothing resolve to PlatformUnknown.
func ResolvePlatform(fileSystem certificates.FileSystem, operatingSystem string) PlatformVariant {
	switch operatingSystem {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		for _, marker := range linuxDistroMarkers {
			exists, existsErr := fileSystem.FileExists(marker.markerPath)
			if existsErr == nil && exists {
				return marker.variant
			}
		}
		return PlatformLinuxOther
	default:
		return PlatformUnknown
	}
}
