package truststore

const (
	debianAnchorDirectory = "/usr/local/share/ca-certificates"
	redhatAnchorDirectory = "/etc/pki/ca-trust/source/anchors"
)

// TrustStoreTarget describes where a variant stores anchor files and how the
// consolidated trust bundle is rebuilt afterwards.
type TrustStoreTarget struct {
	Variant         PlatformVariant
	AnchorDirectory string
	FileExtension   string
	RefreshCommand  []string
}

// openSSLDirectoryCandidates pairs generic-Linux anchor directories with the
// refresh command that rebuilds the bundle for that layout. Probed in order;
// the first existing directory wins.
var openSSLDirectoryCandidates = []TrustStoreTarget{
	{Variant: PlatformLinuxOther, AnchorDirectory: "/usr/share/pki/trust/anchors", FileExtension: ".pem", RefreshCommand: []string{"update-ca-certificates"}},
	{Variant: PlatformLinuxOther, AnchorDirectory: "/etc/ca-certificates/trust-source/anchors", FileExtension: ".pem", RefreshCommand: []string{"trust", "extract-compat"}},
	{Variant: PlatformLinuxOther, AnchorDirectory: "/etc/ssl/certs", FileExtension: ".pem", RefreshCommand: []string{"trust", "extract-compat"}},
}

// targetForVariant returns the static target mapping for copy-and-refresh
// variants. Fedora shares the redhat target; it is a distinct variant only so
// reports can name the distribution the operator actually has. Variants with
// no flat anchor directory (macos, windows, linux-other) return false.
func targetForVariant(variant PlatformVariant) (TrustStoreTarget, bool) {
	switch variant {
	case PlatformDebian:
		return TrustStoreTarget{
			Variant:         variant,
			AnchorDirectory: debianAnchorDirectory,
			FileExtension:   ".crt",
			RefreshCommand:  []string{"update-ca-certificates"},
		}, true
	case PlatformRedHat, PlatformFedora:
		return TrustStoreTarget{
			Variant:         variant,
			AnchorDirectory: redhatAnchorDirectory,
			FileExtension:   ".pem",
			RefreshCommand:  []string{"update-ca-trust", "extract"},
		}, true
	default:
		return TrustStoreTarget{}, false
	}
}
