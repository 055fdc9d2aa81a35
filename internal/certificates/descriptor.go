package certificates

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"path/filepath"
	"strings"
)

const certificatePemBlockType = "CERTIFICATE"

// CertificateDescriptor wraps a certificate file path and the canonical name
// under which the certificate is installed everywhere within one run.
type CertificateDescriptor struct {
	SourcePath  string
	DerivedName string
	Certificate *x509.Certificate
}

// NewCertificateDescriptor constructs a descriptor from an existing certificate
// file. The derived name comes from the certificate subject Common Name, or the
// file base name when no Common Name can be extracted. An optional private key
// path is validated to exist but is otherwise not consumed.
func NewCertificateDescriptor(fileSystem FileSystem, certificatePath string, privateKeyPath string) (CertificateDescriptor, error) {
	content, readErr := fileSystem.ReadFile(certificatePath)
	if readErr != nil {
		return CertificateDescriptor{}, &InvalidInputError{Path: certificatePath, Reason: "certificate file is missing or unreadable"}
	}
	if privateKeyPath != "" {
		keyExists, keyErr := fileSystem.FileExists(privateKeyPath)
		if keyErr != nil || !keyExists {
			return CertificateDescriptor{}, &InvalidInputError{Path: privateKeyPath, Reason: "private key file is missing or unreadable"}
		}
	}

	certificate, parseErr := parseCertificateFromPEM(content)
	derivedName := ""
	if parseErr == nil {
		derivedName = commonNameFromCertificate(certificate)
	}
	if derivedName == "" {
		derivedName = baseNameWithoutExtension(certificatePath)
	}
	derivedName = sanitizeDerivedName(derivedName)
	if derivedName == "" {
		return CertificateDescriptor{}, &InvalidInputError{Path: certificatePath, Reason: "no usable name could be derived from the certificate or file name"}
	}

	return CertificateDescriptor{
		SourcePath:  certificatePath,
		DerivedName: derivedName,
		Certificate: certificate,
	}, nil
}

func parseCertificateFromPEM(content []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(content)
	if block == nil || block.Type != certificatePemBlockType {
		return nil, errors.New("no certificate PEM block found")
	}
	return x509.ParseCertificate(block.Bytes)
}

// commonNameFromCertificate extracts the subject Common Name, trimming
// whitespace and truncating anything after a comma so trailing distinguished
// name attributes never leak into the installed file name.
func commonNameFromCertificate(certificate *x509.Certificate) string {
	commonName := certificate.Subject.CommonName
	if commaIndex := strings.Index(commonName, ","); commaIndex >= 0 {
		commonName = commonName[:commaIndex]
	}
	return strings.TrimSpace(commonName)
}

func baseNameWithoutExtension(path string) string {
	baseName := filepath.Base(path)
	extension := filepath.Ext(baseName)
	return strings.TrimSuffix(baseName, extension)
}

// sanitizeDerivedName replaces characters that are unsafe in file names. The
// name can originate from attacker-influenced certificate content, so path
// separators and control characters must never survive.
func sanitizeDerivedName(name string) string {
	var builder strings.Builder
	for _, character := range name {
		switch {
		case character == '/' || character == '\\' || character == ':' || character == 0:
			builder.WriteRune('-')
		case character < 0x20 || character == 0x7f:
			builder.WriteRune('-')
		default:
			builder.WriteRune(character)
		}
	}
	sanitized := strings.TrimSpace(builder.String())
	sanitized = strings.Trim(sanitized, ".")
	return sanitized
}
