package truststore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tyemirov/certinstall/internal/certificates"
)

type executedCommand struct {
	executable string
	arguments  []string
	privileged bool
}

type recordingCommandRunner struct {
	executed           []executedCommand
	scriptedErrors     []error
	missingExecutables map[string]bool
}

func newRecordingCommandRunner(scriptedErrors ...error) *recordingCommandRunner {
	return &recordingCommandRunner{executed: []executedCommand{}, scriptedErrors: scriptedErrors}
}

func (runner *recordingCommandRunner) record(executable string, arguments []string, privileged bool) error {
	runner.executed = append(runner.executed, executedCommand{
		executable: executable,
		arguments:  append([]string{}, arguments...),
		privileged: privileged,
	})
	if len(runner.scriptedErrors) == 0 {
		return nil
	}
	nextError := runner.scriptedErrors[0]
	runner.scriptedErrors = runner.scriptedErrors[1:]
	return nextError
}

func (runner *recordingCommandRunner) Run(ctx context.Context, executable string, arguments []string) error {
	return runner.record(executable, arguments, false)
}

func (runner *recordingCommandRunner) RunWithPrivileges(ctx context.Context, executable string, arguments []string) error {
	return runner.record(executable, arguments, true)
}

func (runner *recordingCommandRunner) LookPath(executable string) (string, error) {
	if runner.missingExecutables[executable] {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + executable, nil
}

// fakeFileSystem answers existence checks from a fixed set of paths so tests
// never observe the real host's marker files.
type fakeFileSystem struct {
	certificates.FileSystem
	existingPaths map[string]bool
}

func newFakeFileSystem(existingPaths ...string) *fakeFileSystem {
	pathSet := make(map[string]bool, len(existingPaths))
	for _, path := range existingPaths {
		pathSet[path] = true
	}
	return &fakeFileSystem{FileSystem: certificates.NewOperatingSystemFileSystem(), existingPaths: pathSet}
}

func (fake *fakeFileSystem) FileExists(path string) (bool, error) {
	return fake.existingPaths[path], nil
}

func mustWriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func generateCertificatePEM(t *testing.T, commonName string) []byte {
	t.Helper()
	privateKey, keyErr := rsa.GenerateKey(rand.Reader, 2048)
	if keyErr != nil {
		t.Fatalf("generate private key: %v", keyErr)
	}
	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	certificateDer, certificateErr := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if certificateErr != nil {
		t.Fatalf("create certificate: %v", certificateErr)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certificateDer})
}

func writeCertificateFixture(t *testing.T, directory string, fileName string, commonName string) certificates.CertificateDescriptor {
	t.Helper()
	certificatePath := filepath.Join(directory, fileName)
	mustWriteFile(t, certificatePath, generateCertificatePEM(t, commonName))
	descriptor, descriptorErr := certificates.NewCertificateDescriptor(certificates.NewOperatingSystemFileSystem(), certificatePath, "")
	if descriptorErr != nil {
		t.Fatalf("build descriptor: %v", descriptorErr)
	}
	return descriptor
}

func assertFileMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected %s to be absent, got err=%v", path, err)
	}
}
