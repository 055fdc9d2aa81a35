package truststore

import (
	"fmt"

	"github.com/tyemirov/certinstall/internal/certificates"
)

const windowsCertificateStoreName = "Root"

// buildWindowsInstallScript produces the deferred-action artifact for Windows:
// a batch script adding the certificate to the machine Root store, together
// with the instructions an operator needs to run it.
func buildWindowsInstallScript(descriptor certificates.CertificateDescriptor) DeferredScript {
	fileName := "install-" + descriptor.DerivedName + ".cmd"
	content := fmt.Sprintf("@echo off\r\n"+
		"rem Adds %s to the Windows machine trust store.\r\n"+
		"certutil -addstore -f %s \"%s\"\r\n",
		descriptor.DerivedName, windowsCertificateStoreName, descriptor.SourcePath)
	instructions := fmt.Sprintf("run %s from an elevated command prompt to trust %s", fileName, descriptor.DerivedName)
	return DeferredScript{FileName: fileName, Content: content, Instructions: instructions}
}

// buildWindowsUninstallScript produces the matching removal artifact.
func buildWindowsUninstallScript(descriptor certificates.CertificateDescriptor) DeferredScript {
	fileName := "uninstall-" + descriptor.DerivedName + ".cmd"
	content := fmt.Sprintf("@echo off\r\n"+
		"rem Removes %s from the Windows machine trust store.\r\n"+
		"certutil -delstore %s \"%s\"\r\n",
		descriptor.DerivedName, windowsCertificateStoreName, descriptor.DerivedName)
	instructions := fmt.Sprintf("run %s from an elevated command prompt to stop trusting %s", fileName, descriptor.DerivedName)
	return DeferredScript{FileName: fileName, Content: content, Instructions: instructions}
}
