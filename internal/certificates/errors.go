package certificates

import "fmt"

// InvalidInputError reports a missing or unusable certificate or private key file.
type InvalidInputError struct {
	Path   string
	Reason string
}

func (invalidInput *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", invalidInput.Path, invalidInput.Reason)
}

// UnsupportedPlatformError reports a host whose trust store cannot be resolved.
type UnsupportedPlatformError struct {
	Platform string
	Detail   string
}

func (unsupportedPlatform *UnsupportedPlatformError) Error() string {
	if unsupportedPlatform.Detail == "" {
		return fmt.Sprintf("unsupported platform %s", unsupportedPlatform.Platform)
	}
	return fmt.Sprintf("unsupported platform %s: %s", unsupportedPlatform.Platform, unsupportedPlatform.Detail)
}

// StoreWriteError reports a failed filesystem mutation in a trust store directory.
type StoreWriteError struct {
	Path string
	Err  error
}

func (storeWrite *StoreWriteError) Error() string {
	return fmt.Sprintf("write trust store path %s: %v", storeWrite.Path, storeWrite.Err)
}

func (storeWrite *StoreWriteError) Unwrap() error {
	return storeWrite.Err
}

// StoreRefreshError reports a trust-refresh command that exited unsuccessfully.
type StoreRefreshError struct {
	Command string
	Err     error
}

func (storeRefresh *StoreRefreshError) Error() string {
	return fmt.Sprintf("refresh trust store with %s: %v", storeRefresh.Command, storeRefresh.Err)
}

func (storeRefresh *StoreRefreshError) Unwrap() error {
	return storeRefresh.Err
}

// ToolUnavailableError reports an absent external tool such as the NSS certutil binary.
type ToolUnavailableError struct {
	Tool string
}

func (toolUnavailable *ToolUnavailableError) Error() string {
	return fmt.Sprintf("required tool %s is not available", toolUnavailable.Tool)
}
