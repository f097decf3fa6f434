//go:build windows

package bitlocker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const execTimeout = 5 * time.Minute

func runTool(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

func systemToolPath(tool string) string {
	systemRoot := os.Getenv("SystemRoot")
	if systemRoot == "" {
		systemRoot = `C:\Windows`
	}
	return filepath.Join(systemRoot, "System32", tool)
}

// EnableProtectionSkipHardwareTest turns protection on without the hardware
// test reboot cycle. Used as the fallback when resuming protection over WMI
// fails on a volume that was encrypted out-of-band.
func EnableProtectionSkipHardwareTest(driveLetter string) error {
	_, err := runTool(systemToolPath("manage-bde.exe"), "-on", driveLetter, "-skiphardwaretest")
	if err != nil {
		return fmt.Errorf("enabling protection with hardware test skipped: %w", err)
	}
	return nil
}

// ProvisionSystemPartition creates the reserved system partition that the
// encryption subsystem boots from. The tool is idempotent: it exits zero when
// the target is already prepared. The defragmentation service must be running
// for the shrink operation to succeed.
func ProvisionSystemPartition() error {
	_, err := runTool(systemToolPath("BdeHdCfg.exe"), "-target", "default", "-quiet")
	if err != nil {
		return fmt.Errorf("provisioning system partition: %w", err)
	}
	return nil
}

// BackupProtectorToAAD escrows the protector's recovery information in the
// cloud directory the device is joined to. There is no WMI method for this,
// so it goes through the BitLocker PowerShell module.
func BackupProtectorToAAD(driveLetter, protectorID string) error {
	script := fmt.Sprintf("BackupToAAD-BitLockerKeyProtector -MountPoint '%s' -KeyProtectorId '%s'", driveLetter, protectorID)
	_, err := runTool(systemToolPath(filepath.Join("WindowsPowerShell", "v1.0", "powershell.exe")),
		"-NoProfile", "-NonInteractive", "-Command", script)
	if err != nil {
		return fmt.Errorf("backing up protector to cloud directory: %w", err)
	}
	return nil
}
