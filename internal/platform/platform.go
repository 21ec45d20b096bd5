// Package platform detects host quirks that affect file watching.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is the detected host.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform, cached after the first call.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detectPlatform(runtime.GOOS, os.Getenv("WSL_DISTRO_NAME"), readFile("/proc/version"), fileExists("/run/WSL"))
	})
	return detected
}

func detectPlatform(goos, wslDistro, procVersion string, runWSL bool) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
	default:
		return PlatformUnknown
	}
	if wslDistro == "" && !strings.Contains(strings.ToLower(procVersion), "microsoft") {
		return PlatformLinux
	}
	// WSL2 kernels report "microsoft-standard"; WSL1 reports "Microsoft".
	if strings.Contains(procVersion, "microsoft-standard") || runWSL {
		return PlatformWSL2
	}
	return PlatformWSL1
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// CheckWatchSupport returns a warning when change notifications for path
// are likely to be missed, or "" when watching should work.
func CheckWatchSupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	if Detect() == PlatformWSL1 {
		return "WSL1 delivers file events unreliably; re-run 'projdeck external' if the list looks stale"
	}
	return watchWarning(mountFSType(readFile("/proc/mounts"), abs))
}

// mountFSType finds the filesystem type of the longest mount point
// containing path in /proc/mounts content.
func mountFSType(mounts, path string) string {
	var matched, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mp := fields[1]
		if path != mp && mp != "/" && !strings.HasPrefix(path, mp+"/") {
			continue
		}
		if len(mp) > len(matched) {
			matched, fsType = mp, fields[2]
		}
	}
	return fsType
}

func watchWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "home is on a 9p mount (Windows filesystem under WSL2): file events are not delivered"
	case fsType == "nfs" || fsType == "nfs4":
		return "home is on an NFS mount: file events may be missed"
	case fsType == "cifs" || fsType == "smbfs":
		return "home is on a CIFS/SMB mount: file events may be missed"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "home is on an SSHFS mount: file events are not delivered"
	}
	return ""
}

func readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
