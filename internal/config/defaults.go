package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	edition            = "global"
	threads            = 14
	hpatchzPath        = "hpatchz"
	maxConnections     = 128
	logLevel           = "info"
	skipFreeSpaceCheck = false
	disableHashCache   = false
)

var (
	tempDir       = filepath.Join(os.TempDir(), appName)
	hashCachePath = filepath.Join(xdg.CacheHome, appName, "hashes.db")
)
