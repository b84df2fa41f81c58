package core

import (
	"os"
	"path/filepath"
)

// HistoryFileName is the conversation file, resolved against the working
// directory unless configured otherwise.
const HistoryFileName = "ollama_chat_history.json"

type Paths struct {
	HomeDir    string
	DataDir    string
	LogFile    string
	ConfigFile string
}

var defaultPaths *Paths

func ensureDefaultPaths() {
	if defaultPaths == nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			// No home directory (e.g. a stripped container); keep the data
			// directory next to the working directory instead.
			homeDir = "."
		}

		defaultPaths = &Paths{
			HomeDir:    homeDir,
			DataDir:    filepath.Join(homeDir, ".llamacli"),
			LogFile:    filepath.Join(homeDir, ".llamacli", "llamacli.log"),
			ConfigFile: filepath.Join(homeDir, ".llamacli", "config.yaml"),
		}
	}
}

func DataDir() string {
	ensureDefaultPaths()
	return defaultPaths.DataDir
}

func LogFile() string {
	ensureDefaultPaths()
	return defaultPaths.LogFile
}

func ConfigFile() string {
	ensureDefaultPaths()
	return defaultPaths.ConfigFile
}

// EnsureDataDir creates the data directory if it does not exist yet.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0755)
}

// ResetPaths clears the cached paths, forcing them to be reinitialized.
// This is primarily used for testing purposes.
func ResetPaths() {
	defaultPaths = nil
}
