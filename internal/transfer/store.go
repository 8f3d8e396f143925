package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meetcreator/roomdrop/internal/utils"
)

// SaveArtifact writes art into dir under a free variant of its name and
// returns the path written. Directory components in the sender-supplied
// name are ignored.
func SaveArtifact(dir string, art Artifact) (string, error) {
	name := safeName(art.Name)

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", NewFileError("create directory", dir, err)
		}
	}

	path := utils.GetUniqueFilename(filepath.Join(dir, name))
	if err := os.WriteFile(path, art.Data, 0o644); err != nil {
		return "", NewFileError("write", name, err)
	}
	return path, nil
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return fmt.Sprintf("received-%d", time.Now().UnixMilli())
	}
	return name
}
