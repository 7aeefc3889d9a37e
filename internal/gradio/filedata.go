package gradio

import (
	"path/filepath"
	"strings"
)

const fileDataType = "gradio.FileData"

// FileMeta tags a FileData object for the server.
type FileMeta struct {
	Type string `json:"_type"`
}

// FileData references a file argument. Local paths are uploaded by Call and
// replaced with the server-side path before the predict request is sent.
type FileData struct {
	Path     string   `json:"path"`
	OrigName string   `json:"orig_name,omitempty"`
	Meta     FileMeta `json:"meta"`
}

// LocalFile returns a FileData for a file on the local filesystem.
func LocalFile(path string) FileData {
	return FileData{
		Path:     path,
		OrigName: filepath.Base(path),
		Meta:     FileMeta{Type: fileDataType},
	}
}

// IsRemote reports whether the path is already an http(s) URL.
func (f FileData) IsRemote() bool {
	return strings.HasPrefix(f.Path, "http://") || strings.HasPrefix(f.Path, "https://")
}
