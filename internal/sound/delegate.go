package sound

import (
	"log"
	"path/filepath"
	"strings"
)

// FileDelegate is a default, filesystem-backed Delegate: it opens files
// under Root by extension, choosing the WAV or Vorbis decoder adapter.
// Hosts with other asset pipelines (archives, network fetch, custom
// formats) are expected to supply their own Delegate; FileDelegate exists
// so cmd/smsplay and the test suite have a working one out of the box, the
// same role the teacher's AudioMixer.loadSounds plays for fight-club.
type FileDelegate struct {
	Root string
}

// NewFileDelegate returns a delegate rooted at dir.
func NewFileDelegate(dir string) *FileDelegate {
	return &FileDelegate{Root: dir}
}

// Open resolves name against Root and dispatches on extension.
func (d *FileDelegate) Open(name string, rate int, layout Layout) (FormattedSoundStream, error) {
	path := name
	if d.Root != "" && !filepath.IsAbs(name) {
		path = filepath.Join(d.Root, name)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg":
		return OpenVorbisAtRate(path, rate)
	default:
		return OpenWAV(path)
	}
}

// Warn logs to the standard logger, in the teacher's terse style.
func (d *FileDelegate) Warn(message string) {
	log.Printf("⚠️ sound: %s", message)
}
