package source

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

// FileRepository serves a YAML document from the local filesystem.
type FileRepository struct {
	document
	Name string // Name of the configuration source
	Path string // File path of the YAML document
}

func (f *FileRepository) GetName() string {
	return f.Name
}

// Refresh re-reads the file. ctx is checked before the read.
func (f *FileRepository) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		logrus.WithField("path", f.Path).Debug("error reading file")
		return err
	}
	return f.swap(f.Name, data)
}
