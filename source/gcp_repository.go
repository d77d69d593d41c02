package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
)

// GcpStorageRepository reads a YAML document from a GCS object.
type GcpStorageRepository struct {
	document
	Name          string          // Name of the configuration source
	BucketName    string          // Name of the GCS bucket
	ObjectName    string          // Name of the YAML document within the bucket
	Client        *storage.Client // Built from default credentials when nil
	clientOnce    sync.Once
	clientInitErr error
}

func (g *GcpStorageRepository) GetName() string {
	return g.Name
}

func (g *GcpStorageRepository) Refresh(ctx context.Context) error {
	if g.Client == nil {
		g.clientOnce.Do(func() {
			g.Client, g.clientInitErr = storage.NewClient(ctx)
		})
		if g.clientInitErr != nil {
			return g.clientInitErr
		}
	}

	reader, err := g.Client.Bucket(g.BucketName).Object(g.ObjectName).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("%s: open gs://%s/%s: %w", g.Name, g.BucketName, g.ObjectName, err)
	}
	defer reader.Close()

	fileContent, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	return g.swap(g.Name, fileContent)
}
