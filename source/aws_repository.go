package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AwsS3Repository reads a YAML document from an S3 object.
type AwsS3Repository struct {
	document
	Name          string     // Name of the configuration source
	BucketName    string     // Name of the S3 bucket
	ObjectName    string     // Key of the YAML document within the bucket
	Client        *s3.Client // Built from the default AWS config when nil
	clientOnce    sync.Once
	clientInitErr error
}

func (a *AwsS3Repository) GetName() string {
	return a.Name
}

func (a *AwsS3Repository) Refresh(ctx context.Context) error {
	if a.Client == nil {
		a.clientOnce.Do(func() {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				a.clientInitErr = fmt.Errorf("failed to load AWS config: %w", err)
				return
			}
			a.Client = s3.NewFromConfig(cfg)
		})
		if a.clientInitErr != nil {
			return a.clientInitErr
		}
	}

	result, err := a.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(a.ObjectName),
	})
	if err != nil {
		return fmt.Errorf("%s: get s3://%s/%s: %w", a.Name, a.BucketName, a.ObjectName, err)
	}
	defer result.Body.Close()

	fileContent, err := io.ReadAll(result.Body)
	if err != nil {
		return err
	}
	return a.swap(a.Name, fileContent)
}
