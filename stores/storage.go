// Package stores picks the session and image store for the process.
package stores

import (
	"os"

	"github.com/sirupsen/logrus"

	"image-editor-server/core"
	"image-editor-server/stores/aws"
	"image-editor-server/stores/filesystem"
	"image-editor-server/stores/memory"
	"image-editor-server/stores/sqlite"
)

// Config names a backend and where it keeps its data. Type is one of
// "memory", "filesystem", "sqlite" or "s3"; anything else means memory.
type Config struct {
	Type           string
	BasePath       string
	DataSourceName string
	BucketName     string
}

// ConfigFromEnv reads STORAGE_TYPE, LOCAL_STORAGE_PATH, DATA_SOURCE_NAME and
// S3_BUCKET_NAME.
func ConfigFromEnv() Config {
	return Config{
		Type:           os.Getenv("STORAGE_TYPE"),
		BasePath:       os.Getenv("LOCAL_STORAGE_PATH"),
		DataSourceName: os.Getenv("DATA_SOURCE_NAME"),
		BucketName:     os.Getenv("S3_BUCKET_NAME"),
	}
}

func GetStore() core.Store {
	return New(ConfigFromEnv())
}

func New(cfg Config) core.Store {
	fields := logrus.Fields{"storage_type": cfg.Type}

	var store core.Store
	switch cfg.Type {
	case "filesystem":
		fields["base_path"] = cfg.BasePath
		store = filesystem.NewStore(cfg.BasePath)
	case "sqlite":
		fields["data_source_name"] = cfg.DataSourceName
		store = sqlite.NewStore(cfg.DataSourceName)
	case "s3":
		fields["bucket_name"] = cfg.BucketName
		store = aws.NewStore(cfg.BucketName)
	default:
		fields["storage_type"] = "in-memory"
		store = memory.NewStore()
	}
	logrus.WithFields(fields).Info("Use storage")
	return store
}
