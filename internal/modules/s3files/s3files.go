// Package s3files uploads files and directory trees to S3 compatible
// storage. A content hash stored as object metadata makes uploads
// idempotent: unchanged files are never pushed again.
package s3files

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/artpar/stackdeploy/internal/core/config"
)

// =============================================================================
// Entity Config
// =============================================================================

// ServerConfig points at an S3 compatible endpoint. All fields render
// variable placeholders so credentials come from variables, not documents.
type ServerConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"required"`
	AccessKey string `yaml:"access_key" validate:"required"`
	SecretKey string `yaml:"secret_key" validate:"required"`
}

// Config is the YAML shape of an s3file entity. Source is a single file or
// a directory tree, relative paths resolve against the root document.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Bucket string       `yaml:"bucket" validate:"required"`
	Key    string       `yaml:"key" validate:"required"`
	Source string       `yaml:"source" validate:"required"`
}

// File is one object to upload.
type File struct {
	Key    string
	Path   string
	SHA256 string
}

// FileSet is the parsed deployment object: a bucket plus the files that
// belong under it, hashed at load time.
type FileSet struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Files     []File
}

// =============================================================================
// Module
// =============================================================================

// Module provides the s3file entity type.
type Module struct {
	manager *Manager
}

// New creates the s3files module. A nil factory uses the real S3 client.
func New(factory ClientFactory, logger *slog.Logger) *Module {
	if factory == nil {
		factory = NewClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{manager: &Manager{factory: factory, logger: logger}}
}

func (m *Module) Name() string            { return "s3files" }
func (m *Module) TypeName() string        { return "s3file" }
func (m *Module) ManagerKey() string      { return "s3" }
func (m *Module) Manager() config.Manager { return m.manager }

// Parse decodes an s3file entity, resolves the source on disk and hashes
// its content. For a directory the key becomes the object key prefix.
func (m *Module) Parse(name string, entity *config.Entity, files config.Helper) (any, error) {
	var cfg Config
	if err := config.DecodeConfig(name, entity, &cfg); err != nil {
		return nil, err
	}

	endpoint, err := files.Render(cfg.Server.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	accessKey, err := files.Render(cfg.Server.AccessKey, nil)
	if err != nil {
		return nil, err
	}
	secretKey, err := files.Render(cfg.Server.SecretKey, nil)
	if err != nil {
		return nil, err
	}
	bucket, err := files.Render(cfg.Bucket, nil)
	if err != nil {
		return nil, err
	}
	key, err := files.Render(cfg.Key, nil)
	if err != nil {
		return nil, err
	}
	key = strings.TrimPrefix(key, "/")
	source, err := files.Render(cfg.Source, nil)
	if err != nil {
		return nil, err
	}

	sourcePath := files.AbsPath(source)
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, config.NewError(nil, "could not read source %s for %s: %v", source, name, err)
	}

	var fileList []File
	if info.IsDir() {
		fileList, err = collectFiles(sourcePath, key)
		if err != nil {
			return nil, config.NewError(nil, "could not read source %s for %s: %v", source, name, err)
		}
		if len(fileList) == 0 {
			return nil, config.NewError(config.ErrInvalidConfig,
				"source directory %s for %s contains no files", source, name)
		}
	} else {
		sum, err := hashFile(sourcePath)
		if err != nil {
			return nil, config.NewError(nil, "could not read source %s for %s: %v", source, name, err)
		}
		fileList = []File{{Key: key, Path: sourcePath, SHA256: sum}}
	}

	return &FileSet{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
		Files:     fileList,
	}, nil
}

// collectFiles walks a directory tree and hashes every regular file. Keys
// use forward slashes regardless of the local separator.
func collectFiles(root, keyPrefix string) ([]File, error) {
	var out []File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		sum, err := hashFile(p)
		if err != nil {
			return err
		}
		out = append(out, File{
			Key:    path.Join(keyPrefix, filepath.ToSlash(rel)),
			Path:   p,
			SHA256: sum,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
