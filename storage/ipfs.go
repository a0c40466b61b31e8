package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/certificate-registry/interfaces"
)

// IPFSBackend implements a storage backend on the mutable file system (MFS)
// of an IPFS node. Each key is one MFS file below the configured root, so the
// state can be pinned or published by snapshotting the root directory.
type IPFSBackend struct {
	*stagedScopes

	shell       *shell.Shell
	host        string
	port        string
	root        string
	timeout     time.Duration
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the node API
// at host:port, storing keys below the MFS directory root.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	apiURL := fmt.Sprintf("%s:%s", host, port)

	root = "/" + strings.Trim(root, "/")
	if root == "/" {
		root = "/certificate-registry"
	}

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	b := &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		timeout:     timeout,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, root, timeout),
	}
	b.stagedScopes = newStagedScopes(b, log)
	return b, nil
}

// Get reads the MFS file backing key.
// Returns ErrKeyNotFound if the file doesn't exist or ErrBackendUnavailable
// if the IPFS node is not accessible.
func (b *IPFSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	filePath := b.getMFSPath(key)

	reader, err := b.shell.FilesRead(ctx, filePath)
	if err != nil {
		if isIPFSNotFound(err) {
			b.log.Debug("Key not found in IPFS",
				slog.String("path", filePath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrKeyNotFound
		}

		b.log.Error("Failed to read data from IPFS",
			slog.String("path", filePath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: failed to read from IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from IPFS: %w", err)
	}

	b.log.Debug("Fetched key from IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Set replaces the MFS file backing key, creating parent directories as needed.
func (b *IPFSBackend) Set(ctx context.Context, key string, value []byte) error {
	filePath := b.getMFSPath(key)

	err := b.shell.FilesWrite(ctx, filePath, bytes.NewReader(value),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to write to IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored key in IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(value)))

	return nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

// Close is a no-op for the IPFS backend.
func (b *IPFSBackend) Close() error {
	return nil
}

// getMFSPath maps key onto an MFS path below the root directory.
func (b *IPFSBackend) getMFSPath(key string) string {
	return path.Join(b.root, key)
}

func isIPFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found")
}
