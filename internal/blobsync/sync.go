// Package blobsync performs a one-shot mirror of `.rip` blobs from an
// Azure Blob Storage container into the local playlist directory before
// startup. It is not a dynamic reload mechanism: Sync runs once, before
// internal/playlist.Load, and the engine never re-syncs or re-scans
// while serving.
package blobsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	ripserrors "github.com/alxayo/ripserver/internal/errors"
	"github.com/alxayo/ripserver/internal/logger"
)

// Sync mirrors every blob ending in ".rip" in containerURL's container
// into localDir. It authenticates with azidentity's default credential
// chain (environment, managed identity, Azure CLI, in that order) and
// waits for each download's rename-into-place before moving on to the
// next blob, so a partially written file is never visible to
// internal/playlist.Load.
func Sync(ctx context.Context, containerURL, localDir string) error {
	runID := uuid.NewString()
	log := logger.Logger().With("component", "blobsync", "run_id", runID)

	serviceURL, containerName, err := splitContainerURL(containerURL)
	if err != nil {
		return ripserrors.NewConfigError("blobsync.Sync: container URL", err)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return ripserrors.NewConfigError("blobsync.Sync: credential", err)
	}

	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return ripserrors.NewConfigError("blobsync.Sync: client", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ripserrors.NewConfigError("blobsync.Sync: fsnotify watcher", err)
	}
	defer watcher.Close()
	if err := watcher.Add(localDir); err != nil {
		return ripserrors.NewConfigError("blobsync.Sync: watch dir", err)
	}

	pager := client.NewListBlobsFlatPager(containerName, nil)
	count := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return ripserrors.NewConfigError("blobsync.Sync: list blobs", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil || !strings.HasSuffix(*item.Name, ".rip") {
				continue
			}
			if err := downloadOne(ctx, client, containerName, *item.Name, localDir, watcher, log); err != nil {
				return err
			}
			count++
		}
	}

	log.Info("blob sync complete", "container", containerName, "tracks_synced", count)
	return nil
}

func downloadOne(ctx context.Context, client *azblob.Client, containerName, blobName, localDir string, watcher *fsnotify.Watcher, log *slog.Logger) error {
	destPath := filepath.Join(localDir, filepath.Base(blobName))
	tmpPath := destPath + ".downloading"

	f, err := os.Create(tmpPath)
	if err != nil {
		return ripserrors.NewConfigError("blobsync.downloadOne: create", err)
	}

	if _, err := client.DownloadFile(ctx, containerName, blobName, f, nil); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return ripserrors.NewConfigError(fmt.Sprintf("blobsync.downloadOne(%s): download", blobName), err)
	}
	if err := f.Close(); err != nil {
		return ripserrors.NewConfigError(fmt.Sprintf("blobsync.downloadOne(%s): close", blobName), err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return ripserrors.NewConfigError(fmt.Sprintf("blobsync.downloadOne(%s): rename", blobName), err)
	}

	if err := waitForCreate(ctx, watcher, destPath); err != nil {
		return err
	}

	log.Info("blob downloaded", "blob", blobName, "dest", destPath)
	return nil
}

// waitForCreate blocks until fsnotify reports the rename-into-place at
// path, so the caller can be certain the file is fully visible under
// its final name before returning.
func waitForCreate(ctx context.Context, watcher *fsnotify.Watcher, path string) error {
	want := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ripserrors.NewConfigError("blobsync.waitForCreate", ctx.Err())
		case event, ok := <-watcher.Events:
			if !ok {
				return ripserrors.NewConfigError("blobsync.waitForCreate", fmt.Errorf("watcher closed"))
			}
			if event.Op&fsnotify.Create != 0 && filepath.Clean(event.Name) == want {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return ripserrors.NewConfigError("blobsync.waitForCreate", fmt.Errorf("watcher closed"))
			}
			return ripserrors.NewConfigError("blobsync.waitForCreate", err)
		}
	}
}

// splitContainerURL splits a full container URL
// (https://account.blob.core.windows.net/container) into the service
// root azblob.NewClient expects and the bare container name its flat
// pager and download calls take, since the operator supplies only the
// combined form on the command line.
func splitContainerURL(containerURL string) (serviceURL, containerName string, err error) {
	trimmed := strings.TrimSuffix(containerURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "", "", fmt.Errorf("cannot parse container name from %q", containerURL)
	}
	return trimmed[:idx], trimmed[idx+1:], nil
}
