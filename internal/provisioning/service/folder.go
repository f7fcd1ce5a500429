package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datacharted/go-provisioning-backend/internal/accounts"
	"github.com/datacharted/go-provisioning-backend/internal/gcp"
	"github.com/datacharted/go-provisioning-backend/internal/provisioning/domain"
)

const folderLockTTL = 90 * time.Second

// FolderAllocator guarantees each account exactly one backing organization
// folder. Allocation is serialized per account with an advisory lock so two
// concurrent provisioning requests converge on the same folder.
type FolderAllocator struct {
	cloud    CloudClient
	accounts AccountStore
	locker   Locker
}

func NewFolderAllocator(cloud CloudClient, accountStore AccountStore, locker Locker) *FolderAllocator {
	return &FolderAllocator{
		cloud:    cloud,
		accounts: accountStore,
		locker:   locker,
	}
}

// EnsureFolder returns the account's folder reference, creating the folder on
// first use. A stale reference (the folder no longer resolves) is cleared and
// recreated; any other resolution failure propagates. On success the account
// argument carries the updated folder fields.
func (a *FolderAllocator) EnsureFolder(ctx context.Context, acct *accounts.Account, proposedName string) (string, error) {
	lg := NewLogger(ctx)

	// Fast path outside the lock is strictly read-only. A stale reference is
	// only cleared while holding the lock, otherwise a caller with an old
	// snapshot could wipe the reference another request just allocated.
	ref, _, err := a.resolve(ctx, acct)
	if err != nil {
		return "", err
	}
	if ref != "" {
		return ref, nil
	}

	var folderRef string
	err = a.locker.WithLock(ctx, "lock:folder:"+acct.ID, folderLockTTL, func(ctx context.Context) error {
		// Re-read under the lock: another request may have allocated the
		// folder while we were waiting.
		fresh, err := a.accounts.GetByID(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("reload account: %w", err)
		}
		ref, stale, err := a.resolve(ctx, fresh)
		if err != nil {
			return err
		}
		if ref != "" {
			*acct = *fresh
			folderRef = ref
			return nil
		}
		if stale {
			lg.LogWarnf("ensure_folder", "folder %s for account %s not found, recreating", fresh.FolderID, fresh.ID)
			if err := a.accounts.ClearFolder(ctx, fresh.ID); err != nil {
				return fmt.Errorf("clear stale folder reference: %w", err)
			}
			fresh.FolderID = ""
			fresh.FolderName = ""
		}

		displayName := folderDisplayName(fresh, proposedName)
		folder, err := a.cloud.CreateFolder(ctx, displayName)
		if err != nil {
			return fmt.Errorf("create folder for account %s: %w", fresh.ID, err)
		}
		if err := a.accounts.SetFolder(ctx, fresh.ID, folder.Name, folder.DisplayName); err != nil {
			return fmt.Errorf("save folder reference: %w", err)
		}

		lg.LogInfof("ensure_folder", "created folder %s for account %s", folder.Name, fresh.ID)
		acct.FolderID = folder.Name
		acct.FolderName = folder.DisplayName
		folderRef = folder.Name
		return nil
	})
	if err != nil {
		return "", err
	}
	return folderRef, nil
}

// resolve verifies a stored folder reference without side effects. It returns
// the reference when it still resolves, stale=true when the folder no longer
// exists, and ("", false) when the account has no reference at all.
func (a *FolderAllocator) resolve(ctx context.Context, acct *accounts.Account) (string, bool, error) {
	if acct.FolderID == "" {
		return "", false, nil
	}

	_, err := a.cloud.GetFolder(ctx, acct.FolderID)
	if err == nil {
		return acct.FolderID, false, nil
	}
	if errors.Is(err, gcp.ErrNotFound) {
		return "", true, nil
	}
	return "", false, fmt.Errorf("resolve folder %s: %w", acct.FolderID, err)
}

func folderDisplayName(acct *accounts.Account, proposedName string) string {
	if proposedName == "" {
		name := acct.DisplayName
		if name == "" {
			name = "user"
		}
		proposedName = name
	}
	prefix := domain.DomainPrefix(acct.ContactDomain())
	return domain.UniqueFolderName(prefix + "-" + proposedName)
}
