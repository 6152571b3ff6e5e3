package handlers

import (
	"context"

	"github.com/aspiranek/sim/internal/database/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// deleteFile removes an internal file: the row inside the transaction, the
// backing bytes only after the commit. A crash between the two leaves an
// orphaned blob a sweeper can reclaim; the reverse order could leave a
// committed row pointing at nothing, so it is never used.
type deleteFile struct {
	*jobHandler
}

func (h *deleteFile) run(ctx context.Context, tx *gorm.DB) error {
	if h.job.FileID == nil {
		h.fail("Job has no file attached")
		return h.finalize(tx)
	}
	fileID := *h.job.FileID

	if err := tx.Delete(&models.InternalFile{}, "id = ?", fileID).Error; err != nil {
		return err
	}
	h.logf("Deleted internal file %d", fileID)

	h.afterCommit(func() {
		if err := h.env.Files.Remove(fileID); err != nil {
			zap.S().Errorf("failed to remove bytes of internal file %d: %v", fileID, err)
		}
	})

	return h.finalize(tx)
}
