package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Mr-Dark-debug/regionplay/internal/compute"
	"github.com/Mr-Dark-debug/regionplay/internal/database"
)

// PendingStore is the journal side of a resend.
type PendingStore interface {
	GetPendingManage() ([]database.PendingWrite, error)
	CommitPendingManage(writeID int64) error
	BumpPendingManage(writeID int64) error
}

// Manager delivers manage_region calls.
type Manager interface {
	ManageRegion(ctx context.Context, req compute.ManageRequest) error
}

// ResendReport summarises a resend run.
type ResendReport struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Resend delivers journaled manage_region calls oldest first. Corrupt
// entries are skipped and left in place. Delivery stops early only when
// ctx is done.
func Resend(ctx context.Context, store PendingStore, remote Manager, log *slog.Logger) (ResendReport, error) {
	var rep ResendReport
	pending, err := store.GetPendingManage()
	if err != nil {
		return rep, fmt.Errorf("getting pending manage calls: %w", err)
	}
	if len(pending) == 0 {
		return rep, nil
	}
	log.Info("resend_start", "pending", len(pending))

	for _, pw := range pending {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		var req compute.ManageRequest
		if err := json.Unmarshal(pw.Payload, &req); err != nil || req.ID == "" {
			log.Warn("resend_skip_corrupt", "write_id", pw.WriteID, "err", err)
			rep.Skipped++
			continue
		}
		if err := remote.ManageRegion(ctx, req); err != nil {
			log.Warn("resend_failed", "write_id", pw.WriteID, "region", req.ID, "action", req.Action, "err", err)
			rep.Failed++
			if berr := store.BumpPendingManage(pw.WriteID); berr != nil {
				log.Error("resend_bump_failed", "write_id", pw.WriteID, "err", berr)
			}
			continue
		}
		if err := store.CommitPendingManage(pw.WriteID); err != nil {
			return rep, fmt.Errorf("committing pending manage call %d: %w", pw.WriteID, err)
		}
		rep.Sent++
	}
	return rep, nil
}
