// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest

import (
	"context"
	"slices"
	"time"

	"github.com/sigil-dev/ragd/internal/store"
	ragerr "github.com/sigil-dev/ragd/pkg/errors"
)

// Report summarizes one reconciliation pass.
type Report struct {
	// Pruned index entries had no committed chunk behind them.
	Pruned int `json:"pruned"`
	// Reembedded committed chunks were missing from the index.
	Reembedded int `json:"reembedded"`
	// RolledBack pending documents outlived the pending TTL.
	RolledBack int      `json:"rolled_back"`
	Documents  int      `json:"documents_checked"`
	Errors     []string `json:"errors,omitempty"`
}

func (r *Report) add(o Report) {
	r.Pruned += o.Pruned
	r.Reembedded += o.Reembedded
	r.RolledBack += o.RolledBack
	r.Documents += o.Documents
	r.Errors = append(r.Errors, o.Errors...)
}

// Reconcile brings the index back in line with the committed metadata:
// stale pending documents are rolled back, orphaned index entries pruned and
// missing vectors recomputed. Each document is repaired under its lock, so
// reconciliation never races an ingest of the same id.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	report := &Report{}

	pending, err := s.store.ListPending(ctx, s.now().Add(-s.cfg.PendingTTL))
	if err != nil {
		return nil, err
	}
	// Document id to whether all of its vectors must be recomputed.
	docs := map[string]bool{}
	for _, d := range pending {
		if err := s.rollbackStale(ctx, d.ID); err != nil {
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.RolledBack++
		docs[d.ID] = true
	}

	committed, err := s.store.CommittedChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	indexed, err := s.index.All(ctx)
	if err != nil {
		return nil, err
	}
	check := func(docID string) {
		if _, ok := docs[docID]; !ok {
			docs[docID] = false
		}
	}
	for _, id := range difference(indexed, committed) {
		check(store.DocumentIDOf(id))
	}
	for _, id := range difference(committed, indexed) {
		check(store.DocumentIDOf(id))
	}
	for _, id := range s.drainSuspects() {
		check(id)
	}

	for _, id := range sortedKeys(docs) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r, err := s.repair(ctx, id, docs[id])
		report.add(r)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if report.Pruned+report.Reembedded+report.RolledBack > 0 || len(report.Errors) > 0 {
		s.logger.Info("reconcile finished",
			"pruned", report.Pruned, "reembedded", report.Reembedded,
			"rolled_back", report.RolledBack, "errors", len(report.Errors))
	}
	return report, nil
}

func (s *Service) rollbackStale(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	s.logger.Warn("rolling back stale pending document", "document_id", id)
	return s.store.Rollback(ctx, id)
}

// repair makes the index entries of one document match its committed
// chunks. A pending version left by a crash may have overwritten vectors of
// the committed one; force re-embeds every committed chunk for that case.
func (s *Service) repair(ctx context.Context, id string, force bool) (Report, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	r := Report{Documents: 1}
	chunks, err := s.store.ListChunks(ctx, id)
	if err != nil && !ragerr.IsNotFound(err) {
		return r, err
	}
	indexed, err := s.index.ChunkIDs(ctx, id)
	if err != nil {
		return r, err
	}

	want := chunkIDs(chunks)
	if orphans := difference(indexed, want); len(orphans) > 0 {
		if err := s.index.Remove(ctx, orphans...); err != nil {
			return r, err
		}
		r.Pruned = len(orphans)
		s.logger.Info("pruned orphaned index entries", "document_id", id, "count", len(orphans))
	}

	missing := difference(want, indexed)
	var redo []store.Chunk
	for _, c := range chunks {
		if force || slices.Contains(missing, c.ID) {
			redo = append(redo, c)
		}
	}
	if len(redo) > 0 {
		if err := s.reindex(ctx, id, redo); err != nil {
			return r, ragerr.With(err, ragerr.FieldDocumentID(id), ragerr.FieldOperation("reconcile"))
		}
		r.Reembedded = len(redo)
		s.logger.Info("re-embedded missing chunks", "document_id", id, "count", len(redo))
	}
	return r, nil
}

// ReportInconsistent records chunk ids seen in the index without committed
// metadata (or vice versa). Their documents are repaired by the next
// Reconcile or by Run as soon as it wakes.
func (s *Service) ReportInconsistent(chunkIDs ...string) {
	if len(chunkIDs) == 0 {
		return
	}
	s.suspectMu.Lock()
	for _, id := range chunkIDs {
		s.suspect[store.DocumentIDOf(id)] = struct{}{}
	}
	s.suspectMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Busy reports whether documentID is being ingested, deleted or repaired.
// Its index entries may run ahead of committed metadata meanwhile.
func (s *Service) Busy(documentID string) bool {
	return s.locks.held(documentID)
}

func (s *Service) drainSuspects() []string {
	s.suspectMu.Lock()
	defer s.suspectMu.Unlock()
	ids := sortedKeys(s.suspect)
	clear(s.suspect)
	return ids
}

// RepairSuspects repairs only the documents reported inconsistent.
func (s *Service) RepairSuspects(ctx context.Context) *Report {
	report := &Report{}
	for _, id := range s.drainSuspects() {
		r, err := s.repair(ctx, id, false)
		report.add(r)
		if err != nil {
			s.logger.Warn("repair failed", "document_id", id, "error", err)
			report.Errors = append(report.Errors, err.Error())
		}
	}
	return report
}

// Run reconciles every interval and repairs reported documents as soon as
// they arrive, until ctx is done. A zero interval disables the periodic full
// pass.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reconcile failed", "error", err)
			}
		case <-s.wake:
			s.RepairSuspects(ctx)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
