package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// multipartThreshold is the report size above which the archiver switches to
// multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// SettlementReport is the immutable record written to cold storage when a
// market settles: the final market snapshot plus every bet placed against it.
type SettlementReport struct {
	Market     domain.Market `json:"market"`
	Bets       []domain.Bet  `json:"bets"`
	ArchivedAt time.Time     `json:"archived_at"`
}

// Archiver implements domain.SettlementArchiver by serializing a settlement
// report and uploading it to S3. Archives are write-once: if the object for a
// market already exists the upload is skipped, which makes retried settlement
// flows idempotent.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	clock  domain.Clock
}

var _ domain.SettlementArchiver = (*Archiver)(nil)

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore, clock domain.Clock) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		clock:  clock,
	}
}

// ArchiveSettlement uploads the settlement report for a market and returns
// the object path. The archival event is recorded in the audit log.
func (a *Archiver) ArchiveSettlement(ctx context.Context, market domain.Market, bets []domain.Bet) (string, error) {
	path := settlementPath(market.CaseID)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement check %s: %w", market.CaseID, err)
	}
	if exists {
		return path, nil
	}

	report := SettlementReport{
		Market:     market,
		Bets:       bets,
		ArchivedAt: a.clock.Now(),
	}
	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement marshal %s: %w", market.CaseID, err)
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement upload %s: %w", market.CaseID, err)
	}

	if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
		"path":    path,
		"case_id": market.CaseID,
		"bets":    len(bets),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive settlement audit log: %w", err)
	}

	return path, nil
}

// settlementPath builds the S3 key for a market's settlement report.
//
//	settlements/case-2026-0042.json
func settlementPath(caseID string) string {
	return fmt.Sprintf("settlements/%s.json", caseID)
}
