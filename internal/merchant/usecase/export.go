package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cashkite/cashkite/internal/merchant/entity"
	"github.com/cashkite/cashkite/internal/pkg/goerror"
	"github.com/cashkite/cashkite/internal/pkg/storage"
	"github.com/cashkite/cashkite/internal/shared/constant"
	"github.com/samber/lo"
)

const applicationExportPageSize int32 = 1_000

type (
	ExportInput struct {
		Statuses []string
		DateFrom time.Time
		DateTo   time.Time
	}

	ExportOutput struct {
		ObjectKey   string
		DownloadURL string
		Count       int
	}
)

func (s *Usecase) Export(ctx context.Context, in ExportInput) (*ExportOutput, error) {
	ctx, span := s.startSpan(ctx, "Export")
	defer span.End()

	clm, err := s.authenticatedAndAuthorized(ctx, constant.PermMerchantApplications, constant.PermActCreate)
	if err != nil {
		return nil, err
	}

	filterData := entity.ApplicationListFilterData{
		Statuses: entity.ToInt16Slice(entity.ParseSafeApplicationStatuses(in.Statuses)),
		DateFrom: in.DateFrom,
		DateTo:   in.DateTo,
		Size:     applicationExportPageSize,
		Page:     0,
	}
	if len(filterData.Statuses) > 0 {
		filterData.IsFilterByStatus = true
	}

	var (
		apps  []entity.Application
		page  int32 = 1
		total int64
	)

	for {
		filterData.Page = (page - 1) * applicationExportPageSize

		pageApps, count, err := s.repoDB.GetApplicationList(ctx, filterData)
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo export applications", "error", err)
			return nil, goerror.NewServer(err)
		}

		if page == 1 {
			total = count
			if total == 0 {
				break
			}
			apps = make([]entity.Application, 0, min(total, int64(applicationExportPageSize)))
		}

		apps = append(apps, pageApps...)

		if int64(len(apps)) >= total || len(pageApps) == 0 {
			break
		}

		page++
	}

	body, err := renderApplicationsCSV(apps)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render applications csv", "error", err)
		return nil, goerror.NewServer(err)
	}

	bucket := s.cfg.GetString("modules.merchant.export_bucket")
	key := fmt.Sprintf("exports/applications/%s-%s.csv", s.clock.Now().Format("20060102-150405"), s.uuid.Generate())

	if _, err := s.storage.PutObject(ctx, bucket, key, bytes.NewReader(body), storage.PutOptions{
		Size:        int64(len(body)),
		ContentType: "text/csv",
		Metadata:    map[string]string{"exported_by": strconv.FormatInt(clm.UserID, 10)},
	}); err != nil {
		slog.ErrorContext(ctx, "failed to upload applications export", "bucket", bucket, "key", key, "error", err)
		return nil, goerror.NewServer(err)
	}

	expiry := s.cfg.GetMinute("modules.merchant.export_url_ttl_minutes")
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	url, err := s.storage.PresignGet(ctx, bucket, key, expiry)
	if err != nil {
		slog.ErrorContext(ctx, "failed to presign applications export", "bucket", bucket, "key", key, "error", err)
		return nil, goerror.NewServer(err)
	}

	return &ExportOutput{
		ObjectKey:   key,
		DownloadURL: url,
		Count:       len(apps),
	}, nil
}

func renderApplicationsCSV(apps []entity.Application) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{
		"id", "business_name", "email", "phone", "category", "city",
		"status", "email_verified_at", "decided_at", "review_note", "created_at",
	}); err != nil {
		return nil, err
	}

	records := lo.Map(apps, func(app entity.Application, _ int) []string {
		return []string{
			strconv.FormatInt(app.ID, 10),
			app.BusinessName,
			app.Email,
			app.Phone,
			app.Category,
			app.City,
			app.Status.String(),
			formatCSVTime(app.EmailVerifiedAt),
			formatCSVTime(app.DecidedAt),
			app.ReviewNote,
			app.CreatedAt.UTC().Format(time.RFC3339),
		}
	})
	// WriteAll flushes before returning.
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func formatCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
