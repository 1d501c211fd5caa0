package resultsheet

import (
	"database/sql"
	"time"

	"github.com/Ramsey-B/tally/pkg/database"
	"github.com/Ramsey-B/tally/pkg/models"
)

const resultSheetTable = "result_sheets"

var resultSheetStruct = database.NewStruct(new(ResultSheetRow))

type ResultSheetRow struct {
	ID                    string         `db:"id"`
	ElectionID            string         `db:"election_id"`
	PollingStationID      string         `db:"polling_station_id"`
	Status                string         `db:"status"`
	TotalRegisteredVoters sql.NullInt64  `db:"total_registered_voters"`
	TotalVotesCast        sql.NullInt64  `db:"total_votes_cast"`
	TotalValidVotes       sql.NullInt64  `db:"total_valid_votes"`
	TotalRejectedVotes    sql.NullInt64  `db:"total_rejected_votes"`
	Version               int            `db:"version"`
	CreatedBy             string         `db:"created_by"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
	SubmittedAt           sql.NullTime   `db:"submitted_at"`
	VerifiedAt            sql.NullTime   `db:"verified_at"`
	ApprovedAt            sql.NullTime   `db:"approved_at"`
	CertifiedAt           sql.NullTime   `db:"certified_at"`
	RejectionReason       sql.NullString `db:"rejection_reason"`
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func intOrNil(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func timeOrNil(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func stringOrNil(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func FromResultSheet(sheet models.ResultSheet) *ResultSheetRow {
	return &ResultSheetRow{
		ID:                    sheet.ID,
		ElectionID:            sheet.ElectionID,
		PollingStationID:      sheet.PollingStationID,
		Status:                string(sheet.Status),
		TotalRegisteredVoters: nullInt(sheet.TotalRegisteredVoters),
		TotalVotesCast:        nullInt(sheet.TotalVotesCast),
		TotalValidVotes:       nullInt(sheet.TotalValidVotes),
		TotalRejectedVotes:    nullInt(sheet.TotalRejectedVotes),
		Version:               sheet.Version,
		CreatedBy:             sheet.CreatedBy,
		CreatedAt:             sheet.CreatedAt,
		UpdatedAt:             sheet.UpdatedAt,
		SubmittedAt:           nullTime(sheet.SubmittedAt),
		VerifiedAt:            nullTime(sheet.VerifiedAt),
		ApprovedAt:            nullTime(sheet.ApprovedAt),
		CertifiedAt:           nullTime(sheet.CertifiedAt),
		RejectionReason:       nullString(sheet.RejectionReason),
	}
}

func ToResultSheet(row *ResultSheetRow) models.ResultSheet {
	return models.ResultSheet{
		ID:               row.ID,
		ElectionID:       row.ElectionID,
		PollingStationID: row.PollingStationID,
		Status:           models.SheetStatus(row.Status),
		Totals: models.Totals{
			TotalRegisteredVoters: intOrNil(row.TotalRegisteredVoters),
			TotalVotesCast:        intOrNil(row.TotalVotesCast),
			TotalValidVotes:       intOrNil(row.TotalValidVotes),
			TotalRejectedVotes:    intOrNil(row.TotalRejectedVotes),
		},
		Version:         row.Version,
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		SubmittedAt:     timeOrNil(row.SubmittedAt),
		VerifiedAt:      timeOrNil(row.VerifiedAt),
		ApprovedAt:      timeOrNil(row.ApprovedAt),
		CertifiedAt:     timeOrNil(row.CertifiedAt),
		RejectionReason: stringOrNil(row.RejectionReason),
	}
}
