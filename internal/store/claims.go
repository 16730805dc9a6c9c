package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"claimaudit/internal/claim"
)

// GetClaim loads a claim with patient, provider and line items joined in.
// Amounts are read as text so the exact stored value reaches the formatter.
func (s *Store) GetClaim(ctx context.Context, id int64) (claim.Record, error) {
	var (
		rec                                  claim.Record
		claimID, patientID, providerID       int64
		date, status, total, insured, paidBy string
		patientName, providerName            string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT c.claim_id, to_char(c.claim_date, 'YYYY-MM-DD'), c.status,
			c.total_charge::text, c.insurance_paid::text, c.patient_paid::text,
			p.patient_id, p.first_name || ' ' || p.last_name,
			pr.provider_id, pr.provider_name
		FROM claims c
		JOIN patients p ON p.patient_id = c.patient_id
		JOIN providers pr ON pr.provider_id = c.provider_id
		WHERE c.claim_id = $1`, id)
	if err := row.Scan(&claimID, &date, &status, &total, &insured, &paidBy, &patientID, &patientName, &providerID, &providerName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, fmt.Errorf("%w: %d", ErrClaimNotFound, id)
		}
		return rec, err
	}
	rec = claim.Record{
		ID:            claim.Text(strconv.FormatInt(claimID, 10)),
		Date:          claim.Text(date),
		Status:        claim.Status(status),
		TotalCharge:   claim.ParseAmount(total),
		InsurancePaid: claim.ParseAmount(insured),
		PatientPaid:   claim.ParseAmount(paidBy),
		PatientName:   claim.Text(patientName),
		PatientID:     claim.Text(strconv.FormatInt(patientID, 10)),
		ProviderName:  claim.Text(providerName),
		ProviderID:    claim.Text(strconv.FormatInt(providerID, 10)),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.cpt_code, s.description, ci.charge_amount::text
		FROM claim_items ci
		JOIN services s ON s.service_id = ci.service_id
		WHERE ci.claim_id = $1
		ORDER BY ci.claim_item_id`, id)
	if err != nil {
		return rec, err
	}
	defer rows.Close()
	for rows.Next() {
		var code, desc, charge string
		if err := rows.Scan(&code, &desc, &charge); err != nil {
			return rec, err
		}
		rec.Items = append(rec.Items, claim.LineItem{
			ProcedureCode: claim.Text(code),
			Description:   claim.Text(desc),
			Charge:        claim.ParseAmount(charge),
		})
	}
	return rec, rows.Err()
}

// UpdateFraudScore stores the latest score on the claim row.
func (s *Store) UpdateFraudScore(ctx context.Context, id int64, score float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE claims SET fraud_score = $2 WHERE claim_id = $1`, id, score)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrClaimNotFound, id)
	}
	return nil
}

// ListUnscoredClaims returns ids of claims that have never been scored,
// oldest first.
func (s *Store) ListUnscoredClaims(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id FROM claims
		WHERE fraud_score IS NULL
		ORDER BY claim_date ASC, claim_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
