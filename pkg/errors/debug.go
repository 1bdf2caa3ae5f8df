package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-side view of an error: its code, every link of the
// wrap chain and, when a Postgres error sits in the chain, its diagnostics.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Retryable  bool
	Chain      []string

	PGCode       string
	PGConstraint string
	PGTable      string
	PGDetail     string
	PGMessage    string
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Retryable = MetadataFor(d.Code).Retryable
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.fillPostgres(err)
	return d
}

// pgx is what the gorm postgres driver returns; lib/pq shows up through goose.
func (d *ErrorDump) fillPostgres(err error) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		d.PGCode, d.PGConstraint, d.PGTable = pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName
		d.PGDetail, d.PGMessage = pgxErr.Detail, pgxErr.Message
		return
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		d.PGCode, d.PGConstraint, d.PGTable = string(pqErr.Code), pqErr.Constraint, pqErr.Table
		d.PGDetail, d.PGMessage = pqErr.Detail, pqErr.Message
	}
}

// Fields flattens the dump for a structured logger, skipping empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{}
	put := func(key string, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	put("error", d.TopMessage)
	if d.Code != "" {
		fields["error_code"] = d.Code
		fields["retryable"] = d.Retryable
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	put("pg_code", d.PGCode)
	put("pg_constraint", d.PGConstraint)
	put("pg_table", d.PGTable)
	put("pg_detail", d.PGDetail)
	put("pg_message", d.PGMessage)
	return fields
}
