package ponds

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/aquasmart/pond-monitoring/internal/pkg/infrastructure/logging"
)

// Seed reads ponds from a semicolon separated file with the columns
//
//	name;location;actuators
//
// where actuators is a comma separated list of name:kind pairs. Ponds that
// already exist with the same name are left untouched.
func (r *pondRepository) Seed(ctx context.Context, reader io.Reader) error {
	rows := csv.NewReader(reader)
	rows.Comma = ';'
	rows.FieldsPerRecord = -1

	records, err := rows.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read csv data from file: %w", err)
	}

	log := logging.GetFromContext(ctx)

	seeded := 0

	for idx, rec := range records {
		if idx == 0 {
			// Skip the CSV header
			continue
		}

		if len(rec) < 2 {
			return fmt.Errorf("too few columns on line %d in ponds file", idx+1)
		}

		pond := Pond{
			Name:     strings.TrimSpace(rec[0]),
			Location: strings.TrimSpace(rec[1]),
		}

		if pond.Name == "" {
			return fmt.Errorf("missing pond name on line %d in ponds file", idx+1)
		}

		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			for _, a := range strings.Split(rec[2], ",") {
				name, kind, found := strings.Cut(strings.TrimSpace(a), ":")
				if !found {
					kind = "aerator"
				}
				pond.Actuators = append(pond.Actuators, Actuator{
					Name: name,
					Kind: strings.ToLower(kind),
					Mode: "OFF",
				})
			}
		}

		var count int64
		err = r.db.WithContext(ctx).Model(&Pond{}).Where(&Pond{Name: pond.Name}).Count(&count).Error
		if err != nil {
			return err
		}

		if count > 0 {
			log.Debug().Str("pond", pond.Name).Msg("pond already exists, skipping")
			continue
		}

		err = r.CreatePond(ctx, &pond)
		if err != nil {
			log.Error().Err(err).Str("pond", pond.Name).Msg("could not seed pond")
			continue
		}

		seeded++
	}

	log.Info().Int("count", seeded).Msg("seeded ponds from file")

	return nil
}
