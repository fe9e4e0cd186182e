package routers

import (
	"fmt"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

type datasourceDecision struct {
	Datasource string `mapstructure:"datasource"`
}

type scoreDecision struct {
	Score string `mapstructure:"score"`
}

// decode maps a raw decision onto out, rejecting missing, extra or ill-typed fields.
func decode(raw ports.Decision, out any) error {
	if raw == nil {
		return fmt.Errorf("empty decision")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		ErrorUnset:  true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(raw)); err != nil {
		return fmt.Errorf("malformed decision %v: %w", map[string]any(raw), err)
	}
	return nil
}

// DecodeDatasource extracts the routing label of a route_question decision.
func DecodeDatasource(raw ports.Decision) (string, error) {
	var d datasourceDecision
	if err := decode(raw, &d); err != nil {
		return "", err
	}
	return d.Datasource, nil
}

// DecodeScore extracts a binary grading score and checks it against the yes/no set.
// An out-of-set score is reported as a configuration error attributed to where.
func DecodeScore(where string, raw ports.Decision) (bool, error) {
	var d scoreDecision
	if err := decode(raw, &d); err != nil {
		return false, err
	}
	if !domain.BinaryScores.Contains(d.Score) {
		return false, domain.UnknownLabel(where, d.Score, domain.BinaryScores)
	}
	return d.Score == domain.ScoreYes, nil
}
