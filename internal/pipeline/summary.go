package pipeline

import "postcraft/internal/pkg/errors"

// Summary counts a finished run and lists why items failed.
type Summary struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

type Failure struct {
	ItemID   string      `json:"item_id"`
	Position int         `json:"position"`
	Stage    Stage       `json:"stage"`
	Code     errors.Code `json:"code"`
	// Cause is the class of a publish failure (TIMEOUT, FORBIDDEN, ...).
	Cause   errors.Code `json:"cause,omitempty"`
	Message string      `json:"message"`
}

// Summarize derives counts from results. Succeeded+Failed always equals
// Total.
func Summarize(results []ItemResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.OK() {
			s.Succeeded++
			continue
		}
		s.Failed++
		f := Failure{
			ItemID:   r.Item.ID,
			Position: r.Item.Position,
			Stage:    r.Stage,
			Code:     errors.GetCode(r.Err),
			Cause:    errors.Cause(r.Err),
		}
		if r.Err != nil {
			f.Message = r.Err.Error()
		}
		s.Failures = append(s.Failures, f)
	}
	return s
}
