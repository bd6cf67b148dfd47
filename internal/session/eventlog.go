package session

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/spachava753/trialkit/internal/models"
)

var eventLogHeader = []string{
	"index", "trial_id", "plugin", "stimulus", "outcome",
	"response", "rt_ms", "elapsed_ms", "started_at", "error",
}

// writeEventLog writes one row per trial result.
func writeEventLog(path string, results []models.TrialResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(eventLogHeader); err != nil {
		return err
	}
	for _, r := range results {
		var response, rtMS, errMsg string
		if r.Response != nil {
			response = r.Response.Token
			rtMS = strconv.FormatInt(r.Response.Timestamp.Milliseconds(), 10)
		}
		if r.Error != nil {
			errMsg = string(r.Error.Type) + ": " + r.Error.Message
		}
		if err := w.Write([]string{
			strconv.Itoa(r.Index),
			r.TrialID,
			string(r.Plugin),
			r.Stimulus,
			string(r.Outcome),
			response,
			rtMS,
			strconv.FormatInt(r.Elapsed.Milliseconds(), 10),
			r.StartedAt.Format(time.RFC3339Nano),
			errMsg,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
