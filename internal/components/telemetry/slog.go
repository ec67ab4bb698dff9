package telemetry

import (
	"fmt"
	"log/slog"
)

// SlogAPI writes reports to the default slog logger.
type SlogAPI struct{}

// attrs turns params into slog key value pairs, errors are logged under
// "err" and everything else positionally.
func (SlogAPI) attrs(id string, params []any) []any {
	out := make([]any, 0, 2+len(params)*2)
	if id != "" {
		out = append(out, "id", id)
	}
	for i, p := range params {
		if err, ok := p.(error); ok {
			out = append(out, "err", err.Error())
			continue
		}
		out = append(out, fmt.Sprintf("p%d", i), p)
	}
	return out
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	slog.Error("broken", s.attrs(id, params)...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	slog.Warn("warning", s.attrs(id, params)...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	slog.Debug(message, s.attrs("", params)...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	slog.Debug("count", "id", id, "n", count)
}
