package notifications

import (
	"fmt"
	"strings"
	"time"

	"faceomatic/internal/aggregate"
	"faceomatic/internal/archive"
	"faceomatic/internal/jobs"
)

const reportRule = "======================"

// FormatReport renders a job's aggregated detections as Slack mrkdwn.
func FormatReport(detailsBase string, job jobs.Job, report aggregate.Report) string {
	var b strings.Builder
	b.WriteString(reportRule)
	fmt.Fprintf(&b, "\n<%s|%s,%s,%s>",
		archive.DetailsURL(detailsBase, job.ID),
		job.Network,
		job.Program,
		job.Airtime.UTC().Format(time.RFC3339),
	)
	for _, label := range report.Labels {
		if !label.Found() {
			fmt.Fprintf(&b, "\n:no_entry_sign: `%s` Not Found", label.Name)
			continue
		}
		fmt.Fprintf(&b, "\n:white_check_mark: `%s` Detected", label.Name)
		for _, iv := range label.Intervals {
			fmt.Fprintf(&b, "\n * %s - %s <%s|(%ds)>",
				SecondsToTime(iv.Start),
				SecondsToTime(iv.End),
				archive.IntervalURL(detailsBase, job.ID, iv.Start, iv.End),
				iv.Seconds(),
			)
		}
	}
	return b.String()
}

// SecondsToTime renders seconds as unpadded h:m:s. Hours wrap at one day.
func SecondsToTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	s := seconds % 60
	m := (seconds % 3600) / 60
	h := (seconds % 86400) / 3600
	return fmt.Sprintf("%d:%d:%d", h, m, s)
}
