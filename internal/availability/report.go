package availability

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/identity"
	"github.com/sells-group/intake-cli/internal/model"
)

// ReportLine is one parsed entry of a manually prepared status report.
type ReportLine struct {
	Index   int // 1-based position from a numbered line, 0 when bare
	Address string
	Status  model.MarketStatus
	Detail  string
}

// ReportFailure records a line that could not be parsed or matched.
type ReportFailure struct {
	Line   string
	Reason string
}

var numberedLineRe = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.*)$`)

// ParseReport reads "address | STATUS | details" lines, with or without a
// leading "N." index. Blank lines and lines starting with # are ignored.
func ParseReport(r io.Reader) ([]ReportLine, []ReportFailure, error) {
	var lines []ReportLine
	var failures []ReportFailure

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		body := raw
		index := 0
		if m := numberedLineRe.FindStringSubmatch(raw); m != nil {
			index, _ = strconv.Atoi(m[1])
			body = m[2]
		}

		parts := strings.SplitN(body, "|", 3)
		if len(parts) < 2 {
			failures = append(failures, ReportFailure{Line: raw, Reason: "missing status separator"})
			continue
		}
		addr := strings.TrimSpace(parts[0])
		status, ok := parseReportStatus(strings.TrimSpace(parts[1]))
		if !ok {
			failures = append(failures, ReportFailure{
				Line:   raw,
				Reason: fmt.Sprintf("unrecognized status %q", strings.TrimSpace(parts[1])),
			})
			continue
		}
		detail := ""
		if len(parts) == 3 {
			detail = strings.TrimSpace(parts[2])
		}
		lines = append(lines, ReportLine{Index: index, Address: addr, Status: status, Detail: detail})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "availability: read report")
	}
	return lines, failures, nil
}

func parseReportStatus(s string) (model.MarketStatus, bool) {
	switch strings.ToLower(strings.ReplaceAll(s, " ", "_")) {
	case "sold":
		return model.MarketStatusSold, true
	case "pending", "under_contract", "contingent":
		return model.MarketStatusPending, true
	case "active", "available", "for_sale":
		return model.MarketStatusActive, true
	case "off_market", "offmarket", "delisted":
		return model.MarketStatusOffMarket, true
	case "unknown":
		return model.MarketStatusUnknown, true
	}
	return "", false
}

// ApplyReport matches parsed lines against records, by normalized address
// first and numeric index second, and stamps matches as imported statuses.
// Lines that match nothing come back as failures.
func ApplyReport(recs []*model.PropertyRecord, lines []ReportLine) (applied int, failures []ReportFailure) {
	byAddr := make(map[string]*model.PropertyRecord, len(recs))
	for _, rec := range recs {
		if !rec.HasAddress() {
			continue
		}
		key := identity.NormalizeAddress(rec.FullAddress())
		if key == "" {
			continue
		}
		if _, seen := byAddr[key]; !seen {
			byAddr[key] = rec
		}
	}

	now := time.Now().UTC()
	for _, line := range lines {
		rec := byAddr[identity.NormalizeAddress(line.Address)]
		if rec == nil && line.Index > 0 && line.Index <= len(recs) {
			rec = recs[line.Index-1]
		}
		if rec == nil {
			failures = append(failures, ReportFailure{
				Line:   line.Address,
				Reason: "no record matches by address or index",
			})
			continue
		}

		Apply(rec, &model.AvailabilityResult{
			Status:    line.Status,
			Source:    model.SourceImported,
			CheckedAt: now,
			Detail:    line.Detail,
		})
		applied++
	}
	return applied, failures
}
