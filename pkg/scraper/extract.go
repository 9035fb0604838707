// pkg/scraper/extract.go
package scraper

import (
	"regexp"
	"strings"

	"visitsync/pkg/config"
	"visitsync/pkg/visit"

	"github.com/PuerkitoBio/goquery"
)

const (
	legacyBlockSelector = ".k-block"
	slotListSelector    = `ul[data-role="droptarget"]`
	slotEntrySelector   = "li"
)

// The slot tooltip carries up to three labeled lines, each optional.
var (
	doctorPattern = regexp.MustCompile(`Doctor:\s*([^\n]+)`)
	typePattern   = regexp.MustCompile(`Type:\s*([^\n]+)`)
	reasonPattern = regexp.MustCompile(`Reason:\s*([^\n]+)`)
)

// extractVisits reads every slot-group of the rendered schedule into visit
// records. Dates before the cutoff use the retired single-block layout where
// no status labels exist; later dates use the clinic's configured groups.
func extractVisits(document *goquery.Document, location config.Location, dateStr string) []visit.Visit {
	slotGroups := location.SlotGroups
	statusByGroup := location.StatusByGroup
	if dateStr < config.CutOffDate {
		slotGroups = legacySlotGroups(document)
		statusByGroup = nil
	}

	var visits []visit.Visit
	for _, groupID := range slotGroups {
		var status *string
		if label, ok := statusByGroup[groupID]; ok {
			labelCopy := label
			status = &labelCopy
		}
		document.Find("#" + groupID).Find(slotEntrySelector).Each(func(_ int, item *goquery.Selection) {
			visits = append(visits, parseSlotItem(item, location.Name, dateStr, status))
		})
	}
	return visits
}

// legacySlotGroups finds the one schedule block of the old layout: a generic
// container whose text spans both the AM and PM halves of the day.
func legacySlotGroups(document *goquery.Document) []string {
	var groups []string
	document.Find(legacyBlockSelector).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		blockText := block.Text()
		if !strings.Contains(blockText, "AM") || !strings.Contains(blockText, "PM") {
			return true
		}
		if groupID, exists := block.Find(slotListSelector).First().Attr("id"); exists {
			groups = append(groups, groupID)
		}
		return false
	})
	return groups
}

// parseSlotItem splits an entry's visible text into the leading time token
// and the patient name, then pulls the optional tooltip fields.
func parseSlotItem(item *goquery.Selection, locationName, dateStr string, status *string) visit.Visit {
	fields := strings.Fields(strings.TrimSpace(item.Text()))
	var timeToken, patientName string
	if len(fields) > 0 {
		timeToken = fields[0]
		patientName = strings.Join(fields[1:], " ")
	}
	title, _ := item.Attr("title")
	return visit.Visit{
		Location: locationName,
		Date:     dateStr,
		Status:   status,
		Time:     timeToken,
		Patient:  patientName,
		Doctor:   firstSubmatch(doctorPattern, title),
		Type:     firstSubmatch(typePattern, title),
		Reason:   firstSubmatch(reasonPattern, title),
	}
}

func firstSubmatch(pattern *regexp.Regexp, text string) *string {
	matches := pattern.FindStringSubmatch(text)
	if matches == nil {
		return nil
	}
	value := strings.TrimSpace(matches[1])
	return &value
}
