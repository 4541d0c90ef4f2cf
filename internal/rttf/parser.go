package rttf

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// listingDateLayout matches date header rows like "02.09.2026 / вт".
const listingDateLayout = "02.01.2006"

// Parser turns raw rttf documents into structured listing and detail data.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a parser instance.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("rttf_parser")}
}

// ParseListing extracts event summaries from a tournament listing page.
// Tournament rows are grouped under date header rows; a listing with a table
// but no rows is valid and parses into an empty slice.
func (p *Parser) ParseListing(doc string) ([]EventSummary, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, newParseError("listing", "unreadable document: %v", err)
	}

	table := page.Find("table").First()
	if table.Length() == 0 {
		return nil, newParseError("listing", "missing tournaments table")
	}

	var (
		summaries   []EventSummary
		currentDate time.Time
		haveDate    bool
		rowErr      error
	)

	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		switch {
		case row.HasClass("date"):
			// Header text carries a weekday suffix after " / "
			text := strings.TrimSpace(row.Find("th").First().Text())
			datePart, _, _ := strings.Cut(text, " / ")

			parsed, err := time.Parse(listingDateLayout, strings.TrimSpace(datePart))
			if err != nil {
				rowErr = newParseError("listing", "bad date header %q", text)
				return false
			}

			currentDate = parsed
			haveDate = true
		case row.HasClass("reg"):
			if !haveDate {
				rowErr = newParseError("listing", "tournament row before any date header")
				return false
			}

			summary, err := parseListingRow(row, currentDate)
			if err != nil {
				rowErr = err
				return false
			}

			summaries = append(summaries, summary)
		}

		return true
	})

	if rowErr != nil {
		return nil, rowErr
	}

	p.logger.Debug("Parsed tournament listing", zap.Int("events", len(summaries)))

	return summaries, nil
}

// ParseDetail extracts the full roster state from an event detail page.
// Registered players sit in the visible sortable table, withdrawn players in
// the hidden one, and completed players in the results table; any of the
// three may be absent.
func (p *Parser) ParseDetail(doc string) (*EventDetail, error) {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil, newParseError("detail", "unreadable document: %v", err)
	}

	heading := page.Find("h1").First()
	if heading.Length() == 0 {
		return nil, newParseError("detail", "missing event heading")
	}

	detail := &EventDetail{
		Name: strings.Join(strings.Fields(heading.Text()), " "),
	}

	if href, ok := page.Find("link[rel=canonical]").Attr("href"); ok {
		if id, err := idFromPath(href); err == nil {
			detail.ID = id
		}
	}

	if detail.Registered, err = parseParticipantTable(page.Find("table.tablesort").Not(".hide").First()); err != nil {
		return nil, err
	}

	if detail.Withdrawn, err = parseParticipantTable(page.Find("table.tablesort.hide").First()); err != nil {
		return nil, err
	}

	if detail.Results, err = parseResultsTable(page.Find("table.results").First()); err != nil {
		return nil, err
	}

	p.logger.Debug("Parsed tournament detail",
		zap.Int64("eventID", detail.ID),
		zap.Int("registered", len(detail.Registered)),
		zap.Int("withdrawn", len(detail.Withdrawn)),
		zap.Int("completed", len(detail.Results)))

	return detail, nil
}

// parseListingRow reads one tournament row: time cell, name link, player
// count and mean rating cells.
func parseListingRow(row *goquery.Selection, date time.Time) (EventSummary, error) {
	link := row.Find("a[href]").First()

	href, ok := link.Attr("href")
	if !ok {
		return EventSummary{}, newParseError("listing", "tournament row without link")
	}

	id, err := idFromPath(href)
	if err != nil {
		return EventSummary{}, newParseError("listing", "bad tournament link %q", href)
	}

	summary := EventSummary{
		ID:   id,
		Date: date,
		Name: strings.TrimSpace(link.Text()),
	}

	// Mean rating sits in the last cell; it is informational and optional
	cells := row.Find("td")
	if cells.Length() > 0 {
		if rating, err := strconv.Atoi(strings.TrimSpace(cells.Last().Text())); err == nil {
			summary.Rating = rating
		}
	}

	return summary, nil
}

// parseParticipantTable reads player rows from a roster table. A missing
// table means that section is empty for the event.
func parseParticipantTable(table *goquery.Selection) ([]Participant, error) {
	if table.Length() == 0 {
		return nil, nil
	}

	var (
		participants []Participant
		rowErr       error
	)

	table.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		participant, err := parseParticipantCell(row)
		if err != nil {
			rowErr = err
			return false
		}

		participants = append(participants, participant)

		return true
	})

	if rowErr != nil {
		return nil, rowErr
	}

	return participants, nil
}

// parseResultsTable reads the completed-players table: player link, rating
// before, rating delta, rating after and the games record "won-lost".
func parseResultsTable(table *goquery.Selection) ([]ParticipantResult, error) {
	if table.Length() == 0 {
		return nil, nil
	}

	var (
		results []ParticipantResult
		rowErr  error
	)

	table.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		participant, err := parseParticipantCell(row)
		if err != nil {
			rowErr = err
			return false
		}

		cells := row.Find("td")
		if cells.Length() < 5 {
			rowErr = newParseError("detail", "results row for player %d has %d cells", participant.ID, cells.Length())
			return false
		}

		result := ParticipantResult{Participant: participant}

		numbers := []struct {
			value *float64
			cell  int
		}{
			{&result.RatingBefore, cells.Length() - 4},
			{&result.RatingDelta, cells.Length() - 3},
			{&result.RatingAfter, cells.Length() - 2},
		}

		for _, number := range numbers {
			text := strings.TrimSpace(cells.Eq(number.cell).Text())

			parsed, err := strconv.ParseFloat(strings.TrimPrefix(text, "+"), 64)
			if err != nil {
				rowErr = newParseError("detail", "bad rating value %q for player %d", text, participant.ID)
				return false
			}

			*number.value = parsed
		}

		record := strings.TrimSpace(cells.Last().Text())

		wonText, lostText, ok := strings.Cut(record, "-")
		if !ok {
			rowErr = newParseError("detail", "bad games record %q for player %d", record, participant.ID)
			return false
		}

		if result.GamesWon, err = strconv.Atoi(strings.TrimSpace(wonText)); err != nil {
			rowErr = newParseError("detail", "bad games record %q for player %d", record, participant.ID)
			return false
		}

		if result.GamesLost, err = strconv.Atoi(strings.TrimSpace(lostText)); err != nil {
			rowErr = newParseError("detail", "bad games record %q for player %d", record, participant.ID)
			return false
		}

		results = append(results, result)

		return true
	})

	if rowErr != nil {
		return nil, rowErr
	}

	return results, nil
}

// parseParticipantCell extracts the player link from a roster or results row.
func parseParticipantCell(row *goquery.Selection) (Participant, error) {
	link := row.Find(`a[href*="/players/"]`).First()

	href, ok := link.Attr("href")
	if !ok {
		return Participant{}, newParseError("detail", "player row without link")
	}

	id, err := idFromPath(href)
	if err != nil {
		return Participant{}, newParseError("detail", "bad player link %q", href)
	}

	return Participant{
		ID:   id,
		Name: strings.TrimSpace(link.Text()),
	}, nil
}

// idFromPath extracts the numeric id from the last path segment of an rttf
// link, ignoring any query string.
func idFromPath(href string) (int64, error) {
	path, _, _ := strings.Cut(href, "?")
	path = strings.TrimSuffix(path, "/")

	segment := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		segment = path[idx+1:]
	}

	return strconv.ParseInt(segment, 10, 64)
}
