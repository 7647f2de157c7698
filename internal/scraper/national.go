package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/extract"
	"github.com/JakeFAU/legisnotice/internal/legislation"
)

// Sentinels for national detail fields that could not be located.
const (
	NationalMissingBillID    = "(없음)"
	NationalMissingTitle     = "(제목 없음)"
	NationalMissingProposer  = "(제안자 없음)"
	NationalMissingCommittee = "(소관위 없음)"
	NationalMissingContent   = "(내용 없음)"
)

const (
	nationalRows  = "#frm > div > div.board01.pr.td_center.board-added > table > tbody > tr"
	nationalLinks = "td.align_left.td_block > a"
	nationalTable = "#content > div.board01.pr.td_center.board-added > table > tbody > tr"
)

var nationalListingParams = url.Values{
	"searchConClosed": {"0"},
	"menuNo":          {"1100026"},
}

var (
	nationalBillID = extract.Field{Name: "bill_id", Missing: NationalMissingBillID, Locators: []extract.Locator{
		extract.LabeledCell{Match: extract.LabelAny("의안번호", "안건번호")},
	}}
	nationalTitle = extract.Field{Name: "title", Missing: NationalMissingTitle, Locators: []extract.Locator{
		extract.Transform{Locator: extract.Selector("#content > div.legislation-heading > h3"), Fn: cleanBillTitle},
		extract.Selector("h1, h2, h3, .title, .board-title"),
	}}
	nationalProposer = extract.Field{Name: "proposer", Missing: NationalMissingProposer, Locators: []extract.Locator{
		extract.LabeledCell{Match: extract.LabelAny("제안자", "발의자")},
		extract.Selector(nationalTable + " > td:nth-child(2)"),
	}}
	nationalCommittee = extract.Field{Name: "committee", Missing: NationalMissingCommittee, Locators: []extract.Locator{
		extract.LabeledCell{Match: extract.LabelAny("소관위", "위원회")},
		extract.Selector(nationalTable + " > td.td_block"),
	}}
	nationalPeriod = extract.Field{Name: "period", Locators: []extract.Locator{
		extract.LabeledCell{Match: extract.LabelAll("게시", "기간")},
		extract.Selector(nationalTable + " > td:nth-child(6)"),
	}}
	nationalContent = extract.Field{Name: "content", Missing: NationalMissingContent, Locators: []extract.Locator{
		extract.Selector("#content > div.card-wrap > div:nth-child(1) > div"),
		extract.KeywordBlock{Selector: "div", MinRunes: 50, Keywords: []string{"내용", "요약", "개요"}},
	}}
)

// cleanBillTitle strips the "[billNo]" prefix and the "(proposer ...)" suffix
// from a legislature heading. Headings lacking either part are returned as is.
func cleanBillTitle(s string) string {
	_, after, ok := strings.Cut(s, "]")
	if !ok || !strings.Contains(after, "(") {
		return s
	}
	before, _, _ := strings.Cut(after, "(")
	return before
}

// National scrapes the legislature's HTML notice portal.
type National struct {
	base
}

// NewNational builds the legislature scraper.
func NewNational(listing Listing, deps Deps) (*National, error) {
	b, err := newBase(legislation.SourceNational, listing, deps)
	if err != nil {
		return nil, err
	}
	return &National{base: b}, nil
}

// Scrape collects every listing link up to the page ceiling, then visits the
// detail pages and keeps notices whose start date is the window target.
func (s *National) Scrape(ctx context.Context, w Window) ([]legislation.RawNotice, error) {
	var links []string
	seen := map[string]struct{}{}
	err := s.walk(ctx, nationalListingParams, s.listingLinks, func(_ int, page []string) bool {
		for _, l := range page {
			if _, dup := seen[l]; !dup {
				seen[l] = struct{}{}
				links = append(links, l)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("national listing collected", zap.Int("count", len(links)), zap.String("target_date", w.Target))

	notices, err := s.details(ctx, w, links, s.parseDetail)
	if err != nil {
		return nil, err
	}
	s.logger.Info("national scrape finished", zap.Int("count", len(notices)), zap.String("target_date", w.Target))
	return notices, nil
}

func (s *National) listingLinks(doc *goquery.Selection) []string {
	rows := doc.Find(nationalRows)
	if rows.Length() == 0 {
		return nil
	}
	return s.resolveLinks(rows, nationalLinks)
}

func (s *National) parseDetail(detailURL string, doc *goquery.Selection, w Window) (legislation.RawNotice, error) {
	period, err := periodOf(nationalPeriod, doc)
	if err != nil {
		return legislation.RawNotice{}, err
	}
	if period.StartDate() != w.Target {
		return legislation.RawNotice{}, fmt.Errorf("%w: start %s", errOutOfWindow, period.StartDate())
	}
	return legislation.RawNotice{
		BillID:    nationalBillID.Extract(doc),
		Title:     nationalTitle.Extract(doc),
		Proposer:  nationalProposer.Extract(doc),
		Committee: nationalCommittee.Extract(doc),
		StartDate: period.StartDate(),
		EndDate:   period.EndDate(),
		Content:   s.trimmer.Trim(nationalContent.Extract(doc)),
		LinkURL:   detailURL,
	}, nil
}
