package scraper

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/extract"
	"github.com/JakeFAU/legisnotice/internal/legislation"
)

// Sentinels for admin detail fields that could not be located.
const (
	AdminMissingTitle     = "제목 없음"
	AdminMissingCommittee = "소관위 없음"
	AdminMissingContent   = "내용 없음"
)

const adminLinks = "#listView > ul > li.title.W40 > a"

var (
	adminTitle = extract.Field{Name: "title", Missing: AdminMissingTitle, Locators: []extract.Locator{
		extract.Selector("#ogLmPpVo > div:nth-child(7) > div > p:nth-child(8) > span"),
		extract.Selector("#ogLmPpVo span, .title span, h1, h2, h3"),
		extract.Selector("p span, div span"),
	}}
	adminCommittee = extract.Field{Name: "committee", Missing: AdminMissingCommittee, Locators: []extract.Locator{
		committeeCell("#ogLmPpVo > ul.basic > li:nth-child(2) > table > tbody > tr > td"),
		committeeCell("ul.basic li table tbody tr td, .basic li table td"),
		committeeCell(`table td:contains("부서"), table td:contains("과")`),
	}}
	adminPeriod = extract.Field{Name: "period", Locators: []extract.Locator{
		extract.Selector("#ogLmPpVo > ul.basic > li:nth-child(1)"),
		extract.Selector("ul.basic li:first-child, .basic li:first-child"),
		extract.Selector(`li:contains("게시"), li:contains("기간")`),
	}}
	adminContent = extract.Field{Name: "content", Missing: AdminMissingContent, Locators: []extract.Locator{
		extract.Selector("#ogLmPpVo > div:nth-child(7) > div"),
	}}
	adminLink = extract.Field{Name: "link", Locators: []extract.Locator{
		extract.Attr{Selector: "#ogLmPpVo > ul:nth-child(2) > a:nth-child(2)", Name: "href"},
	}}
)

// committeeCell reads the owning department, dropping the trailing phone number.
func committeeCell(selector string) extract.Locator {
	return extract.Transform{Locator: extract.Selector(selector), Fn: extract.CutBefore("전화번호")}
}

// Admin scrapes the executive branch's regulation notice portal.
type Admin struct {
	base
}

// NewAdmin builds the executive scraper.
func NewAdmin(listing Listing, deps Deps) (*Admin, error) {
	b, err := newBase(legislation.SourceAdmin, listing, deps)
	if err != nil {
		return nil, err
	}
	return &Admin{base: b}, nil
}

// Scrape processes the listing page by page. The listing is newest first, so
// the walk stops after the first page that yields nothing in the window.
func (s *Admin) Scrape(ctx context.Context, w Window) ([]legislation.RawNotice, error) {
	var (
		out     []legislation.RawNotice
		pageErr error
	)
	err := s.walk(ctx, nil, s.listingLinks, func(page int, links []string) bool {
		kept, err := s.details(ctx, w, links, s.parseDetail)
		if err != nil {
			pageErr = err
			return false
		}
		s.logger.Debug("admin listing page processed", zap.Int("page", page), zap.Int("count", len(kept)))
		out = append(out, kept...)
		return len(kept) > 0
	})
	if err == nil {
		err = pageErr
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin scrape finished", zap.Int("count", len(out)), zap.String("target_date", w.Target))
	return out, nil
}

func (s *Admin) listingLinks(doc *goquery.Selection) []string {
	return s.resolveLinks(doc, adminLinks)
}

func (s *Admin) parseDetail(detailURL string, doc *goquery.Selection, w Window) (legislation.RawNotice, error) {
	period, err := periodOf(adminPeriod, doc)
	if err != nil {
		return legislation.RawNotice{}, err
	}
	if period.StartDate() != w.Target {
		return legislation.RawNotice{}, fmt.Errorf("%w: start %s", errOutOfWindow, period.StartDate())
	}
	if period.EndDate() < w.Today {
		return legislation.RawNotice{}, fmt.Errorf("%w: closed on %s", errOutOfWindow, period.EndDate())
	}

	link := detailURL
	if href := adminLink.Extract(doc); href != "" {
		if abs, ok := resolve(s.listURL, href); ok {
			link = abs
		}
	}
	return legislation.RawNotice{
		Title:     adminTitle.Extract(doc),
		Committee: adminCommittee.Extract(doc),
		StartDate: period.StartDate(),
		EndDate:   period.EndDate(),
		Content:   s.trimmer.Trim(adminContent.Extract(doc)),
		LinkURL:   link,
	}, nil
}
