package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// routeFetcher serves pages from a routing function and records every URL.
type routeFetcher struct {
	mu    sync.Mutex
	calls []string
	route func(u *url.URL) (string, error)
}

func (f *routeFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	body, err := f.route(u)
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (f *routeFetcher) callsMatching(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

type countingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *countingPacer) Wait(ctx context.Context, _ string) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

var errUpstream = errors.New("upstream unreachable")

func nationalListingHTML(hrefs ...string) string {
	var rows strings.Builder
	for i, h := range hrefs {
		fmt.Fprintf(&rows, `<tr><td>%d</td><td class="align_left td_block"><a href="%s">notice %d</a></td></tr>`, i+1, h, i+1)
	}
	return `<html><body><form id="frm"><div><div class="board01 pr td_center board-added"><table><thead><tr><th>번호</th></tr></thead><tbody>` +
		rows.String() + `</tbody></table></div></div></form></body></html>`
}

type nationalDetail struct {
	billID, title, committee, period, content string
}

func nationalDetailHTML(d nationalDetail) string {
	return fmt.Sprintf(`<html><body><div id="content">
<div class="legislation-heading"><h3>[%[1]s] %[2]s (홍길동의원 등 10인)</h3></div>
<table>
<tr><th>의안번호</th><td>%[1]s</td></tr>
<tr><th>제안자</th><td>홍길동의원 등 10인</td></tr>
<tr><th>소관위원회</th><td>%[3]s</td></tr>
<tr><th>게시기간</th><td>%[4]s</td></tr>
</table>
<div class="card-wrap"><div><div>%[5]s</div></div></div>
</div></body></html>`, d.billID, d.title, d.committee, d.period, d.content)
}

func adminListingHTML(hrefs ...string) string {
	var items strings.Builder
	for i, h := range hrefs {
		fmt.Fprintf(&items, `<ul><li class="num">%d</li><li class="title W40"><a href="%s">notice</a></li></ul>`, i+1, h)
	}
	return `<html><body><div id="listView">` + items.String() + `</div></body></html>`
}

type adminDetail struct {
	title, committee, period, content, link string
}

func adminDetailHTML(d adminDetail) string {
	links := `<a href="#">공고문</a>`
	if d.link != "" {
		links += fmt.Sprintf(`<a href="%s">원문</a>`, d.link)
	}
	return fmt.Sprintf(`<html><body><div id="ogLmPpVo">
<h4>입법예고</h4>
<ul class="files">%s</ul>
<ul class="basic">
<li>게시기간 : %s</li>
<li><table><tbody><tr><td>%s</td></tr></tbody></table></li>
</ul>
<div>a</div><div>b</div><div>c</div>
<div><div>%s<p><span>%s</span></p><p>%s</p></div></div>
</div></body></html>`, links, d.period, d.committee, strings.Repeat("<p>안내</p>", 7), d.title, d.content)
}
